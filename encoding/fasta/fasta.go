// Package fasta reads FASTA files one sequence at a time.  FASTA files
// consist of a number of named sequences that may be interrupted by
// newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Sequence names are the stretch of characters excluding whitespace
// immediately after '>'; the rest of the header line is ignored, so
// '>chr1 A viral sequence' names 'chr1'.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// maxLineLen bounds a single input line; whole-chromosome lines are common.
const maxLineLen = 1024 * 1024 * 300 // 300 MB

// Scanner iterates over the records of a FASTA stream:
//
//   sc := fasta.NewScanner(r)
//   for sc.Scan() {
//     use(sc.Name(), sc.Seq())
//   }
//   if err := sc.Err(); err != nil { ... }
type Scanner struct {
	in   *bufio.Scanner
	name string
	seq  []byte
	// nextName is the header read while finishing the previous record.
	nextName string
	seen     map[string]bool
	started  bool
	err      error
}

// NewScanner creates a Scanner reading r.
func NewScanner(r io.Reader) *Scanner {
	in := bufio.NewScanner(r)
	in.Buffer(nil, maxLineLen)
	return &Scanner{in: in, seen: map[string]bool{}}
}

func parseHeader(line []byte) (string, error) {
	fields := bytes.Fields(line[1:])
	if len(fields) == 0 {
		return "", errors.Errorf("malformed FASTA file: empty sequence name")
	}
	return string(fields[0]), nil
}

// Scan reads the next record.  It returns false at the end of input or on
// error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		// Skip to the first header.
		for s.in.Scan() {
			line := s.in.Bytes()
			if len(line) == 0 {
				continue
			}
			if line[0] != '>' {
				s.err = errors.Errorf("malformed FASTA file: sequence data before first header")
				return false
			}
			if s.nextName, s.err = parseHeader(line); s.err != nil {
				return false
			}
			break
		}
		s.started = true
	}
	if s.nextName == "" {
		s.err = errors.Wrap(s.in.Err(), "couldn't read FASTA data")
		return false
	}
	s.name, s.nextName = s.nextName, ""
	if s.seen[s.name] {
		s.err = errors.Errorf("duplicate sequence name %q", s.name)
		return false
	}
	s.seen[s.name] = true
	s.seq = s.seq[:0]
	for s.in.Scan() {
		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			s.nextName, s.err = parseHeader(line)
			return s.err == nil
		}
		s.seq = append(s.seq, bytes.TrimRight(line, " \t\r")...)
	}
	if err := s.in.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	return true
}

// Name returns the current record's sequence name.
func (s *Scanner) Name() string { return s.name }

// Seq returns the current record's sequence, with case preserved.  The
// slice is reused by the next call to Scan.
func (s *Scanner) Seq() []byte { return s.seq }

// Err returns the first error encountered, or nil at a clean end of input.
func (s *Scanner) Err() error { return s.err }
