package alignment

import (
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// maxLogged bounds the number of malformed lines reported individually.
const maxLogged = 10

// Scanner iterates over the alignments in a text stream.  Lines that do not
// parse are skipped and counted.
//
//   sc := alignment.NewScanner(r, alignment.SOAP)
//   for sc.Scan() {
//     rec := sc.Record()
//     ...
//   }
//   if err := sc.Err(); err != nil { ... }
type Scanner struct {
	format  Format
	lines   *bufio.Scanner
	rec     *Read
	lineNo  int
	skipped int
	err     error
}

// NewScanner creates a Scanner reading alignments of format f from r.
func NewScanner(r io.Reader, f Format) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Scanner{format: f, lines: lines}
}

// Scan advances to the next alignment.  It returns false at the end of the
// input or on a read error.
func (s *Scanner) Scan() bool {
	for s.lines.Scan() {
		s.lineNo++
		line := s.lines.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := Parse(s.format, line)
		if err != nil {
			s.skipped++
			if s.skipped <= maxLogged {
				log.Printf("alignment: skipping malformed %v line %d: %v", s.format, s.lineNo, err)
			}
			continue
		}
		s.rec = rec
		return true
	}
	if err := s.lines.Err(); err != nil {
		s.err = errors.Wrapf(err, "reading alignments, line %d", s.lineNo)
	}
	return false
}

// Record returns the current alignment.  It is valid until the next call to
// Scan.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the first read error, if any.
func (s *Scanner) Err() error { return s.err }

// Skipped returns the number of malformed lines seen so far.
func (s *Scanner) Skipped() int { return s.skipped }

// Open opens an alignment file (optionally compressed) and calls fn with a
// Scanner over it.
func Open(ctx context.Context, path string, f Format, fn func(*Scanner) error) (err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return errors.Wrapf(err, "open alignments %s", path)
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	sc := NewScanner(reader, f)
	if err = fn(sc); err != nil {
		return err
	}
	if sc.Skipped() > 0 {
		log.Printf("alignment: %s: skipped %d malformed line(s)", path, sc.Skipped())
	}
	return sc.Err()
}
