package alignment

import (
	"bytes"
	"strconv"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/cns/biosimd"
	"github.com/grailbio/cns/pileup"
	"github.com/pkg/errors"
)

// Format identifies an alignment text format.
type Format int

const (
	// SOAP is the SOAP aligner's output:
	//   id seq qual hits a/b len strand chr pos(1-based) type [indelpos]
	// A type of 100+n marks an n-base deletion at indelpos, 200+n an n-base
	// insertion.
	SOAP Format = iota
	// Crossbow is the Crossbow intermediate format:
	//   chr partition pos(0-based) strand seq qual hits(0-based) mms mate id
	Crossbow
)

// ParseFormat converts "soap" or "crossbow" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "soap":
		return SOAP, nil
	case "crossbow":
		return Crossbow, nil
	}
	return 0, errors.Errorf("unknown alignment format %q", s)
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if f == Crossbow {
		return "crossbow"
	}
	return "soap"
}

// Parse parses one alignment line in format f.
func Parse(f Format, line []byte) (*Read, error) {
	if f == Crossbow {
		return ParseCrossbow(line)
	}
	return ParseSOAP(line)
}

func atoi(field []byte, what string) (int, error) {
	v, err := strconv.Atoi(gunsafe.BytesToString(field))
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s field %q", what, field)
	}
	return v, nil
}

func parseStrand(field []byte) (pileup.StrandType, error) {
	if len(field) == 1 {
		switch field[0] {
		case '+':
			return pileup.StrandFwd, nil
		case '-':
			return pileup.StrandRev, nil
		}
	}
	return 0, errors.Errorf("bad strand field %q", field)
}

// ParseSOAP parses a SOAP alignment line.
func ParseSOAP(line []byte) (*Read, error) {
	fields := bytes.Fields(line)
	if len(fields) < 10 {
		return nil, errors.Errorf("SOAP line has %d fields, want at least 10", len(fields))
	}
	r := &Read{
		Name:  string(fields[0]),
		Seq:   append([]byte(nil), fields[1]...),
		Quals: append([]byte(nil), fields[2]...),
		Chr:   string(fields[7]),
	}
	biosimd.CleanASCIISeqInplace(r.Seq)
	var err error
	if r.NHits, err = atoi(fields[3], "hits"); err != nil {
		return nil, err
	}
	readLen, err := atoi(fields[5], "length")
	if err != nil {
		return nil, err
	}
	if r.Dir, err = parseStrand(fields[6]); err != nil {
		return nil, err
	}
	pos1, err := atoi(fields[8], "position")
	if err != nil {
		return nil, err
	}
	r.Pos0 = pileup.PosType(pos1 - 1)
	typ, err := atoi(fields[9], "mismatch")
	if err != nil {
		return nil, err
	}
	if len(r.Seq) != len(r.Quals) {
		return nil, errors.Errorf("read %s: sequence and quality lengths differ (%d vs %d)", r.Name, len(r.Seq), len(r.Quals))
	}
	if readLen > len(r.Seq) || readLen < 0 {
		return nil, errors.Errorf("read %s: length field %d does not match sequence length %d", r.Name, readLen, len(r.Seq))
	}
	if typ > 100 {
		if len(fields) < 11 {
			return nil, errors.Errorf("read %s: gapped alignment without gap position", r.Name)
		}
		indelPos, err := atoi(fields[10], "gap position")
		if err != nil {
			return nil, err
		}
		if indelPos < 0 || indelPos > readLen {
			return nil, errors.Errorf("read %s: gap position %d out of range", r.Name, indelPos)
		}
		if typ > 200 {
			// Insertion relative to the read: pad with Ns so later bases stay
			// aligned to the reference.
			r.Seq = insertNs(r.Seq, indelPos, typ-200)
			r.Quals = insertNs(r.Quals, indelPos, typ-200)
		} else {
			n := typ - 100
			if indelPos+n > readLen {
				return nil, errors.Errorf("read %s: deletion of %d at %d overruns read", r.Name, n, indelPos)
			}
			r.Seq = append(r.Seq[:indelPos], r.Seq[indelPos+n:readLen]...)
			r.Quals = append(r.Quals[:indelPos], r.Quals[indelPos+n:readLen]...)
			readLen -= n
		}
	}
	r.Seq = r.Seq[:readLen]
	r.Quals = r.Quals[:readLen]
	return r, nil
}

func insertNs(b []byte, at, n int) []byte {
	out := make([]byte, 0, len(b)+n)
	out = append(out, b[:at]...)
	out = append(out, bytes.Repeat([]byte{'N'}, n)...)
	return append(out, b[at:]...)
}

// ParseCrossbow parses a Crossbow alignment line.
func ParseCrossbow(line []byte) (*Read, error) {
	fields := bytes.Fields(line)
	if len(fields) < 10 {
		return nil, errors.Errorf("Crossbow line has %d fields, want 10", len(fields))
	}
	r := &Read{
		Chr:   string(fields[0]),
		Seq:   append([]byte(nil), fields[4]...),
		Quals: append([]byte(nil), fields[5]...),
		Name:  string(fields[9]),
	}
	biosimd.CleanASCIISeqInplace(r.Seq)
	pos, err := atoi(fields[2], "position")
	if err != nil {
		return nil, err
	}
	r.Pos0 = pileup.PosType(pos)
	if r.Dir, err = parseStrand(fields[3]); err != nil {
		return nil, err
	}
	if r.NHits, err = atoi(fields[6], "hits"); err != nil {
		return nil, err
	}
	r.NHits++
	if r.MateID, err = atoi(fields[8], "mate"); err != nil {
		return nil, err
	}
	if len(r.Seq) != len(r.Quals) {
		return nil, errors.Errorf("read %s: sequence and quality lengths differ (%d vs %d)", r.Name, len(r.Seq), len(r.Quals))
	}
	return r, nil
}
