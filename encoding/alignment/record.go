// Package alignment reads the short-read alignment text formats accepted by
// the consensus caller.  Two formats are supported: SOAP output and the
// Crossbow intermediate format.  Both are parsed into Read, which the caller
// only sees through the read-only Record interface.
package alignment

import (
	"github.com/grailbio/cns/pileup"
)

// Record is the read-only view of one alignment that consumers need.
type Record interface {
	// ChrName returns the reference sequence the read aligned to.
	ChrName() string
	// Pos returns the 0-based leftmost reference position.  Negative values
	// mean the read is not placed.
	Pos() pileup.PosType
	// Strand returns the strand the read aligned to.
	Strand() pileup.StrandType
	// Len returns the number of aligned bases.
	Len() int
	// Base returns the ASCII read base at cycle i (0 <= i < Len()), in
	// reference orientation.
	Base(i int) byte
	// Qual returns the ASCII quality character at i.
	Qual(i int) byte
	// IsN returns true iff the base at i is an N.
	IsN(i int) bool
	// Hits returns the number of equally good placements of the read.
	Hits() int
	// IsUnique returns true iff the read has exactly one best placement.
	IsUnique() bool
	// Mate returns 0 for an unpaired read, else the mate number.
	Mate() int
}

// Read is a parsed alignment line.
type Read struct {
	Name   string
	Chr    string
	Pos0   pileup.PosType
	Dir    pileup.StrandType
	Seq    []byte
	Quals  []byte
	NHits  int
	MateID int
}

// ChrName implements Record.
func (r *Read) ChrName() string { return r.Chr }

// Pos implements Record.
func (r *Read) Pos() pileup.PosType { return r.Pos0 }

// Strand implements Record.
func (r *Read) Strand() pileup.StrandType { return r.Dir }

// Len implements Record.
func (r *Read) Len() int { return len(r.Seq) }

// Base implements Record.
func (r *Read) Base(i int) byte { return r.Seq[i] }

// Qual implements Record.
func (r *Read) Qual(i int) byte { return r.Quals[i] }

// IsN implements Record.
func (r *Read) IsN(i int) bool { return r.Seq[i] == 'N' }

// Hits implements Record.
func (r *Read) Hits() int { return r.NHits }

// IsUnique implements Record.
func (r *Read) IsUnique() bool { return r.NHits == 1 }

// Mate implements Record.
func (r *Read) Mate() int { return r.MateID }
