// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package reference

import (
	"encoding/binary"
	"fmt"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/biosimd"
	"github.com/grailbio/cns/pileup"
	"github.com/willf/bitset"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

const (
	// basesPerWord is the number of 4-bit position codes packed into each
	// uint64.  Position i lives in bits [4*(i%16), 4*(i%16)+4) of word i/16.
	basesPerWord = 16
	bitsPerBase  = 4

	// BaseMask extracts the 2-bit base code from a packed position.
	BaseMask byte = 0x3
	// NFlag marks an ambiguous reference base.
	NFlag byte = 0x4
	// VariantFlag marks a position with a known-variant record.
	VariantFlag byte = 0x8
	// RefMask strips VariantFlag, leaving one of pileup.NRefCode codes.
	RefMask byte = 0x7

	// variantFlagWord has VariantFlag set in every nibble.
	variantFlagWord = 0x8888888888888888
)

// Region is one callable region after clamping, with inclusive bounds.
type Region struct {
	Start, End PosType
}

// Chromosome is one packed reference sequence.
type Chromosome struct {
	name    string
	length  PosType
	words   []uint64
	region  *bitset.BitSet
	regions []Region

	variants  llrb.Tree
	nVariants int
}

// NewChromosome packs seq.  Letters other than A/C/G/T (either case) are
// stored as ambiguous.
func NewChromosome(name string, seq string) *Chromosome {
	return packChromosome(name, []byte(seq))
}

// packChromosome packs seq, overwriting it with base codes.
func packChromosome(name string, seq []byte) *Chromosome {
	length := PosType(len(seq))
	biosimd.ASCIIToBaseInplace(seq)
	packed := make([]byte, wordsFor(length)*8)
	biosimd.PackSeq(packed, seq)
	return &Chromosome{
		name:   name,
		length: length,
		words:  bytesToWords(packed),
	}
}

// newChromosomeFromWords wraps already-packed words, e.g. from a mapped
// image.
func newChromosomeFromWords(name string, length PosType, words []uint64) (*Chromosome, error) {
	if len(words) != wordsFor(length) {
		return nil, fmt.Errorf("reference: chromosome %s has %d packed words, expected %d for length %d", name, len(words), wordsFor(length), length)
	}
	return &Chromosome{name: name, length: length, words: words}, nil
}

func wordsFor(length PosType) int {
	return (int(length) + basesPerWord - 1) / basesPerWord
}

// Name returns the chromosome name.
func (c *Chromosome) Name() string { return c.name }

// Len returns the number of positions.
func (c *Chromosome) Len() PosType { return c.length }

// BaseAt returns the packed 4-bit code at pos.  pos must be in [0, Len()).
func (c *Chromosome) BaseAt(pos PosType) byte {
	if pos < 0 || pos >= c.length {
		log.Panicf("reference: position %d out of range for %s (length %d)", pos, c.name, c.length)
	}
	return byte(c.words[pos/basesPerWord]>>(uint(pos%basesPerWord)*bitsPerBase)) & 0xf
}

// MarkVariant sets the known-variant flag at pos.  It returns false, leaving
// the sequence unchanged, if the flag was already set.
func (c *Chromosome) MarkVariant(pos PosType) bool {
	if c.BaseAt(pos)&VariantFlag != 0 {
		log.Printf("reference: %s:%d already has a known variant; ignoring duplicate", c.name, pos+1)
		return false
	}
	c.words[pos/basesPerWord] |= uint64(VariantFlag) << (uint(pos%basesPerWord) * bitsPerBase)
	return true
}

// SetRegion adds [start, end] (inclusive) to the callable-region mask after
// clamping both ends into the chromosome.  It is an error for start to
// exceed end after clamping.
func (c *Chromosome) SetRegion(start, end PosType) error {
	if start < 0 {
		start = 0
	} else if start >= c.length {
		start = c.length
	}
	if end < 0 {
		end = 0
	} else if end >= c.length {
		end = c.length - 1
	}
	if start > end {
		return fmt.Errorf("reference: invalid region %s:%d-%d", c.name, start, end)
	}
	if c.region == nil {
		c.region = bitset.New(uint(c.length))
	}
	for pos := start; pos <= end; pos++ {
		c.region.Set(uint(pos))
	}
	c.regions = append(c.regions, Region{Start: start, End: end})
	return nil
}

// InRegion returns true if pos is callable: always when no region was ever
// set on this chromosome, else iff pos lies in some region.
func (c *Chromosome) InRegion(pos PosType) bool {
	if c.region == nil {
		return true
	}
	return c.region.Test(uint(pos))
}

// Seq returns the sequence in capital letters, N at ambiguous positions.
func (c *Chromosome) Seq() []byte {
	packed := make([]byte, len(c.words)*8)
	for i, w := range c.words {
		binary.LittleEndian.PutUint64(packed[i*8:], w)
	}
	seq := make([]byte, c.length)
	biosimd.UnpackAndReplaceSeq(seq, packed[:(len(seq)+1)/2], &biosimd.BaseASCIITable)
	return seq
}

// Regions returns the clamped regions in the order they were set.
func (c *Chromosome) Regions() []Region { return c.regions }
