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
package pileup

import (
	"context"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cns/encoding/fasta"
	"github.com/grailbio/cns/interval"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = interval.PosTypeMax

// These constants are the 2-bit base codes used by the packed reference, the
// calibration table and the genotype codes.  The order is A, C, T, G: an
// ASCII base letter maps to its code via (c >> 1) & 3, and the two
// transitions (A<->G, C<->T) are exactly the pairs whose codes XOR to 3.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents a C base.
	BaseC
	// BaseT represents a T base.
	BaseT
	// BaseG represents a G base.
	BaseG
	// BaseN is the lowest ambiguous code; every code >= BaseN renders as 'N'.
	BaseN
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NRefCode is the number of distinct reference codes once the
	// known-variant bit is masked off.
	NRefCode = 8
)

// EnumToASCIITable is the base code -> ASCII mapping, with ambiguous codes
// rendered as 'N'.
var EnumToASCIITable = [NRefCode]byte{'A', 'C', 'T', 'G', 'N', 'N', 'N', 'N'}

// ASCIIToEnumTable maps ASCII base letters (either case) to base codes.
// Anything other than A/C/G/T maps to BaseN.
var ASCIIToEnumTable [256]byte

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseN
	}
	for _, c := range []byte("ACGTacgt") {
		ASCIIToEnumTable[c] = (c >> 1) & 3
	}
}

// IsTransition returns true iff a and b are distinct purines or distinct
// pyrimidines.
func IsTransition(a, b byte) bool {
	return a^b == 3
}

// StrandType describes which strand a read is aligned to.
type StrandType byte

const (
	// StrandFwd means the read was sequenced on the reference strand.
	StrandFwd StrandType = iota
	// StrandRev means the read is the reverse complement of the reference.
	StrandRev
)

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'+', '-'}

// Genotype is an unordered diploid base pair packed as allele1<<2 | allele2
// with allele1 <= allele2.  Homozygous genotypes have equal alleles.
type Genotype byte

const (
	// NGenotypeCode is the size of a table indexed by Genotype.
	NGenotypeCode = 16
	// NoGenotype is a sentinel used before any genotype has been chosen.
	NoGenotype Genotype = 16
)

// genotypeAbbrev renders each genotype code as its IUPAC letter; the final
// entry is NoGenotype.
const genotypeAbbrev = "AMWRMCYSWYTKRSKGN"

// Genotypes lists the ten unordered genotypes in increasing code order.
var Genotypes = func() []Genotype {
	var gts []Genotype
	for a1 := byte(0); a1 < NBase; a1++ {
		for a2 := a1; a2 < NBase; a2++ {
			gts = append(gts, NewGenotype(a1, a2))
		}
	}
	return gts
}()

// NewGenotype returns the genotype for the given alleles, in either order.
func NewGenotype(a1, a2 byte) Genotype {
	if a1 > a2 {
		a1, a2 = a2, a1
	}
	return Genotype(a1<<2 | a2)
}

// Alleles returns the genotype's two base codes, smaller first.
func (g Genotype) Alleles() (byte, byte) {
	return byte(g>>2) & 3, byte(g) & 3
}

// IsHom returns true iff both alleles are the same base.
func (g Genotype) IsHom() bool {
	a1, a2 := g.Alleles()
	return a1 == a2
}

// Abbrev returns the IUPAC letter for the genotype.
func (g Genotype) Abbrev() byte {
	return genotypeAbbrev[g]
}

// ScanFa opens a FASTA file, transparently decompressing it, and passes a
// record scanner to fn.
func ScanFa(ctx context.Context, fapath string, fn func(*fasta.Scanner) error) (err error) {
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return fn(fasta.NewScanner(reader))
}
