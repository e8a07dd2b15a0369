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
	"context"
	"fmt"
	"io"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cns/pileup"
)

// Variant is a known-variant record.  Freq is indexed by base code
// (A, C, T, G).
type Variant struct {
	// Hapmap is set when the frequencies come from a population panel.
	Hapmap    bool
	Validated bool
	Indel     bool
	Freq      [pileup.NBase]float64
	Name      string
}

// AlleleCount returns the number of bases with positive frequency.
func (v *Variant) AlleleCount() int {
	n := 0
	for _, f := range v.Freq {
		if f > 0 {
			n++
		}
	}
	return n
}

// variantEntry orders a chromosome's variants by position.
type variantEntry struct {
	pos     PosType
	variant *Variant
}

// Compare implements llrb.Comparable.
func (e variantEntry) Compare(c llrb.Comparable) int {
	other := c.(variantEntry).pos
	switch {
	case e.pos < other:
		return -1
	case e.pos > other:
		return 1
	}
	return 0
}

// InsertVariant attaches v to pos and flags the position.  A second record
// at the same position is dropped (with a warning) and false is returned.
func (c *Chromosome) InsertVariant(pos PosType, v *Variant) bool {
	if pos < 0 || pos >= c.length {
		log.Printf("reference: variant %s at %s:%d is outside the chromosome; ignoring", v.Name, c.name, pos+1)
		return false
	}
	if !c.MarkVariant(pos) {
		return false
	}
	c.variants.Insert(variantEntry{pos: pos, variant: v})
	c.nVariants++
	return true
}

// Variant returns the record at pos.  pos must carry VariantFlag.
func (c *Chromosome) Variant(pos PosType) *Variant {
	item := c.variants.Get(variantEntry{pos: pos})
	if item == nil {
		log.Panicf("reference: no known variant at %s:%d", c.name, pos+1)
	}
	return item.(variantEntry).variant
}

// NumVariants returns the number of records attached to the chromosome.
func (c *Chromosome) NumVariants() int { return c.nVariants }

// VariantStats summarizes a known-variant table load.
type VariantStats struct {
	// Loaded counts records attached to a position.
	Loaded int
	// Duplicate counts records dropped because the position already had one.
	Duplicate int
	// UnknownChr counts records naming a chromosome not in the genome.
	UnknownChr int
	// OutOfRange counts records whose position lies outside the chromosome.
	OutOfRange int
}

// variantRow is one line of a known-variant table.
type variantRow struct {
	Chr       string
	Pos       int64
	Hapmap    int
	Validated int
	Indel     int
	FreqA     float64
	FreqC     float64
	FreqT     float64
	FreqG     float64
	Name      string
}

// ReadVariants loads a known-variant table into g.  Each line is
//   chr  pos(1-based)  hapmap  validated  indel  freqA  freqC  freqT  freqG  name
// tab-separated, with '#' comment lines.  Records on chromosomes missing from
// g are skipped.
func ReadVariants(r io.Reader, g *Genome) (stats VariantStats, err error) {
	tsvReader := tsv.NewReader(r)
	tsvReader.Comment = '#'
	for {
		var row variantRow
		if err = tsvReader.Read(&row); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			err = fmt.Errorf("reference.ReadVariants: %v", err)
			return
		}
		chr, ok := g.Chromosome(row.Chr)
		if !ok {
			stats.UnknownChr++
			continue
		}
		v := &Variant{
			Hapmap:    row.Hapmap != 0,
			Validated: row.Validated != 0,
			Indel:     row.Indel != 0,
			Freq:      [pileup.NBase]float64{row.FreqA, row.FreqC, row.FreqT, row.FreqG},
			Name:      row.Name,
		}
		pos := PosType(row.Pos - 1)
		if row.Pos < 1 || pos >= chr.Len() {
			stats.OutOfRange++
			continue
		}
		if chr.InsertVariant(pos, v) {
			stats.Loaded++
		} else {
			stats.Duplicate++
		}
	}
	if stats.UnknownChr > 0 {
		log.Printf("reference.ReadVariants: skipped %d record(s) on chromosomes absent from the reference", stats.UnknownChr)
	}
	if stats.OutOfRange > 0 {
		log.Printf("reference.ReadVariants: skipped %d record(s) positioned outside their chromosome", stats.OutOfRange)
	}
	return
}

// LoadVariants is a wrapper for ReadVariants that takes a path.  Compressed
// tables are decompressed transparently.
func LoadVariants(ctx context.Context, path string, g *Genome) (stats VariantStats, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return stats, errors.E(err, "open known-variant table", path)
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return ReadVariants(reader, g)
}
