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

	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/encoding/fasta"
	"github.com/grailbio/cns/interval"
	"github.com/grailbio/cns/pileup"
)

// Genome is an ordered set of packed chromosomes.
type Genome struct {
	chrs   []*Chromosome
	byName map[string]*Chromosome
	// closer releases a mapped image, if any.
	closer func() error
}

// Read packs every sequence of a FASTA stream, in file order.
func Read(r io.Reader) (*Genome, error) {
	return scanChromosomes(fasta.NewScanner(r))
}

func scanChromosomes(sc *fasta.Scanner) (*Genome, error) {
	var chrs []*Chromosome
	for sc.Scan() {
		chrs = append(chrs, packChromosome(sc.Name(), sc.Seq()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewFromChromosomes(chrs)
}

// NewFromChromosomes builds a genome from already packed chromosomes.
func NewFromChromosomes(chrs []*Chromosome) (*Genome, error) {
	g := &Genome{
		chrs:   chrs,
		byName: make(map[string]*Chromosome, len(chrs)),
	}
	for _, c := range chrs {
		if _, ok := g.byName[c.name]; ok {
			return nil, fmt.Errorf("reference: duplicate chromosome %s", c.name)
		}
		g.byName[c.name] = c
	}
	return g, nil
}

// Load reads a FASTA file (optionally compressed) and packs it.
func Load(ctx context.Context, fapath string) (g *Genome, err error) {
	err = pileup.ScanFa(ctx, fapath, func(sc *fasta.Scanner) (err error) {
		g, err = scanChromosomes(sc)
		return
	})
	return
}

// Chromosome looks up a chromosome by name.
func (g *Genome) Chromosome(name string) (*Chromosome, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// Chromosomes returns the chromosomes in reference order.
func (g *Genome) Chromosomes() []*Chromosome { return g.chrs }

// ApplyRegions restricts calling to the given regions.  Each entry's start
// is moved readLen bases to the left so that reads starting just before a
// region still contribute to it; the end is made inclusive.  Entries naming
// unknown chromosomes are logged and skipped.  It returns the number of
// regions applied.
func (g *Genome) ApplyRegions(entries []interval.Entry, readLen int) (int, error) {
	n := 0
	for _, e := range entries {
		c, ok := g.byName[e.ChrName]
		if !ok {
			log.Printf("reference.ApplyRegions: chromosome %s not in reference; skipping region", e.ChrName)
			continue
		}
		if err := c.SetRegion(e.Start0-PosType(readLen), e.End-1); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close releases the memory backing a mapped genome.  It is a no-op for
// genomes built from FASTA.
func (g *Genome) Close() error {
	if g.closer == nil {
		return nil
	}
	err := g.closer()
	g.closer = nil
	return err
}
