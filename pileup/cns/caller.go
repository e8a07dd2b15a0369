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
package cns

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/calibration"
	"github.com/grailbio/cns/encoding/alignment"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/prior"
	"github.com/grailbio/cns/ranksum"
	"github.com/grailbio/cns/reference"
)

// progressInterval is the number of alignments between verbose progress
// lines.
const progressInterval = 1000000

type callerState int

const (
	// stateIdle: no placed alignment seen yet.
	stateIdle callerState = iota
	// stateActive: accumulating a chromosome.
	stateActive
	// stateDone: Finish was called.
	stateDone
)

// Caller turns a position-sorted alignment stream into consensus calls.
// Evidence is accumulated in a Window; whenever a read starts past the
// current window, the window's positions are called and it moves forward.
//
//   c, _ := cns.NewCaller(opts, genome, matrix, priors, ranks, enc)
//   for each record { c.Add(rec) }
//   c.Finish()
type Caller struct {
	opts   *Opts
	genome *reference.Genome
	matrix *calibration.Matrix
	priors *prior.Table
	ranks  *ranksum.Table
	enc    Encoder

	win     *Window
	dep     dependency
	readLen int
	qualMin int
	// qualTop is the largest 0-based quality the matrix holds.
	qualTop int

	state   callerState
	chr     *reference.Chromosome
	visited map[string]bool
	lastPos pileup.PosType

	stats Stats

	// Scratch.
	call      Call
	slotCount []int
	hist      ranksum.Histogram
}

// NewCaller creates a Caller.  ranks may be nil unless opts.RankSum is set.
func NewCaller(opts *Opts, genome *reference.Genome, matrix *calibration.Matrix, priors *prior.Table, ranks *ranksum.Table, enc Encoder) (*Caller, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.RankSum && ranks == nil {
		return nil, fmt.Errorf("cns.NewCaller: rank-sum test enabled without a table")
	}
	params := matrix.Params()
	return &Caller{
		opts:      opts,
		genome:    genome,
		matrix:    matrix,
		priors:    priors,
		ranks:     ranks,
		enc:       enc,
		win:       NewWindow(params.ReadLen, opts.WinSize),
		dep:       newDependency(opts.PCRDependency, opts.GlobalDependency),
		readLen:   params.ReadLen,
		qualMin:   params.QualMin,
		qualTop:   params.NQual() - 1,
		visited:   make(map[string]bool),
		slotCount: make([]int, 2*params.ReadLen),
	}, nil
}

// Stats returns the counters accumulated so far.
func (c *Caller) Stats() Stats { return c.stats }

// Add adds one alignment.  Alignments must be grouped by chromosome and
// sorted by position within each chromosome.
func (c *Caller) Add(rec alignment.Record) error {
	if c.state == stateDone {
		return fmt.Errorf("cns.Caller.Add: called after Finish")
	}
	c.stats.Alignments++
	if c.opts.Verbose && c.stats.Alignments%progressInterval == 0 {
		log.Printf("cns: %d alignments processed", c.stats.Alignments)
	}
	if rec.IsUnique() {
		c.stats.Unique++
	}
	if rec.Mate() > 0 {
		c.stats.Paired++
	} else {
		c.stats.Unpaired++
	}
	pos := rec.Pos()
	if pos < 0 {
		return nil
	}
	n := rec.Len()
	if n > c.readLen {
		return fmt.Errorf("cns.Caller.Add: read at %s:%d has length %d, more than the maximum %d", rec.ChrName(), pos+1, n, c.readLen)
	}
	if c.chr == nil || rec.ChrName() != c.chr.Name() {
		if err := c.switchChromosome(rec.ChrName()); err != nil {
			return err
		}
	}
	chr := c.chr
	if pos >= chr.Len() {
		return fmt.Errorf("cns.Caller.Add: read starts at %s:%d, past the reference end %d", chr.Name(), pos+1, chr.Len())
	}
	if !c.callable(chr, pos) {
		return nil
	}
	if pos < c.lastPos {
		return fmt.Errorf("cns.Caller.Add: alignments are not sorted: %s:%d follows %s:%d", chr.Name(), pos+1, chr.Name(), c.lastPos+1)
	}
	if err := c.advance(pos); err != nil {
		return err
	}
	c.lastPos = pos
	c.addBases(rec, pos, n)
	return nil
}

// callable returns true if pos is to be called.  A chromosome without
// regions is unrestricted, in region mode too.
func (c *Caller) callable(chr *reference.Chromosome, pos pileup.PosType) bool {
	return chr.InRegion(pos)
}

// addBases records rec's bases.  A base at a position beyond the current
// window's called range goes to the tail sites.
func (c *Caller) addBases(rec alignment.Record, pos pileup.PosType, n int) {
	chr := c.chr
	hits := rec.Hits()
	mate := rec.Mate()
	unique := rec.IsUnique()
	rev := rec.Strand() == pileup.StrandRev
	for i := 0; i < n; i++ {
		p := pos + pileup.PosType(i)
		if p >= chr.Len() || !c.callable(chr, p) {
			continue
		}
		s, ok := c.win.SiteAt(p)
		if !ok {
			log.Panicf("cns: position %d outside window starting at %d", p, c.win.Start())
		}
		s.Depth++
		if mate > 0 {
			s.DepthPaired++
		}
		s.Repeat += hits
		q := int(rec.Qual(i)) - c.qualMin
		base := pileup.ASCIIToEnumTable[rec.Base(i)]
		if rec.IsN(i) || base >= pileup.BaseN || q < 0 || s.DepthUnique >= maxUniqueDepth {
			continue
		}
		if q > c.qualTop {
			q = c.qualTop
		}
		if unique {
			s.DepthUnique++
			if mate > 0 {
				s.DepthUniquePaired++
			}
			cycle := i
			if rev {
				cycle = n - 1 - i
			}
			s.addObs(newObsKey(base, rec.Strand(), q, cycle))
			s.CountUnique[base]++
			s.QualSum[base] += q
		}
		s.CountAll[base]++
	}
}

// switchChromosome flushes the current chromosome and starts name.
func (c *Caller) switchChromosome(name string) error {
	chr, ok := c.genome.Chromosome(name)
	if !ok {
		return fmt.Errorf("cns.Caller.Add: alignment to unknown chromosome %s", name)
	}
	if c.visited[name] {
		return fmt.Errorf("cns.Caller.Add: alignments are not sorted: %s appears in more than one block", name)
	}
	if c.chr != nil {
		if err := c.flushChromosome(); err != nil {
			return err
		}
	}
	return c.beginChromosome(chr)
}

func (c *Caller) beginChromosome(chr *reference.Chromosome) error {
	if c.opts.Verbose {
		log.Printf("cns: calling %s", chr.Name())
	}
	c.chr = chr
	c.visited[chr.Name()] = true
	c.state = stateActive
	c.lastPos = 0
	c.win.Reset(0)
	return c.enc.BeginChromosome(chr)
}

// advance calls and moves past every window that ends before pos.  Windows
// whose positions produce no output are skipped over directly.
func (c *Caller) advance(pos pileup.PosType) error {
	ws := pileup.PosType(c.win.WinSize())
	target := pos / ws * ws
	for c.win.Start() < target {
		if _, err := c.callWindow(int(ws)); err != nil {
			return err
		}
		next := c.win.Start() + ws
		if next < target && !c.opts.needsEveryPosition() && !c.win.pending() {
			c.win.Reseed(target)
		} else {
			c.win.Roll()
		}
	}
	return nil
}

// flushChromosome calls every remaining position of the current
// chromosome.
func (c *Caller) flushChromosome() error {
	length := c.chr.Len()
	ws := pileup.PosType(c.win.WinSize())
	for length > c.win.Start()+ws-1 {
		past, err := c.callWindow(int(ws))
		if err != nil {
			return err
		}
		if past {
			return c.enc.Flush()
		}
		if !c.opts.needsEveryPosition() && !c.win.pending() {
			// Nothing left to report on this chromosome.
			return c.enc.Flush()
		}
		c.win.Roll()
	}
	if _, err := c.callWindow(int(length - c.win.Start())); err != nil {
		return err
	}
	return c.enc.Flush()
}

// Finish calls all remaining positions, including those of chromosomes
// without alignments when the output covers every position.
func (c *Caller) Finish() error {
	if c.state == stateDone {
		return nil
	}
	if c.stats.Alignments == 0 {
		return fmt.Errorf("cns.Caller.Finish: no alignments were read")
	}
	if c.chr != nil {
		if err := c.flushChromosome(); err != nil {
			return err
		}
	}
	if c.opts.needsEveryPosition() {
		for _, chr := range c.genome.Chromosomes() {
			if c.visited[chr.Name()] {
				continue
			}
			if err := c.beginChromosome(chr); err != nil {
				return err
			}
			if err := c.flushChromosome(); err != nil {
				return err
			}
		}
	}
	c.state = stateDone
	return c.enc.Flush()
}

// callWindow calls the first n positions of the window.  It returns true
// if the window lies past the only callable region of the chromosome.
func (c *Caller) callWindow(n int) (past bool, err error) {
	chr := c.chr
	start := c.win.Start()
	if c.opts.SNPOnly && c.opts.regionOnly() && len(chr.Regions()) == 1 {
		r := chr.Regions()[0]
		if r.Start >= start+pileup.PosType(n) {
			return false, nil
		}
		if r.End < start {
			return true, nil
		}
	}
	for i := 0; i < n; i++ {
		pos := start + pileup.PosType(i)
		if !c.callable(chr, pos) {
			continue
		}
		if err := c.callSite(pos, c.win.Site(i)); err != nil {
			return false, err
		}
	}
	return false, nil
}

// callSite decides the genotype at pos and hands the result to the
// encoder.
func (c *Caller) callSite(pos pileup.PosType, s *Site) error {
	c.stats.PosCalled++
	if c.opts.Verbose && c.stats.PosCalled%progressInterval == 0 {
		log.Printf("cns: %d positions called", c.stats.PosCalled)
	}
	code := c.chr.BaseAt(pos)
	ref := code & reference.RefMask
	flagged := code&reference.VariantFlag != 0
	evidence := flagged && c.opts.DumpKnown
	if flagged {
		c.stats.PosKnown++
	}
	if s.DepthUnique == 0 {
		c.stats.PosNoUnique++
	}
	noCall := ref >= pileup.BaseN && s.Depth == 0
	if s.Depth == 0 {
		c.stats.PosNoCoverage++
	}
	if noCall {
		c.stats.PosNoCall++
	}
	if s.DepthUnique == 0 && c.opts.SNPOnly {
		if evidence {
			return c.enc.NoCoverage(c.chr.Name(), pos, ref)
		}
		return nil
	}
	if noCall {
		return c.enc.NoCall(c.chr.Name(), pos)
	}

	call := &c.call
	*call = Call{
		Chr:   c.chr.Name(),
		Pos:   pos,
		Ref:   ref,
		Known: flagged,
		Rank:  1,
		Site:  s,
	}
	bases, quals := supportingBases(s, ref)
	call.Bases = bases
	likelihoods(s, c.matrix, c.dep, c.slotCount, &call.Likelihood)

	row := c.priors.Row(ref)
	if flagged && c.opts.Refine {
		c.priors.Refine(&row, c.chr.Variant(pos), code)
	}
	var second pileup.Genotype
	call.Genotype, second = posteriors(&call.Likelihood, &row, c.opts.Monoploid, &call.Posterior)
	if c.opts.Format != FormatText {
		return c.enc.Call(call)
	}

	if c.opts.RankSum {
		s.qualHistogram(&c.hist)
		call.Rank = c.ranks.Test(&c.hist, call.Genotype)
	}
	call.Quality = quality(call, second, quals)
	nonRef := call.NonRef()
	if nonRef {
		c.stats.PosNonRef++
	}
	if !c.opts.SNPOnly || evidence || nonRef {
		call.Evidence = evidence && !nonRef
		return c.enc.Call(call)
	}
	return nil
}
