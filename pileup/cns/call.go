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
	"math"

	"github.com/grailbio/cns/pileup"
)

// MaxQuality is the largest consensus quality reported.
const MaxQuality = 99

// Call is the consensus decision at one position.
type Call struct {
	Chr string
	Pos pileup.PosType
	// Ref is the reference code, pileup.BaseN or above for ambiguous bases.
	Ref byte
	// Known is set at known-variant positions.
	Known bool
	// Evidence marks a known-variant position reported only because
	// known-variant evidence was requested.
	Evidence bool

	Genotype pileup.Genotype
	Quality  int
	// Bases are the three best supported bases, best first.  Bases[1] may
	// be an ambiguous code when there is no second base.
	Bases [3]byte
	// Rank is the rank-sum p-value, 1 if the test is disabled or the call
	// is homozygous.
	Rank float64

	Site *Site
	// Likelihood and Posterior are log10 scores indexed by genotype.
	// Posterior is -Inf for genotypes excluded from consideration.
	Likelihood [pileup.NGenotypeCode]float64
	Posterior  [pileup.NGenotypeCode]float64
}

// NonRef returns true if the call differs from the reference at a covered
// position.
func (c *Call) NonRef() bool {
	return c.Genotype.Abbrev() != pileup.EnumToASCIITable[c.Ref] && c.Site.Depth > 0
}

// topBases ranks the four bases by v, starting from the given floor values.
// Ties go to the later base.
func topBases(v *[pileup.NBase]int, floor [3]int) (bases [3]byte, top [3]int) {
	top = floor
	for i := byte(0); i < pileup.NBase; i++ {
		x := v[i]
		switch {
		case x >= top[0]:
			bases[2], top[2] = bases[1], top[1]
			bases[1], top[1] = bases[0], top[0]
			bases[0], top[0] = i, x
		case x >= top[1]:
			bases[2], top[2] = bases[1], top[1]
			bases[1], top[1] = i, x
		case x >= top[2]:
			bases[2], top[2] = i, x
		}
	}
	return
}

// supportingBases picks the best three bases at s by quality sum, or by
// raw count when no unique read covers the site.  The reference code fills
// in for a missing first or second base.  The returned qualities are the
// quality sums, or negative placeholders when counts were used.
func supportingBases(s *Site, ref byte) (bases [3]byte, quals [3]int) {
	quals = [3]int{-1, -2, -3}
	var top [3]int
	if s.DepthUnique > 0 {
		bases, quals = topBases(&s.QualSum, quals)
		top = quals
	} else {
		bases, top = topBases(&s.CountAll, [3]int{})
	}
	if top[0] == 0 {
		bases[0] = ref
	} else if top[1] == 0 && bases[0] != ref {
		bases[1] = ref
	}
	return
}

// posteriors adds log10 priors to ll, leaving excluded genotypes at -Inf,
// and returns the best and second best genotypes.  Ties go to the later
// genotype.
func posteriors(ll, prior *[pileup.NGenotypeCode]float64, monoploid bool, post *[pileup.NGenotypeCode]float64) (best, second pileup.Genotype) {
	for i := range post {
		post[i] = math.Inf(-1)
	}
	best, second = pileup.NoGenotype, pileup.NoGenotype
	for _, g := range pileup.Genotypes {
		if monoploid && !g.IsHom() {
			continue
		}
		post[g] = ll[g] + math.Log10(prior[g])
		if best == pileup.NoGenotype || post[g] >= post[best] {
			second, best = best, g
		} else if second == pileup.NoGenotype || post[g] >= post[second] {
			second = g
		}
	}
	return
}

// saturate converts v to an int, clamping it well outside the quality
// range.
func saturate(v float64) int {
	const limit = 1 << 20
	switch {
	case math.IsNaN(v):
		return 0
	case v > limit:
		return limit
	case v < -limit:
		return -limit
	}
	return int(v)
}

// quality scores the call in c from the posterior margin and rank-sum
// p-value, capped by how decisively the supporting bases are separated.
func quality(c *Call, second pileup.Genotype, quals [3]int) int {
	s := c.Site
	var q int
	if c.Rank != 0 {
		q = saturate(10*(c.Posterior[c.Genotype]-c.Posterior[second]) + 10*math.Log10(c.Rank))
	}
	b1, b2 := c.Bases[0], c.Bases[1]
	if c.Genotype.IsHom() {
		_, a := c.Genotype.Alleles()
		if quals[0] > 0 && b1 != a {
			q = 0
		} else if q > quals[0]-quals[1] {
			q = quals[0] - quals[1]
		}
	} else {
		qsum := func(b byte) int {
			if b >= pileup.BaseN {
				return 0
			}
			return s.QualSum[b]
		}
		if qsum(b1) > 0 && qsum(b2) > 0 && c.Genotype == pileup.NewGenotype(b1, b2) {
			if q > quals[1]-quals[2] {
				q = quals[1] - quals[2]
			}
		} else {
			q = 0
		}
	}
	if q > MaxQuality {
		q = MaxQuality
	}
	if q < 0 {
		q = 0
	}
	return q
}
