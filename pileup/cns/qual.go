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

	"github.com/grailbio/cns/calibration"
	"github.com/grailbio/cns/pileup"
)

// dependency discounts repeated observations.  Errors in reads sharing a
// (strand, cycle) slot are correlated, as are errors across any repeated
// observation of the same base.  Both coefficients are stored as log10.
type dependency struct {
	pcr, global float64
}

func newDependency(pcr, global float64) dependency {
	return dependency{pcr: math.Log10(pcr), global: math.Log10(global)}
}

// adjust returns the effective quality of an observation of quality q that
// is the nSlot'th in its (strand, cycle) slot and follows nGlobal other
// occupied slots of the same base.  The result is at least 1.
func (d dependency) adjust(q, nSlot, nGlobal int) int {
	qa := int(math.Pow(10, math.Log10(float64(q))+float64(nSlot-1)*d.pcr+float64(nGlobal)*d.global) + 0.5)
	if qa < 1 {
		qa = 1
	}
	return qa
}

// likelihoods computes log10 P(observations | genotype) for every genotype
// from a site's unique observations.  slotCount is scratch space of at
// least 2*readLen entries.
func likelihoods(s *Site, m *calibration.Matrix, dep dependency, slotCount []int, ll *[pileup.NGenotypeCode]float64) {
	*ll = [pileup.NGenotypeCode]float64{}
	readLen := m.Params().ReadLen
	lastBase := -1
	nGlobal := -1
	for _, o := range s.hist {
		base := o.key.base()
		if int(base) != lastBase {
			lastBase = int(base)
			nGlobal = -1
			for i := range slotCount {
				slotCount[i] = 0
			}
		}
		q, cycle := o.key.qual(), o.key.cycle()
		slot := o.key.slot(readLen)
		for k := 0; k < int(o.n); k++ {
			if slotCount[slot] == 0 {
				nGlobal++
			}
			slotCount[slot]++
			row := m.Row(dep.adjust(q, slotCount[slot], nGlobal), cycle)
			for _, g := range pileup.Genotypes {
				a1, a2 := g.Alleles()
				ll[g] += math.Log10(0.5*row[int(a1)<<2|int(base)] + 0.5*row[int(a2)<<2|int(base)])
			}
		}
	}
}
