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
	"sort"

	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/ranksum"
)

// maxUniqueDepth caps the unique observations recorded per site; further
// unique bases still count towards Depth.
const maxUniqueDepth = 255

// obsKey packs (base, quality, cycle, strand) so that ascending key order
// is base ascending, quality descending, cycle ascending, strand ascending:
//
//   bits 15-16 base, bits 9-14 63-quality, bits 1-8 cycle, bit 0 strand
type obsKey uint32

const maxKeyQual = 63

func newObsKey(base byte, strand pileup.StrandType, q, cycle int) obsKey {
	return obsKey(uint32(base)<<15 | uint32(maxKeyQual-q)<<9 | uint32(cycle)<<1 | uint32(strand))
}

func (k obsKey) base() byte { return byte(k>>15) & 3 }
func (k obsKey) qual() int { return maxKeyQual - int(k>>9&0x3f) }
func (k obsKey) cycle() int { return int(k >> 1 & 0xff) }
func (k obsKey) strand() pileup.StrandType { return pileup.StrandType(k & 1) }
func (k obsKey) slot(readLen int) int { return int(k.strand())*readLen + k.cycle() }

type obsCount struct {
	key obsKey
	n   uint8
}

// Site accumulates the evidence at one reference position.
type Site struct {
	// Depth counts every aligned base, including Ns and low-quality bases.
	Depth int
	// DepthPaired counts bases from paired reads.
	DepthPaired int
	// DepthUnique counts usable bases from uniquely placed reads.
	DepthUnique       int
	DepthUniquePaired int
	// Repeat sums the placement counts of all aligned reads.
	Repeat int
	// CountUnique and CountAll count usable bases per base code, from unique
	// and from all reads.
	CountUnique [pileup.NBase]int
	CountAll    [pileup.NBase]int
	// QualSum sums the 0-based qualities of unique bases per base code.
	QualSum [pileup.NBase]int

	// hist is sorted by key.
	hist []obsCount
}

func (s *Site) reset() {
	hist := s.hist[:0]
	*s = Site{hist: hist}
}

// empty returns true if nothing was added since the last reset.
func (s *Site) empty() bool { return s.Depth == 0 }

func (s *Site) addObs(k obsKey) {
	i := sort.Search(len(s.hist), func(i int) bool { return s.hist[i].key >= k })
	if i < len(s.hist) && s.hist[i].key == k {
		s.hist[i].n++
		return
	}
	s.hist = append(s.hist, obsCount{})
	copy(s.hist[i+1:], s.hist[i:])
	s.hist[i] = obsCount{key: k, n: 1}
}

// Count returns the number of unique observations of base at quality q and
// cycle on strand.
func (s *Site) Count(base byte, strand pileup.StrandType, q, cycle int) int {
	k := newObsKey(base, strand, q, cycle)
	i := sort.Search(len(s.hist), func(i int) bool { return s.hist[i].key >= k })
	if i < len(s.hist) && s.hist[i].key == k {
		return int(s.hist[i].n)
	}
	return 0
}

// Each calls fn for every distinct unique observation, ordered by base
// ascending, quality descending, cycle ascending, then strand.
func (s *Site) Each(fn func(base byte, strand pileup.StrandType, q, cycle, n int)) {
	for _, o := range s.hist {
		fn(o.key.base(), o.key.strand(), o.key.qual(), o.key.cycle(), int(o.n))
	}
}

// qualHistogram fills h with the unique observations per base and quality.
func (s *Site) qualHistogram(h *ranksum.Histogram) {
	*h = ranksum.Histogram{}
	for _, o := range s.hist {
		h[o.key.base()][o.key.qual()] += uint32(o.n)
	}
}
