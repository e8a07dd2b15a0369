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

// Package ranksum implements the Wilcoxon rank-sum test used to penalize
// heterozygous calls whose two alleles are supported by reads of
// systematically different base quality.  Small samples use an exact table;
// larger ones a normal approximation.
package ranksum

import (
	"math"

	"github.com/grailbio/cns/pileup"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// MaxN bounds the exact table: totals N < MaxN are looked up exactly.
	MaxN = 64
	// MaxQual is the number of quality bins in a Histogram.
	MaxQual = 64
)

// dist is the distribution of the rank sum of an n1-sized group among N.
type dist struct {
	// min is the smallest attainable rank sum, n1*(n1+1)/2.
	min int
	// mass[i] is P(T1 == min+i).
	mass []float64
	// tail[i] is min(P(T1 <= min+i), P(T1 >= min+i)).
	tail []float64
}

// Table holds exact rank-sum distributions for all N < MaxN.  It is
// immutable once built and safe for concurrent use.
type Table struct {
	d [MaxN][MaxN]dist
}

// NewTable computes the exact table.  The number of ways an n1-subset of
// ranks 1..N sums to T satisfies
//   c(N, n1, T) = c(N-1, n1, T) + c(N-1, n1-1, T-N)
// depending on whether rank N is in the subset.
func NewTable() *Table {
	t := &Table{}
	prev := [][]uint64{{1}}
	for n := 0; n < MaxN; n++ {
		cur := make([][]uint64, n+1)
		if n == 0 {
			cur[0] = []uint64{1}
		} else {
			for n1 := 0; n1 <= n; n1++ {
				cur[n1] = make([]uint64, maxRankSum(n, n1)+1)
				if n1 < n {
					copy(cur[n1], prev[n1])
				}
				if n1 > 0 {
					for s, c := range prev[n1-1] {
						cur[n1][s+n] += c
					}
				}
			}
		}
		for n1 := 0; n1 <= n; n1++ {
			t.d[n][n1] = newDist(cur[n1], minRankSum(n1))
		}
		prev = cur
	}
	return t
}

func minRankSum(n1 int) int { return n1 * (n1 + 1) / 2 }

func maxRankSum(n, n1 int) int { return (2*n - n1 + 1) * n1 / 2 }

func newDist(counts []uint64, min int) dist {
	var total uint64
	for _, c := range counts[min:] {
		total += c
	}
	d := dist{
		min:  min,
		mass: make([]float64, len(counts)-min),
		tail: make([]float64, len(counts)-min),
	}
	left := 0.0
	for i, c := range counts[min:] {
		d.mass[i] = float64(c) / float64(total)
		right := 1 - left
		left += d.mass[i]
		d.tail[i] = math.Min(left, right)
	}
	return d
}

func (t *Table) lookup(n, n1, sum int, f func(d *dist) []float64) float64 {
	if n < 0 || n >= MaxN || n1 < 0 || n1 > n {
		panic("ranksum: sample sizes out of range")
	}
	d := &t.d[n][n1]
	i := sum - d.min
	v := f(d)
	if i < 0 || i >= len(v) {
		return 0
	}
	return v[i]
}

// Mass returns P(T1 == sum) for an n1-subset of N ranks.
func (t *Table) Mass(n, n1, sum int) float64 {
	return t.lookup(n, n1, sum, func(d *dist) []float64 { return d.mass })
}

// Tail returns the smaller one-sided tail probability of T1 == sum.
func (t *Table) Tail(n, n1, sum int) float64 {
	return t.lookup(n, n1, sum, func(d *dist) []float64 { return d.tail })
}

// Exact returns the tail probability for groups of n1 and n2 observations
// with rank sums t1 and t2 (t1+t2 == N(N+1)/2).  The smaller group's
// statistic is used; fractional sums from tied ranks are interpolated.
// n1+n2 must be below MaxN.
func (t *Table) Exact(n1, n2 int, t1, t2 float64) float64 {
	n, sum := n1+n2, t1
	if n1 > n2 {
		n1, sum = n2, t2
	}
	base := math.Floor(sum)
	p := t.Tail(n, n1, int(base))
	if frac := sum - base; frac > 0 {
		p += frac * (t.Tail(n, n1, int(base)+1) - p)
	}
	return p
}

// Normal approximates the tail probability for large samples: the rank-sum
// z statistic of larger magnitude is converted to a one-sided normal tail.
func Normal(n1, n2 int, t1, t2 float64) float64 {
	fn1, fn2 := float64(n1), float64(n2)
	n := fn1 + fn2
	sd := math.Sqrt(fn1 * fn2 * (n + 1) / 12)
	u1 := (t1 - fn1*(n+1)/2) / sd
	u2 := (t2 - fn2*(n+1)/2) / sd
	u := math.Max(math.Abs(u1), math.Abs(u2))
	return distuv.UnitNormal.CDF(-u)
}

// Histogram counts uniquely placed observations by base and 0-based quality.
type Histogram [pileup.NBase][MaxQual]uint32

// Test returns the rank-sum p-value comparing the qualities of reads
// supporting g's two alleles.  Homozygous genotypes return 1; a heterozygous
// genotype with an allele that has no support returns 0.
func (t *Table) Test(h *Histogram, g pileup.Genotype) float64 {
	if g.IsHom() {
		return 1
	}
	a1, a2 := g.Alleles()
	var n1, n2 int
	for q := 0; q < MaxQual; q++ {
		n1 += int(h[a2][q])
		n2 += int(h[a1][q])
	}
	if n1 == 0 || n2 == 0 {
		return 0
	}
	// Mid-ranks: every observation in a quality bin gets the bin's average
	// rank in the merged, quality-sorted sample.
	var t1, t2, rank float64
	for q := 0; q < MaxQual; q++ {
		c1, c2 := float64(h[a2][q]), float64(h[a1][q])
		mid := rank + (1+c1+c2)/2
		t1 += mid * c1
		t2 += mid * c2
		rank += c1 + c2
	}
	if n1+n2 < MaxN {
		return t.Exact(n1, n2, t1, t2)
	}
	return Normal(n1, n2, t1, t2)
}
