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
package calibration

import (
	"fmt"

	"github.com/grailbio/cns/encoding/alignment"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/reference"
)

// Trainer counts observed-vs-reference bases from uniquely placed reads.
type Trainer struct {
	params Params
	// counts is indexed by cellIndex with the raw quality character in place
	// of the 0-based quality.
	counts []uint64
	nBases uint64
}

// NewTrainer returns an empty Trainer.
func NewTrainer(params Params) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{params: params, counts: make([]uint64, 256<<12)}, nil
}

// Add counts the bases of rec, which must be aligned to chr.  Reads that are
// not uniquely placed or that have no position are ignored.  Read bases that
// are N, and reference positions that are N or known variants, are skipped.
func (t *Trainer) Add(rec alignment.Record, chr *reference.Chromosome) error {
	if !rec.IsUnique() || rec.Pos() < 0 {
		return nil
	}
	n := rec.Len()
	if n > t.params.ReadLen {
		return fmt.Errorf("calibration.Trainer.Add: read length %d exceeds maximum %d", n, t.params.ReadLen)
	}
	pos := rec.Pos()
	if pos+pileup.PosType(n) > chr.Len() {
		return fmt.Errorf("calibration.Trainer.Add: read at %s:%d (length %d) runs past the reference end %d", chr.Name(), pos+1, n, chr.Len())
	}
	rev := rec.Strand() == pileup.StrandRev
	for i := 0; i < n; i++ {
		if rec.IsN(i) {
			continue
		}
		obs := pileup.ASCIIToEnumTable[rec.Base(i)]
		if obs >= pileup.BaseN {
			continue
		}
		ref := chr.BaseAt(pos + pileup.PosType(i))
		if ref&(reference.NFlag|reference.VariantFlag) != 0 {
			continue
		}
		cycle := i
		if rev {
			cycle = n - 1 - i
		}
		t.counts[cellIndex(int(rec.Qual(i)), cycle, ref&reference.BaseMask, obs)]++
		t.nBases++
	}
	return nil
}

// NumBases returns the number of bases counted so far.
func (t *Trainer) NumBases() uint64 { return t.nBases }

// Count returns the raw count for a (quality character, cycle, ref, obs)
// cell.
func (t *Trainer) Count(qualChar, cycle int, ref, obs byte) uint64 {
	return t.counts[cellIndex(qualChar, cycle, ref, obs)]
}

// Matrix derives the calibrated table.  Each cell takes the first estimate
// whose support exceeds MinObs:
//   1. the cell's own count over its (quality, cycle, ref) total;
//   2. the cell's count summed over cycles, over the same sum for its ref;
//   3. the quality's overall match or mismatch fraction, with mismatch mass
//      split over the three wrong bases.
// If no data exists at that quality at all, or the estimate is exactly 0 or
// 1, QualityOnly is used instead.  Rows are then normalized to sum to 1.
func (t *Trainer) Matrix() *Matrix {
	p := t.params
	m := &Matrix{params: p, p: make([]float64, p.NQual()<<12)}
	minObs := uint64(p.MinObs)
	for q := 0; q < p.NQual(); q++ {
		qualChar := q + p.QualMin
		var (
			byType          [16]uint64
			byRef           [pileup.NBase]uint64
			total, mismatch uint64
		)
		for cycle := 0; cycle < p.ReadLen; cycle++ {
			row := t.counts[rowIndex(qualChar, cycle) : rowIndex(qualChar, cycle)+16]
			for typ, c := range row {
				byType[typ] += c
				byRef[typ>>2] += c
				total += c
				if typ>>2 != typ&3 {
					mismatch += c
				}
			}
		}
		for cycle := 0; cycle < p.ReadLen; cycle++ {
			row := t.counts[rowIndex(qualChar, cycle) : rowIndex(qualChar, cycle)+16]
			var sum [pileup.NBase]uint64
			for typ, c := range row {
				sum[typ>>2] += c
			}
			for ref := byte(0); ref < pileup.NBase; ref++ {
				var probs [pileup.NBase]float64
				var rowSum float64
				for obs := byte(0); obs < pileup.NBase; obs++ {
					typ := int(ref)<<2 | int(obs)
					var prob float64
					switch {
					case row[typ] > minObs:
						prob = float64(row[typ]) / float64(sum[ref])
					case byType[typ] > minObs:
						prob = float64(byType[typ]) / float64(byRef[ref])
					case total > 0:
						if ref == obs {
							prob = float64(total-mismatch) / float64(total)
						} else {
							prob = float64(mismatch) / float64(total) / 3
						}
					}
					if prob == 0 || prob == 1 {
						prob = QualityOnly(q, ref == obs)
					}
					probs[obs] = prob
					rowSum += prob
				}
				for obs := byte(0); obs < pileup.NBase; obs++ {
					m.p[cellIndex(q, cycle, ref, obs)] = probs[obs] / rowSum
				}
			}
		}
	}
	return m
}
