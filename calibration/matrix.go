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

// Package calibration estimates P(observed base | true base, quality, cycle)
// from uniquely placed reads, and reads and writes the resulting table.
package calibration

import (
	"fmt"
	"math"

	"github.com/grailbio/cns/pileup"
)

// Params bounds the table.
type Params struct {
	// QualMin is the quality character that encodes phred 0.
	QualMin int `yaml:"qual_min"`
	// QualMax is the highest quality character considered.
	QualMax int `yaml:"qual_max"`
	// ReadLen is the maximum read length (number of cycles).
	ReadLen int `yaml:"read_len"`
	// MinObs is the number of raw observations a cell must exceed before its
	// own frequency is trusted.
	MinObs int `yaml:"min_obs"`
}

// DefaultParams matches Illumina 1.3+ quality encoding and 45-cycle reads.
var DefaultParams = Params{
	QualMin: '@',
	QualMax: '@' + 40,
	ReadLen: 45,
	MinObs:  10,
}

const (
	// MaxQual is one more than the largest phred value the table can hold.
	MaxQual = 64
	// MaxReadLen is the largest supported read length.
	MaxReadLen = 256
)

// NQual returns the number of quality rows.
func (p Params) NQual() int { return p.QualMax - p.QualMin + 1 }

// Validate checks that the table dimensions fit the packed index.
func (p Params) Validate() error {
	if p.QualMin < 0 || p.QualMax > 255 || p.QualMin > p.QualMax {
		return fmt.Errorf("calibration: invalid quality range [%d, %d]", p.QualMin, p.QualMax)
	}
	if p.NQual() > MaxQual {
		return fmt.Errorf("calibration: quality range [%d, %d] spans more than %d values", p.QualMin, p.QualMax, MaxQual)
	}
	if p.ReadLen <= 0 || p.ReadLen > MaxReadLen {
		return fmt.Errorf("calibration: read length %d outside (0, %d]", p.ReadLen, MaxReadLen)
	}
	if p.MinObs < 0 {
		return fmt.Errorf("calibration: negative observation threshold %d", p.MinObs)
	}
	return nil
}

// cellIndex packs (quality, cycle, ref, obs).  The same layout orders rows in
// table files.
func cellIndex(q, cycle int, ref, obs byte) int {
	return q<<12 | cycle<<4 | int(ref)<<2 | int(obs)
}

// rowIndex is cellIndex of the (q, cycle) row's first cell.
func rowIndex(q, cycle int) int {
	return q<<12 | cycle<<4
}

// Matrix is a calibrated substitution table.  It is read-only once built.
type Matrix struct {
	params Params
	p      []float64
}

// NewMatrix returns a table filled with the quality-only estimate, the same
// values a training pass with no usable data produces.
func NewMatrix(params Params) (*Matrix, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Matrix{params: params, p: make([]float64, params.NQual()<<12)}
	for q := 0; q < params.NQual(); q++ {
		for cycle := 0; cycle < params.ReadLen; cycle++ {
			m.fillQualityOnly(q, cycle)
		}
	}
	return m, nil
}

func (m *Matrix) fillQualityOnly(q, cycle int) {
	for ref := byte(0); ref < pileup.NBase; ref++ {
		for obs := byte(0); obs < pileup.NBase; obs++ {
			m.p[cellIndex(q, cycle, ref, obs)] = QualityOnly(q, ref == obs)
		}
	}
}

// Params returns the table dimensions.
func (m *Matrix) Params() Params { return m.params }

// At returns P(obs | ref) for a base of phred quality q (0-based) at cycle.
func (m *Matrix) At(q, cycle int, ref, obs byte) float64 {
	return m.p[cellIndex(q, cycle, ref, obs)]
}

// Row returns the 16 probabilities for (q, cycle), ordered ref<<2|obs.
func (m *Matrix) Row(q, cycle int) []float64 {
	i := rowIndex(q, cycle)
	return m.p[i : i+16]
}

// QualityOnly is the estimate used when no data supports a cell: the phred
// error rate split evenly over the three wrong bases.  Both values are kept
// on their side of 0.25 so that very low qualities stay uninformative.
func QualityOnly(q int, match bool) float64 {
	e := math.Pow(10, -float64(q)/10)
	if match {
		return math.Max(1-e, 0.25)
	}
	return math.Min(e/3, 0.25)
}
