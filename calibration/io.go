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
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// A table file has one line per (quality, cycle) pair:
//   quality  cycle  p(A|A) p(C|A) p(T|A) p(G|A) p(A|C) ... p(G|G)
// with quality 0-based, and probabilities ordered ref<<2|obs and printed in
// scientific notation with 16 fractional digits, enough to round-trip.

// tableRow is one parsed table line.
type tableRow struct {
	Qual  int
	Cycle int
	P0    float64
	P1    float64
	P2    float64
	P3    float64
	P4    float64
	P5    float64
	P6    float64
	P7    float64
	P8    float64
	P9    float64
	P10   float64
	P11   float64
	P12   float64
	P13   float64
	P14   float64
	P15   float64
}

func (r *tableRow) probs() [16]float64 {
	return [16]float64{r.P0, r.P1, r.P2, r.P3, r.P4, r.P5, r.P6, r.P7,
		r.P8, r.P9, r.P10, r.P11, r.P12, r.P13, r.P14, r.P15}
}

// Write writes m in table format.
func (m *Matrix) Write(w io.Writer) error {
	tsvw := tsv.NewWriter(w)
	for q := 0; q < m.params.NQual(); q++ {
		for cycle := 0; cycle < m.params.ReadLen; cycle++ {
			tsvw.WriteInt64(int64(q))
			tsvw.WriteInt64(int64(cycle))
			for _, p := range m.Row(q, cycle) {
				tsvw.WriteString(strconv.FormatFloat(p, 'e', 16, 64))
			}
			if err := tsvw.EndLine(); err != nil {
				return err
			}
		}
	}
	return tsvw.Flush()
}

// Read loads a table written by Write for the same params.  Rows missing
// from the input keep the QualityOnly estimate.
func Read(r io.Reader, params Params) (*Matrix, error) {
	m, err := NewMatrix(params)
	if err != nil {
		return nil, err
	}
	seen := make([]bool, params.NQual()*params.ReadLen)
	nSeen := 0
	tsvr := tsv.NewReader(r)
	tsvr.Comment = '#'
	for line := 1; ; line++ {
		var row tableRow
		if err := tsvr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("calibration.Read: line %d: %v", line, err)
		}
		if row.Qual < 0 || row.Qual >= params.NQual() || row.Cycle < 0 || row.Cycle >= params.ReadLen {
			return nil, fmt.Errorf("calibration.Read: line %d: quality %d, cycle %d outside table (%d qualities, %d cycles)",
				line, row.Qual, row.Cycle, params.NQual(), params.ReadLen)
		}
		probs := row.probs()
		for i, p := range probs {
			if !(p >= 0 && p <= 1) {
				return nil, fmt.Errorf("calibration.Read: line %d: probability %v out of range", line, p)
			}
			m.p[rowIndex(row.Qual, row.Cycle)+i] = p
		}
		if k := row.Qual*params.ReadLen + row.Cycle; !seen[k] {
			seen[k] = true
			nSeen++
		}
	}
	if missing := len(seen) - nSeen; missing > 0 {
		log.Printf("calibration.Read: %d of %d rows missing; using quality-only estimates for them", missing, len(seen))
	}
	return m, nil
}

// WriteFile writes m to path.
func (m *Matrix) WriteFile(ctx context.Context, path string) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return errors.E(err, "create calibration table", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = m.Write(out.Writer(ctx)); err != nil {
		return errors.E(err, "write calibration table", path)
	}
	return nil
}

// ReadFile loads a table from path.
func ReadFile(ctx context.Context, path string, params Params) (m *Matrix, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, "open calibration table", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	return Read(in.Reader(ctx), params)
}
