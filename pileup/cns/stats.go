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

import "github.com/grailbio/base/log"

// Stats summarizes a consensus run.
type Stats struct {
	// Alignments counts parsed alignment records.
	Alignments int64
	// Unique counts uniquely placed alignments.
	Unique int64
	// Paired and Unpaired split Alignments by mate status.
	Paired   int64
	Unpaired int64

	// PosCalled counts positions examined by the caller.
	PosCalled int64
	// PosKnown counts examined known-variant positions.
	PosKnown int64
	// PosNoUnique counts examined positions without unique coverage.
	PosNoUnique int64
	// PosNoCoverage counts examined positions without any coverage.
	PosNoCoverage int64
	// PosNoCall counts ambiguous reference positions without coverage.
	PosNoCall int64
	// PosNonRef counts non-reference calls.
	PosNonRef int64

	// DuplicateVariants counts known-variant records dropped as duplicates.
	DuplicateVariants int
	// OutOfRangeVariants counts known-variant records positioned outside
	// their chromosome.
	OutOfRangeVariants int
}

// Log writes the summary to the info log.
func (s *Stats) Log() {
	log.Printf("cns: %d alignments (%d unique, %d paired, %d unpaired)", s.Alignments, s.Unique, s.Paired, s.Unpaired)
	log.Printf("cns: %d positions called: %d known variants, %d without unique coverage, %d without coverage, %d uncovered N, %d non-reference",
		s.PosCalled, s.PosKnown, s.PosNoUnique, s.PosNoCoverage, s.PosNoCall, s.PosNonRef)
	if s.DuplicateVariants > 0 {
		log.Printf("cns: %d duplicate known-variant records ignored", s.DuplicateVariants)
	}
	if s.OutOfRangeVariants > 0 {
		log.Printf("cns: %d out-of-range known-variant records ignored", s.OutOfRangeVariants)
	}
}
