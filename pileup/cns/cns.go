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

// Package cns calls a consensus genotype at every reference position from
// sorted short-read alignments.  Per-position evidence is combined with a
// calibrated base substitution table, genotype priors and, optionally, a
// rank-sum test on base qualities.
package cns

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/calibration"
	"github.com/grailbio/cns/encoding/alignment"
	"github.com/grailbio/cns/interval"
	"github.com/grailbio/cns/prior"
	"github.com/grailbio/cns/ranksum"
	"github.com/grailbio/cns/reference"
	"github.com/grailbio/hts/bgzf"
)

// LoadReference opens a FASTA file or a packed image.
func LoadReference(ctx context.Context, path string) (*reference.Genome, error) {
	if strings.HasSuffix(path, reference.PackedSuffix) {
		return reference.MapPacked(path)
	}
	return reference.Load(ctx, path)
}

// loadRegions restricts genome to the configured regions, if any.
func loadRegions(ctx context.Context, opts *Opts, genome *reference.Genome) error {
	var entries []interval.Entry
	switch {
	case opts.RegionPath != "":
		var err error
		if entries, err = interval.ReadRegions(ctx, opts.RegionPath); err != nil {
			return errors.E(err, "read regions", opts.RegionPath)
		}
	case opts.Region != "":
		e, err := interval.ParseRegionString(opts.Region)
		if err != nil {
			return err
		}
		entries = []interval.Entry{e}
	default:
		return nil
	}
	n, err := genome.ApplyRegions(entries, opts.Calibration.ReadLen)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cns: none of the %d requested regions is on a reference chromosome", len(entries))
	}
	log.Printf("cns: restricted calling to %d region(s)", n)
	return nil
}

// Train builds a calibration table from a pass over the alignments.
func Train(ctx context.Context, opts *Opts, genome *reference.Genome) (*calibration.Matrix, error) {
	format, err := alignment.ParseFormat(opts.AlignmentFormat)
	if err != nil {
		return nil, err
	}
	trainer, err := calibration.NewTrainer(opts.Calibration)
	if err != nil {
		return nil, err
	}
	err = alignment.Open(ctx, opts.AlignmentPath, format, func(sc *alignment.Scanner) error {
		for sc.Scan() {
			rec := sc.Record()
			if rec.Pos() < 0 {
				continue
			}
			chr, ok := genome.Chromosome(rec.ChrName())
			if !ok {
				return fmt.Errorf("cns.Train: alignment to unknown chromosome %s", rec.ChrName())
			}
			if err := trainer.Add(rec, chr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("cns: trained calibration table on %d bases", trainer.NumBases())
	return trainer.Matrix(), nil
}

// loadMatrix returns the calibration table the options ask for.
func loadMatrix(ctx context.Context, opts *Opts, genome *reference.Genome) (m *calibration.Matrix, err error) {
	switch {
	case opts.MatrixInPath != "":
		m, err = calibration.ReadFile(ctx, opts.MatrixInPath, opts.Calibration)
	case opts.NoRecal:
		m, err = calibration.NewMatrix(opts.Calibration)
	default:
		m, err = Train(ctx, opts, genome)
	}
	if err != nil {
		return nil, err
	}
	if opts.MatrixOutPath != "" {
		if err = m.WriteFile(ctx, opts.MatrixOutPath); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// newEncoder creates the encoder for opts writing to w.
func newEncoder(opts *Opts, w io.Writer, nChr int) (Encoder, error) {
	switch opts.Format {
	case FormatGLF, FormatGPF:
		return NewGLFEncoder(w, opts.Format == FormatGPF, opts.GLFHeader, nChr)
	default:
		return NewTextEncoder(w), nil
	}
}

// Run executes a full consensus run: load the reference and annotations,
// obtain a calibration table, then call every position.
func Run(ctx context.Context, opts *Opts) (stats Stats, err error) {
	if err = opts.Validate(); err != nil {
		return
	}
	format, err := alignment.ParseFormat(opts.AlignmentFormat)
	if err != nil {
		return
	}
	genome, err := LoadReference(ctx, opts.ReferencePath)
	if err != nil {
		return
	}
	defer func() {
		if e := genome.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if err = loadRegions(ctx, opts, genome); err != nil {
		return
	}
	if opts.VariantsPath != "" {
		var vs reference.VariantStats
		if vs, err = reference.LoadVariants(ctx, opts.VariantsPath, genome); err != nil {
			return
		}
		stats.DuplicateVariants = vs.Duplicate
		stats.OutOfRangeVariants = vs.OutOfRange
		log.Printf("cns: loaded %d known variants", vs.Loaded)
	}
	matrix, err := loadMatrix(ctx, opts, genome)
	if err != nil {
		return
	}
	priors := prior.New(opts.Rates, opts.TransitionDominant)
	var ranks *ranksum.Table
	if opts.RankSum {
		ranks = ranksum.NewTable()
	}

	var out file.File
	if out, err = file.Create(ctx, opts.OutputPath); err != nil {
		err = errors.E(err, "create output", opts.OutputPath)
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if strings.HasSuffix(opts.OutputPath, ".gz") {
		bw := bgzf.NewWriter(w, runtime.NumCPU())
		defer func() {
			if e := bw.Close(); e != nil && err == nil {
				err = e
			}
		}()
		w = bw
	}
	enc, err := newEncoder(opts, w, len(genome.Chromosomes()))
	if err != nil {
		return
	}
	caller, err := NewCaller(opts, genome, matrix, priors, ranks, enc)
	if err != nil {
		return
	}
	err = alignment.Open(ctx, opts.AlignmentPath, format, func(sc *alignment.Scanner) error {
		for sc.Scan() {
			if err := caller.Add(sc.Record()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return
	}
	if err = caller.Finish(); err != nil {
		return
	}
	dup, outOfRange := stats.DuplicateVariants, stats.OutOfRangeVariants
	stats = caller.Stats()
	stats.DuplicateVariants, stats.OutOfRangeVariants = dup, outOfRange
	stats.Log()
	return
}
