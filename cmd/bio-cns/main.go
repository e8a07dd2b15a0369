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
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cns/pileup/cns"
)

var (
	opts       = cns.DefaultOpts
	configPath = flag.String("config", "", "YAML file with default settings; flags override it")
)

func init() {
	flag.StringVar(&opts.AlignmentPath, "alignments", opts.AlignmentPath, "Input alignments, sorted by chromosome and position (required)")
	flag.StringVar(&opts.AlignmentFormat, "alignment-format", opts.AlignmentFormat, "Alignment format: 'soap' or 'crossbow'")
	flag.StringVar(&opts.ReferencePath, "reference", opts.ReferencePath, "Reference FASTA, or a packed reference ending in .cnsref (required)")
	flag.StringVar(&opts.OutputPath, "out", opts.OutputPath, "Output path; bgzf-compressed if it ends in .gz (required)")
	flag.StringVar(&opts.MatrixInPath, "matrix-in", opts.MatrixInPath, "Load the calibration table instead of training it")
	flag.StringVar(&opts.MatrixOutPath, "matrix-out", opts.MatrixOutPath, "Save the trained calibration table")
	flag.BoolVar(&opts.NoRecal, "no-recal", opts.NoRecal, "Use quality-only substitution probabilities instead of training")
	flag.StringVar(&opts.VariantsPath, "variants", opts.VariantsPath, "Known-variant table")
	flag.StringVar(&opts.RegionPath, "region-file", opts.RegionPath, "Restrict calling to the '<chr> <start> <end>' regions in this file")
	flag.StringVar(&opts.Region, "region", opts.Region, "Restrict calling to <chr>:<1-based first pos>-<last pos>, <chr>:<pos> or <chr>")
	flag.IntVar(&opts.Calibration.QualMin, "qual-min", opts.Calibration.QualMin, "ASCII code of phred quality 0")
	flag.IntVar(&opts.Calibration.QualMax, "qual-max", opts.Calibration.QualMax, "Highest quality character considered")
	flag.IntVar(&opts.Calibration.ReadLen, "read-len", opts.Calibration.ReadLen, "Maximum read length")
	flag.IntVar(&opts.Calibration.MinObs, "min-obs", opts.Calibration.MinObs, "Observations a calibration cell needs before it is trusted")
	flag.Float64Var(&opts.Rates.HomAltNovel, "hom-novel", opts.Rates.HomAltNovel, "Prior rate of novel homozygous SNPs")
	flag.Float64Var(&opts.Rates.HetNovel, "het-novel", opts.Rates.HetNovel, "Prior rate of novel heterozygous SNPs")
	flag.Float64Var(&opts.Rates.HomAltValidated, "hom-validated", opts.Rates.HomAltValidated, "Prior rate of homozygous SNPs at validated known sites")
	flag.Float64Var(&opts.Rates.HetValidated, "het-validated", opts.Rates.HetValidated, "Prior rate of heterozygous SNPs at validated known sites")
	flag.Float64Var(&opts.Rates.HomAltUnvalidated, "hom-unvalidated", opts.Rates.HomAltUnvalidated, "Prior rate of homozygous SNPs at unvalidated known sites")
	flag.Float64Var(&opts.Rates.HetUnvalidated, "het-unvalidated", opts.Rates.HetUnvalidated, "Prior rate of heterozygous SNPs at unvalidated known sites")
	flag.BoolVar(&opts.TransitionDominant, "transition-dominant", opts.TransitionDominant, "Weight transitions over transversions in the novel priors")
	flag.BoolVar(&opts.Refine, "refine", opts.Refine, "Use known-variant allele frequencies as priors; requires -variants")
	flag.BoolVar(&opts.RankSum, "rank-sum", opts.RankSum, "Penalize heterozygous calls whose alleles differ in quality distribution")
	flag.BoolVar(&opts.Monoploid, "monoploid", opts.Monoploid, "Call homozygous genotypes only")
	flag.Float64Var(&opts.PCRDependency, "pcr-dependency", opts.PCRDependency, "Error dependency coefficient for observations sharing a strand and cycle")
	flag.Float64Var(&opts.GlobalDependency, "global-dependency", opts.GlobalDependency, "Error dependency coefficient for repeated observations of a base")
	flag.BoolVar(&opts.SNPOnly, "snp-only", opts.SNPOnly, "Report non-reference calls only")
	flag.BoolVar(&opts.DumpKnown, "dump-known", opts.DumpKnown, "With -snp-only, also report every known-variant position")
	flag.Var(&opts.Format, "format", "Output format: 'text', 'glf' or 'gpf'")
	flag.StringVar(&opts.GLFHeader, "glf-header", opts.GLFHeader, "Extra binary header fields, 'Type1:Data1:Type2:Data2'")
	flag.IntVar(&opts.WinSize, "win-size", opts.WinSize, "Positions called per window")
	flag.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "Log progress")
}

func bioCNSUsage() {
	fmt.Printf("Usage: %s [OPTIONS] -alignments path -reference path -out path\n", os.Args[0])
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioCNSUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unexpected positional arguments %v; please check flag syntax", flag.Args())
	}
	// The config file and environment are loaded after flag parsing, so the
	// explicitly set flags are replayed on top of them.
	explicit := map[string]string{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
	ctx := vcontext.Background()
	if err := cns.LoadOpts(ctx, *configPath, &opts); err != nil {
		log.Fatalf("%v", err)
	}
	for name, value := range explicit {
		if err := flag.Set(name, value); err != nil {
			log.Fatalf("-%s: %v", name, err)
		}
	}
	switch {
	case opts.AlignmentPath == "":
		log.Fatalf("-alignments is required")
	case opts.ReferencePath == "":
		log.Fatalf("-reference is required")
	case opts.OutputPath == "":
		log.Fatalf("-out is required")
	}
	if _, err := cns.Run(ctx, &opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
