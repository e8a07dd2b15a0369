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
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cns/calibration"
	"github.com/grailbio/cns/encoding/alignment"
	"github.com/grailbio/cns/prior"
	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// Format selects the consensus output encoding.
type Format int

const (
	// FormatText is the tab-separated consensus table.
	FormatText Format = iota
	// FormatGLF is the binary per-position genotype likelihood format.
	FormatGLF
	// FormatGPF is FormatGLF with posterior instead of likelihood scores.
	FormatGPF
)

var formatNames = [...]string{"text", "glf", "gpf"}

// ParseFormat converts a format name ("text", "glf", "gpf") to a Format.
func ParseFormat(s string) (Format, error) {
	for i, name := range formatNames {
		if strings.EqualFold(s, name) {
			return Format(i), nil
		}
	}
	return FormatText, fmt.Errorf("cns: unknown output format %q", s)
}

// String implements flag.Value.
func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// Set implements flag.Value.
func (f *Format) Set(s string) (err error) {
	*f, err = ParseFormat(s)
	return
}

// UnmarshalText lets envconfig decode format names.
func (f *Format) UnmarshalText(text []byte) error { return f.Set(string(text)) }

// UnmarshalYAML decodes format names in config files.
func (f *Format) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return f.Set(s)
}

// Opts configures a consensus run.  Zero values of the path fields mean
// "not used".
type Opts struct {
	// Input alignments, sorted by chromosome and position.
	AlignmentPath   string `yaml:"alignments" envconfig:"ALIGNMENTS"`
	AlignmentFormat string `yaml:"alignment_format" envconfig:"ALIGNMENT_FORMAT"`
	// ReferencePath is a FASTA file, or a packed image written by
	// bio-cns-binarize when it ends in ".cnsref".
	ReferencePath string `yaml:"reference" envconfig:"REFERENCE"`
	OutputPath    string `yaml:"output" envconfig:"OUTPUT"`

	// MatrixInPath loads a calibration table instead of training one.
	MatrixInPath string `yaml:"matrix_in" envconfig:"MATRIX_IN"`
	// MatrixOutPath saves the trained calibration table.
	MatrixOutPath string `yaml:"matrix_out" envconfig:"MATRIX_OUT"`
	// NoRecal skips training and uses quality-only error rates.
	NoRecal bool `yaml:"no_recal" envconfig:"NO_RECAL"`

	VariantsPath string `yaml:"variants" envconfig:"VARIANTS"`
	// RegionPath and Region restrict calling to a set of regions.  At most
	// one may be set.
	RegionPath string `yaml:"region_file" envconfig:"REGION_FILE"`
	Region     string `yaml:"region" envconfig:"REGION"`

	Calibration        calibration.Params `yaml:"calibration"`
	Rates              prior.Rates        `yaml:"rates"`
	TransitionDominant bool               `yaml:"transition_dominant" envconfig:"TRANSITION_DOMINANT"`
	// Refine uses known-variant records to replace the novel priors.
	Refine    bool `yaml:"refine" envconfig:"REFINE"`
	RankSum   bool `yaml:"rank_sum" envconfig:"RANK_SUM"`
	Monoploid bool `yaml:"monoploid" envconfig:"MONOPLOID"`

	// PCRDependency and GlobalDependency are error dependency coefficients
	// in (0, 1]: 1 treats repeated observations as independent.
	PCRDependency    float64 `yaml:"pcr_dependency" envconfig:"PCR_DEPENDENCY"`
	GlobalDependency float64 `yaml:"global_dependency" envconfig:"GLOBAL_DEPENDENCY"`

	// SNPOnly restricts text output to non-reference calls.
	SNPOnly bool `yaml:"snp_only" envconfig:"SNP_ONLY"`
	// DumpKnown additionally reports every known-variant position in
	// SNPOnly mode.
	DumpKnown bool   `yaml:"dump_known" envconfig:"DUMP_KNOWN"`
	Format    Format `yaml:"format" envconfig:"FORMAT"`
	// GLFHeader holds extra binary header fields, "Type1:Data1:Type2:...".
	GLFHeader string `yaml:"glf_header" envconfig:"GLF_HEADER"`

	WinSize int  `yaml:"win_size" envconfig:"WIN_SIZE"`
	Verbose bool `yaml:"verbose" envconfig:"VERBOSE"`
}

// DefaultOpts holds the defaults for every tunable.
var DefaultOpts = Opts{
	AlignmentFormat:  alignment.SOAP.String(),
	Calibration:      calibration.DefaultParams,
	Rates:            prior.DefaultRates,
	PCRDependency:    0.5,
	GlobalDependency: 0.9,
	Format:           FormatText,
	WinSize:          1000,
}

// regionOnly returns true if calling is restricted to regions.
func (o *Opts) regionOnly() bool {
	return o.RegionPath != "" || o.Region != ""
}

// needsEveryPosition returns true if the output has a record for positions
// without usable evidence.
func (o *Opts) needsEveryPosition() bool {
	return o.Format != FormatText || !o.SNPOnly || o.DumpKnown
}

// Validate checks option consistency.
func (o *Opts) Validate() error {
	if err := o.Calibration.Validate(); err != nil {
		return err
	}
	if _, err := alignment.ParseFormat(o.AlignmentFormat); err != nil {
		return err
	}
	if o.MatrixInPath != "" && (o.MatrixOutPath != "" || o.NoRecal) {
		return fmt.Errorf("cns: a calibration table cannot be loaded together with -matrix-out or -no-recal")
	}
	if o.RegionPath != "" && o.Region != "" {
		return fmt.Errorf("cns: at most one of -region-file and -region may be set")
	}
	if o.Format < FormatText || o.Format > FormatGPF {
		return fmt.Errorf("cns: unknown output format %d", o.Format)
	}
	if o.Format != FormatText && (o.SNPOnly || o.regionOnly()) {
		// Binary output has one record for every reference position.
		return fmt.Errorf("cns: binary output cannot be combined with SNP-only or region-restricted calling")
	}
	if o.DumpKnown && !o.SNPOnly {
		return fmt.Errorf("cns: -dump-known requires -snp-only")
	}
	if o.Refine && o.VariantsPath == "" {
		return fmt.Errorf("cns: -refine requires a known-variant file")
	}
	for _, d := range []float64{o.PCRDependency, o.GlobalDependency} {
		if !(d > 0 && d <= 1) {
			return fmt.Errorf("cns: dependency coefficient %v outside (0, 1]", d)
		}
	}
	if o.WinSize <= 0 {
		return fmt.Errorf("cns: window size %d must be positive", o.WinSize)
	}
	for _, r := range []float64{o.Rates.HomAltNovel, o.Rates.HetNovel, o.Rates.HomAltValidated,
		o.Rates.HetValidated, o.Rates.HomAltUnvalidated, o.Rates.HetUnvalidated} {
		if r < 0 || r > 1 || math.IsNaN(r) {
			return fmt.Errorf("cns: prior rate %v outside [0, 1]", r)
		}
	}
	return nil
}

// LoadOpts overlays a YAML config file (if path is nonempty) and then
// CNS_-prefixed environment variables onto opts.
func LoadOpts(ctx context.Context, path string, opts *Opts) (err error) {
	if path != "" {
		var in file.File
		if in, err = file.Open(ctx, path); err != nil {
			return errors.E(err, "open config", path)
		}
		defer file.CloseAndReport(ctx, in, &err)
		if err = yaml.NewDecoder(in.Reader(ctx)).Decode(opts); err != nil {
			return errors.E(err, "parse config", path)
		}
	}
	return envconfig.Process("cns", opts)
}
