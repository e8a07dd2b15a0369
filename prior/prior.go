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

// Package prior assigns prior probabilities to diploid genotypes given the
// reference base and, optionally, a known-variant record.
package prior

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/reference"
)

// Rates are the per-site mutation priors.  Novel rates apply everywhere;
// validated and unvalidated rates only at known-variant sites.
type Rates struct {
	HomAltNovel       float64 `yaml:"hom_alt_novel" envconfig:"HOM_ALT_NOVEL"`
	HetNovel          float64 `yaml:"het_novel" envconfig:"HET_NOVEL"`
	HomAltValidated   float64 `yaml:"hom_alt_validated" envconfig:"HOM_ALT_VALIDATED"`
	HetValidated      float64 `yaml:"het_validated" envconfig:"HET_VALIDATED"`
	HomAltUnvalidated float64 `yaml:"hom_alt_unvalidated" envconfig:"HOM_ALT_UNVALIDATED"`
	HetUnvalidated    float64 `yaml:"het_unvalidated" envconfig:"HET_UNVALIDATED"`
}

// DefaultRates are typical human polymorphism rates.
var DefaultRates = Rates{
	HomAltNovel:       0.0005,
	HetNovel:          0.0010,
	HomAltValidated:   0.05,
	HetValidated:      0.10,
	HomAltUnvalidated: 0.01,
	HetUnvalidated:    0.02,
}

// transitionWeight multiplies the prior of genotypes carrying a transition
// of the reference base.
const transitionWeight = 4

// Table holds the prior of every genotype for every reference code (base
// code, or an ambiguous code >= pileup.BaseN).  Entries for ordered pairs
// with allele1 > allele2 are unused.
type Table struct {
	rates Rates
	p     [pileup.NRefCode][pileup.NGenotypeCode]float64
}

// New builds the table.  If transitionDominant is set, genotypes with an
// allele that is the transition of the reference base are four times as
// likely as the corresponding transversions.
func New(rates Rates, transitionDominant bool) *Table {
	t := &Table{rates: rates}
	for ref := byte(0); ref < pileup.NBase; ref++ {
		for _, g := range pileup.Genotypes {
			a1, a2 := g.Alleles()
			var p float64
			switch {
			case a1 == ref && a2 == ref:
				p = 1
			case a1 == ref || a2 == ref:
				p = rates.HetNovel
			case a1 == a2:
				p = rates.HomAltNovel
			default:
				p = rates.HetNovel * rates.HomAltNovel
			}
			if transitionDominant && (pileup.IsTransition(a1, ref) || pileup.IsTransition(a2, ref)) {
				p *= transitionWeight
			}
			t.p[ref][g] = p
		}
	}
	// An ambiguous reference says nothing about which base is expected.
	for ref := pileup.BaseN; ref < pileup.NRefCode; ref++ {
		for _, g := range pileup.Genotypes {
			p := 1.0
			if !g.IsHom() {
				p = 2 * rates.HetNovel
			}
			t.p[ref][g] = p / 16
		}
	}
	return t
}

// Rates returns the rates the table was built from.
func (t *Table) Rates() Rates { return t.rates }

// Get returns the prior of g at a position whose reference code is ref
// (known-variant flag masked off).
func (t *Table) Get(ref byte, g pileup.Genotype) float64 {
	return t.p[ref&reference.RefMask][g]
}

// Row returns a copy of all genotype priors for ref, suitable for Refine.
func (t *Table) Row(ref byte) [pileup.NGenotypeCode]float64 {
	return t.p[ref&reference.RefMask]
}

// Refine replaces priors in row with ones derived from a known-variant
// record at a site with reference base ref.  Only genotypes whose alleles
// both have positive frequency change.  It returns false, leaving row
// untouched, for indels and for records attesting fewer than two alleles.
func (t *Table) Refine(row *[pileup.NGenotypeCode]float64, v *reference.Variant, ref byte) bool {
	if v.Indel {
		return false
	}
	if v.AlleleCount() <= 1 {
		log.Debug.Printf("prior: variant %s has %d allele(s); keeping novel priors", v.Name, v.AlleleCount())
		return false
	}
	ref &= reference.BaseMask
	het, homAlt := t.rates.HetUnvalidated, t.rates.HomAltUnvalidated
	if v.Validated {
		het, homAlt = t.rates.HetValidated, t.rates.HomAltValidated
	}
	for _, g := range pileup.Genotypes {
		a1, a2 := g.Alleles()
		if v.Freq[a1] <= 0 || v.Freq[a2] <= 0 {
			continue
		}
		if v.Hapmap {
			p := v.Freq[a1] * v.Freq[a2]
			if a1 != a2 {
				p *= 2 * t.rates.HetValidated
			}
			row[g] = p
			continue
		}
		switch {
		case a1 == ref && a2 == ref:
			row[g] = 1
		case a1 == a2:
			row[g] = homAlt
		default:
			row[g] = het
		}
	}
	return true
}
