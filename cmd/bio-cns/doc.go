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

/*
bio-cns calls a consensus genotype at every position of a reference genome
from position-sorted short-read alignments.  Each position is reported with
its genotype, phred-scaled consensus quality and supporting-base counts.

The alignments are read twice: first to train a table of base substitution
probabilities by quality and cycle (skip with -matrix-in or -no-recal), then
to call.  Settings may also come from a YAML file (-config) and from CNS_*
environment variables; explicit flags take precedence over both.

Output formats:
  text  one tab-separated line per position (default)
  glf   binary genotype likelihoods, one 12-byte record per position
  gpf   as glf, with posterior instead of likelihood margins

Sample usage:
bio-cns \
    -alignments sample.soap \
    -reference hg19.cnsref \
    -variants dbsnp.txt -refine \
    -snp-only \
    -out sample.cns.gz

A FASTA reference can be converted to the faster-loading packed form with
bio-cns-binarize.
*/
package main
