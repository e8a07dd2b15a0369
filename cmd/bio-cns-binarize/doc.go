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
bio-cns-binarize converts a FASTA reference into the packed form read by
bio-cns: 4 bits per base, memory-mapped at load time.  The output path must
end in .cnsref for bio-cns to recognize it.

Sample usage:
bio-cns-binarize hg19.fa hg19.cnsref
*/
package main
