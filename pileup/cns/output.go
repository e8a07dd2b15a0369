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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/reference"
)

// Encoder renders consensus records.  Positions are reported in reference
// order; BeginChromosome precedes the first record of each chromosome.
type Encoder interface {
	// BeginChromosome starts the records for chr.
	BeginChromosome(chr *reference.Chromosome) error
	// NoCoverage reports a known-variant position without unique coverage.
	NoCoverage(chr string, pos pileup.PosType, ref byte) error
	// NoCall reports an ambiguous reference position without coverage.
	NoCall(chr string, pos pileup.PosType) error
	// Call reports a consensus call.
	Call(c *Call) error
	// Flush writes buffered records.
	Flush() error
}

// TextEncoder writes the tab-separated consensus table, one line per
// record:
//
//   chr pos ref genotype quality
//   base1 avgQual1 uniqueCount1 allCount1
//   base2 avgQual2 uniqueCount2 allCount2
//   depth pairedDepth rankSumP copyNumber known
//
// Known-variant positions reported only for their evidence carry a leading
// "K" column.
type TextEncoder struct {
	w *tsv.Writer
}

// NewTextEncoder creates a TextEncoder writing to w.
func NewTextEncoder(w io.Writer) *TextEncoder {
	return &TextEncoder{w: tsv.NewWriter(w)}
}

// BeginChromosome implements Encoder.
func (e *TextEncoder) BeginChromosome(*reference.Chromosome) error { return nil }

// NoCoverage implements Encoder.
func (e *TextEncoder) NoCoverage(chr string, pos pileup.PosType, ref byte) error {
	e.w.WriteByte('K')
	e.w.WriteString(chr)
	e.w.WriteUint32(uint32(pos + 1))
	e.w.WriteByte(pileup.EnumToASCIITable[ref])
	e.w.WriteString("no-coverage")
	return e.w.EndLine()
}

// NoCall implements Encoder.
func (e *TextEncoder) NoCall(chr string, pos pileup.PosType) error {
	e.w.WriteString(chr)
	e.w.WriteUint32(uint32(pos + 1))
	e.w.WriteString("N\tN\t0\tN\t0\t0\t0\tN\t0\t0\t0\t0\t1.000\t255.000\t0")
	return e.w.EndLine()
}

func (e *TextEncoder) writeBase(s *Site, b byte) {
	e.w.WriteByte(pileup.EnumToASCIITable[b])
	avg := 0
	if s.QualSum[b] != 0 {
		avg = s.QualSum[b] / s.CountUnique[b]
	}
	e.w.WriteInt64(int64(avg))
	e.w.WriteInt64(int64(s.CountUnique[b]))
	e.w.WriteInt64(int64(s.CountAll[b]))
}

// formatPoint renders v with six significant digits, keeping trailing
// zeros.
func formatPoint(v float64) string {
	return fmt.Sprintf("%#.6g", v)
}

// Call implements Encoder.
func (e *TextEncoder) Call(c *Call) error {
	s := c.Site
	if c.Evidence {
		e.w.WriteByte('K')
	}
	e.w.WriteString(c.Chr)
	e.w.WriteUint32(uint32(c.Pos + 1))
	b1, b2 := c.Bases[0], c.Bases[1]
	if b1 >= pileup.BaseN {
		e.w.WriteString("N\tN\t0\tN\t0\t0\t0\tN\t0\t0\t0\t0\t0\t1.000\t255.000\t0")
		return e.w.EndLine()
	}
	e.w.WriteByte(pileup.EnumToASCIITable[c.Ref])
	e.w.WriteByte(c.Genotype.Abbrev())
	e.w.WriteInt64(int64(c.Quality))
	e.writeBase(s, b1)
	if b2 < pileup.BaseN {
		e.writeBase(s, b2)
	} else {
		e.w.WriteString("N\t0\t0\t0")
	}
	e.w.WriteInt64(int64(s.Depth))
	e.w.WriteInt64(int64(s.DepthPaired))
	e.w.WriteString(formatPoint(c.Rank))
	copyNum := 255.0
	if s.Depth > 0 {
		copyNum = float64(s.Repeat) / float64(s.Depth)
	}
	e.w.WriteString(formatPoint(copyNum))
	if c.Known {
		e.w.WriteByte('1')
	} else {
		e.w.WriteByte('0')
	}
	return e.w.EndLine()
}

// Flush implements Encoder.
func (e *TextEncoder) Flush() error { return e.w.Flush() }

// GLF record constants.
var (
	// glfBaseCode maps reference codes to the GLF base bitmask (A=1, C=2,
	// G=4, T=8, N=15).
	glfBaseCode = [pileup.NRefCode]byte{1, 2, 8, 4, 15, 15, 15, 15}
	// glfGenotypeOrder is the order of the ten scores in a record:
	// AA CC GG TT AC AG AT CG CT GT.
	glfGenotypeOrder = [10]pileup.Genotype{0, 5, 15, 10, 1, 3, 2, 7, 6, 11}
)

const (
	glfRecordLen = 12
	// glfMaxScoreDiff is the largest log10 margin that is not saturated.
	glfMaxScoreDiff = 25.5
)

// GLFEncoder writes the binary genotype likelihood format, or its
// posterior variant.  All integers are little-endian.
//
//   magic "glf" or "gpf", int32 major version 0, int32 minor version 0
//   per extra header field: int32 len+1, bytes, NUL
//   int32 12, "CHROMOSOMES\0", int32 number of chromosomes
//   per chromosome: int32 len(name)+1, name, NUL, int32 length
//     per position: 2 bytes (base<<4 | depth>>4, depth<<4 | copy number)
//                   10 bytes of score margins, in glfGenotypeOrder
type GLFEncoder struct {
	w         *bufio.Writer
	posterior bool
	buf       [glfRecordLen]byte
}

// NewGLFEncoder writes the file header to w and returns an encoder.  If
// posterior is set, records carry posterior instead of likelihood margins.
// header is a colon-separated list of extra header fields.
func NewGLFEncoder(w io.Writer, posterior bool, header string, nChr int) (*GLFEncoder, error) {
	e := &GLFEncoder{w: bufio.NewWriter(w), posterior: posterior}
	magic := "glf"
	if posterior {
		magic = "gpf"
	}
	e.w.WriteString(magic)
	e.writeInt32(0)
	e.writeInt32(0)
	// Every field between separators is written, empty ones included; only
	// an empty remainder after the last separator is dropped.
	fields := strings.Split(header, ":")
	if fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	for _, field := range fields {
		e.writeString(field)
	}
	e.writeString("CHROMOSOMES")
	e.writeInt32(int32(nChr))
	return e, e.w.Flush()
}

func (e *GLFEncoder) writeInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.w.Write(b[:])
}

// writeString writes a length-prefixed NUL-terminated string.
func (e *GLFEncoder) writeString(s string) {
	e.writeInt32(int32(len(s) + 1))
	e.w.WriteString(s)
	e.w.WriteByte(0)
}

// BeginChromosome implements Encoder.
func (e *GLFEncoder) BeginChromosome(chr *reference.Chromosome) error {
	e.writeString(chr.Name())
	e.writeInt32(int32(chr.Len()))
	return nil
}

// NoCoverage implements Encoder.  It is never used in binary output.
func (e *GLFEncoder) NoCoverage(string, pileup.PosType, byte) error { return nil }

// NoCall implements Encoder.
func (e *GLFEncoder) NoCall(string, pileup.PosType) error {
	e.buf = [glfRecordLen]byte{0xf0, 0x0f}
	_, err := e.w.Write(e.buf[:])
	return err
}

// copyNumber is the GLF copy-number nibble: the integer log2 of the mean
// placement count, 15 when uncovered.
func copyNumber(s *Site) byte {
	if s.Depth == 0 {
		return 15
	}
	n := int(math.Log2(float64(s.Repeat / s.Depth)))
	if n > 15 {
		n = 15
	}
	return byte(n)
}

// Call implements Encoder.
func (e *GLFEncoder) Call(c *Call) error {
	s := c.Site
	depth := s.Depth
	if depth > 255 {
		depth = 255
	}
	e.buf[0] = glfBaseCode[c.Ref&reference.RefMask]<<4 | byte(depth>>4)&0xf
	e.buf[1] = byte(depth&0xf)<<4 | copyNumber(s)&0xf
	scores := &c.Likelihood
	if e.posterior {
		scores = &c.Posterior
	}
	best := pileup.Genotypes[0]
	for _, g := range pileup.Genotypes {
		if scores[g] > scores[best] {
			best = g
		}
	}
	for i, g := range glfGenotypeOrder {
		diff := scores[best] - scores[g]
		if diff > glfMaxScoreDiff || math.IsNaN(diff) {
			e.buf[2+i] = 255
		} else {
			e.buf[2+i] = byte(10 * diff)
		}
	}
	_, err := e.w.Write(e.buf[:])
	return err
}

// Flush implements Encoder.
func (e *GLFEncoder) Flush() error { return e.w.Flush() }
