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
package reference

import (
	"bytes"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/cns/interval"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeq(r *rand.Rand, n int) string {
	const letters = "ACGTNacgtn"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

func decode(code byte) byte {
	return pileup.EnumToASCIITable[code&RefMask]
}

func TestBinarizeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 15, 16, 17, 1000} {
		seq := randomSeq(r, n)
		c := NewChromosome("chr", seq)
		require.Equal(t, PosType(n), c.Len())
		upper := strings.ToUpper(seq)
		for i := 0; i < n; i++ {
			code := c.BaseAt(PosType(i))
			assert.Equal(t, upper[i], decode(code), "pos %d", i)
			assert.Zero(t, code&VariantFlag)
			assert.Equal(t, upper[i] == 'N', code&NFlag != 0)
		}
		assert.Equal(t, upper, string(c.Seq()))
	}
}

func TestSeqIgnoresVariantFlag(t *testing.T) {
	c := NewChromosome("chr", "acgTTGCAnACGTTGCAa")
	require.True(t, c.MarkVariant(0))
	require.True(t, c.MarkVariant(17))
	assert.Equal(t, "ACGTTGCANACGTTGCAA", string(c.Seq()))
	assert.Equal(t, VariantFlag, c.BaseAt(17)&VariantFlag)
	assert.Equal(t, byte(pileup.BaseA), c.BaseAt(17)&RefMask)
}

func TestAmbiguousLetters(t *testing.T) {
	c := NewChromosome("chr", "RYKMSW-")
	for i := PosType(0); i < c.Len(); i++ {
		assert.Equal(t, NFlag, c.BaseAt(i))
	}
}

func TestMarkVariant(t *testing.T) {
	seq := "ACGTACGTACGTACGTACGT"
	c := NewChromosome("chr", seq)
	before := make([]byte, len(seq))
	for i := range before {
		before[i] = c.BaseAt(PosType(i))
	}
	assert.True(t, c.MarkVariant(16))
	assert.False(t, c.MarkVariant(16))
	for i := range before {
		got := c.BaseAt(PosType(i))
		if i == 16 {
			assert.Equal(t, before[i]|VariantFlag, got)
			continue
		}
		assert.Equal(t, before[i], got, "pos %d", i)
	}
}

func TestBaseAtOutOfRange(t *testing.T) {
	c := NewChromosome("chr", "ACGT")
	assert.Panics(t, func() { c.BaseAt(4) })
	assert.Panics(t, func() { c.BaseAt(-1) })
}

func TestRegions(t *testing.T) {
	c := NewChromosome("chr", strings.Repeat("A", 200))
	for pos := PosType(0); pos < c.Len(); pos++ {
		require.True(t, c.InRegion(pos))
	}
	require.NoError(t, c.SetRegion(-10, 5))
	require.NoError(t, c.SetRegion(3, 8))
	require.NoError(t, c.SetRegion(190, 1000))
	for pos := PosType(0); pos < c.Len(); pos++ {
		want := pos <= 8 || pos >= 190
		assert.Equal(t, want, c.InRegion(pos), "pos %d", pos)
	}
	assert.Equal(t, []Region{{0, 5}, {3, 8}, {190, 199}}, c.Regions())
	assert.Error(t, c.SetRegion(50, 40))
	assert.Error(t, c.SetRegion(300, 400))
}

func TestApplyRegions(t *testing.T) {
	g, err := NewFromChromosomes([]*Chromosome{
		NewChromosome("chr1", strings.Repeat("C", 100)),
		NewChromosome("chr2", strings.Repeat("G", 100)),
	})
	require.NoError(t, err)
	n, err := g.ApplyRegions([]interval.Entry{
		{ChrName: "chr1", Start0: 50, End: 60},
		{ChrName: "chrX", Start0: 0, End: 10},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	chr1, _ := g.Chromosome("chr1")
	chr2, _ := g.Chromosome("chr2")
	assert.Equal(t, []Region{{40, 59}}, chr1.Regions())
	assert.False(t, chr1.InRegion(39))
	assert.True(t, chr1.InRegion(40))
	assert.True(t, chr1.InRegion(59))
	assert.False(t, chr1.InRegion(60))
	assert.True(t, chr2.InRegion(0))
}

func TestDuplicateChromosome(t *testing.T) {
	_, err := NewFromChromosomes([]*Chromosome{NewChromosome("a", "A"), NewChromosome("a", "C")})
	assert.Error(t, err)
}

func TestVariants(t *testing.T) {
	g, err := NewFromChromosomes([]*Chromosome{NewChromosome("chr1", strings.Repeat("ACTG", 10))})
	require.NoError(t, err)
	table := "# chr\tpos\thapmap\tvalidated\tindel\tA\tC\tT\tG\tname\n" +
		"chr1\t5\t1\t1\t0\t0.7\t0\t0\t0.3\trs1\n" +
		"chr1\t12\t0\t1\t0\t0\t0.5\t0.5\t0\trs2\n" +
		"chr1\t5\t0\t0\t0\t0.5\t0.5\t0\t0\trs3\n" +
		"chr9\t1\t0\t0\t0\t1\t0\t0\t0\trs4\n" +
		"chr1\t41\t0\t1\t0\t1\t0\t0\t0\trs5\n" +
		"chr1\t0\t0\t1\t0\t1\t0\t0\t0\trs6\n"
	stats, err := ReadVariants(strings.NewReader(table), g)
	require.NoError(t, err)
	assert.Equal(t, VariantStats{Loaded: 2, Duplicate: 1, UnknownChr: 1, OutOfRange: 2}, stats)

	chr1, _ := g.Chromosome("chr1")
	assert.Equal(t, 2, chr1.NumVariants())
	assert.NotZero(t, chr1.BaseAt(4)&VariantFlag)
	v := chr1.Variant(4)
	assert.Equal(t, "rs1", v.Name)
	assert.True(t, v.Hapmap)
	assert.Equal(t, [4]float64{0.7, 0, 0, 0.3}, v.Freq)
	assert.Equal(t, 2, v.AlleleCount())
	assert.Equal(t, "rs2", chr1.Variant(11).Name)
	assert.Panics(t, func() { chr1.Variant(0) })
}

func TestPackedRoundTrip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	r := rand.New(rand.NewSource(2))
	src, err := NewFromChromosomes([]*Chromosome{
		NewChromosome("chr1", randomSeq(r, 1001)),
		NewChromosome("chrM", randomSeq(r, 16)),
		NewChromosome("empty", ""),
	})
	require.NoError(t, err)
	chr1, _ := src.Chromosome("chr1")
	chr1.MarkVariant(7)

	var buf bytes.Buffer
	require.NoError(t, WritePacked(&buf, src))
	path := filepath.Join(tmpdir, "ref.cnsref")
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	g, err := MapPacked(path)
	require.NoError(t, err)
	require.Len(t, g.Chromosomes(), 3)
	for i, want := range src.Chromosomes() {
		got := g.Chromosomes()[i]
		require.Equal(t, want.Name(), got.Name())
		require.Equal(t, want.Len(), got.Len())
		for pos := PosType(0); pos < want.Len(); pos++ {
			assert.Equal(t, want.BaseAt(pos)&RefMask, got.BaseAt(pos))
		}
		assert.Equal(t, want.Seq(), got.Seq())
	}
	// Variant marking on the mapping is private to this process.
	mapped, _ := g.Chromosome("chr1")
	assert.True(t, mapped.MarkVariant(7))
	require.NoError(t, g.Close())
	onDisk, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), onDisk)
}

func TestPackedChecksum(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	src, err := NewFromChromosomes([]*Chromosome{NewChromosome("chr1", strings.Repeat("ACGT", 64))})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WritePacked(&buf, src))
	data := buf.Bytes()
	data[len(data)-16] ^= 0xff
	path := filepath.Join(tmpdir, "bad.cnsref")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	_, err = MapPacked(path)
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	g, err := Read(strings.NewReader(">chr1 first\nACGT\nNa\n>chr2\nTTG\n"))
	require.NoError(t, err)
	require.Len(t, g.Chromosomes(), 2)
	chr1, ok := g.Chromosome("chr1")
	require.True(t, ok)
	require.Equal(t, PosType(6), chr1.Len())
	var got []byte
	for pos := PosType(0); pos < chr1.Len(); pos++ {
		got = append(got, decode(chr1.BaseAt(pos)))
	}
	assert.Equal(t, "ACGTNA", string(got))
	_, ok = g.Chromosome("chr3")
	assert.False(t, ok)

	_, err = Read(strings.NewReader(">a\nA\n>a\nC\n"))
	assert.Error(t, err)
}
