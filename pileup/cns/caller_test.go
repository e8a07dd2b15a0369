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
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/cns/calibration"
	"github.com/grailbio/cns/encoding/alignment"
	"github.com/grailbio/cns/pileup"
	"github.com/grailbio/cns/prior"
	"github.com/grailbio/cns/ranksum"
	"github.com/grailbio/cns/reference"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReadLen = 32
	// testPos is the 0-based position most tests pile reads onto.  The
	// reference base there is A.
	testPos = 40
)

var testRanks = ranksum.NewTable()

func testOpts() *Opts {
	opts := DefaultOpts
	opts.Calibration = calibration.Params{QualMin: '@', QualMax: '@' + 40, ReadLen: testReadLen, MinObs: 10}
	opts.WinSize = 50
	return &opts
}

// testSequence returns n bases of a period-8 pattern.
func testSequence(n int) string {
	return strings.Repeat("ACGTTGCA", (n+7)/8)[:n]
}

func newCaller(t *testing.T, opts *Opts, chrs ...*reference.Chromosome) (*Caller, *bytes.Buffer) {
	genome, err := reference.NewFromChromosomes(chrs)
	require.NoError(t, err)
	m, err := calibration.NewMatrix(opts.Calibration)
	require.NoError(t, err)
	var ranks *ranksum.Table
	if opts.RankSum {
		ranks = testRanks
	}
	buf := &bytes.Buffer{}
	enc, err := newEncoder(opts, buf, len(chrs))
	require.NoError(t, err)
	c, err := NewCaller(opts, genome, m, prior.New(opts.Rates, opts.TransitionDominant), ranks, enc)
	require.NoError(t, err)
	return c, buf
}

// newRead creates a unique forward read with all qualities q.
func newRead(chr string, pos int, seq string, q int) *alignment.Read {
	return &alignment.Read{
		Name:  fmt.Sprintf("%s_%d", chr, pos),
		Chr:   chr,
		Pos0:  pileup.PosType(pos),
		Dir:   pileup.StrandFwd,
		Seq:   []byte(seq),
		Quals: bytes.Repeat([]byte{byte('@' + q)}, len(seq)),
		NHits: 1,
	}
}

// stackedReads returns n reference-matching reads of length readLen, the
// i'th starting i bases before testPos so that every read covers testPos
// at a different cycle.
func stackedReads(seq string, n, readLen int) []*alignment.Read {
	var reads []*alignment.Read
	for k := n - 1; k >= 0; k-- {
		start := testPos - k
		reads = append(reads, newRead("chr1", start, seq[start:start+readLen], 30))
	}
	return reads
}

// hetReads returns twelve reads covering testPos: six show the reference A
// at quality 30, six show C at quality 15.
func hetReads(seq string) []*alignment.Read {
	reads := stackedReads(seq, 12, 16)
	for _, r := range reads {
		k := testPos - int(r.Pos0)
		if k >= 6 {
			r.Seq[k] = 'C'
			r.Quals[k] = '@' + 15
		}
	}
	return reads
}

func run(t *testing.T, c *Caller, reads []*alignment.Read) {
	for _, r := range reads {
		require.NoError(t, c.Add(r))
	}
	require.NoError(t, c.Finish())
}

func outputLines(buf *bytes.Buffer) [][]string {
	var lines [][]string
	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if line != "" {
			lines = append(lines, strings.Split(line, "\t"))
		}
	}
	return lines
}

// lineAt returns the record for 0-based pos, without any "K" column.
func lineAt(t *testing.T, lines [][]string, pos int) []string {
	want := strconv.Itoa(pos + 1)
	for _, l := range lines {
		if l[0] == "K" {
			l = l[1:]
		}
		if l[1] == want {
			return l
		}
	}
	require.Failf(t, "missing record", "no output line for position %d", pos+1)
	return nil
}

func qualityOf(t *testing.T, fields []string) int {
	q, err := strconv.Atoi(fields[4])
	require.NoError(t, err)
	return q
}

func TestCallerHomozygous(t *testing.T) {
	seq := []byte(testSequence(100))
	seq[95] = 'N'
	chr := reference.NewChromosome("chr1", string(seq))
	c, buf := newCaller(t, testOpts(), chr)
	run(t, c, stackedReads(string(seq), 10, 20))

	lines := outputLines(buf)
	require.Len(t, lines, 100)
	for i, l := range lines {
		expect.EQ(t, l[0], "chr1")
		expect.EQ(t, l[1], strconv.Itoa(i+1))
	}

	l := lineAt(t, lines, testPos)
	expect.EQ(t, l[2:4], []string{"A", "A"})
	q := qualityOf(t, l)
	assert.True(t, q >= 55 && q <= 62, "quality %d", q)
	expect.EQ(t, l[5:], []string{"A", "30", "10", "10", "G", "0", "0", "0", "10", "0", "1.00000", "1.00000", "0"})

	// Uncovered reference base.
	expect.EQ(t, strings.Join(lines[0], "\t"), "chr1\t1\tA\tA\t1\tA\t0\t0\t0\tT\t0\t0\t0\t0\t0\t1.00000\t255.000\t0")
	// Uncovered N.
	expect.EQ(t, strings.Join(lines[95], "\t"), "chr1\t96\tN\tN\t0\tN\t0\t0\t0\tN\t0\t0\t0\t0\t1.000\t255.000\t0")

	stats := c.Stats()
	expect.EQ(t, stats.Alignments, int64(10))
	expect.EQ(t, stats.Unique, int64(10))
	expect.EQ(t, stats.Unpaired, int64(10))
	expect.EQ(t, stats.PosCalled, int64(100))
	expect.EQ(t, stats.PosNoCall, int64(1))
	// Reads cover positions 31-59.
	expect.EQ(t, stats.PosNoCoverage, int64(71))
	expect.EQ(t, stats.PosNonRef, int64(0))
}

func TestCallerCountsNoCallInSNPOnly(t *testing.T) {
	seq := []byte(testSequence(100))
	seq[95] = 'N'
	opts := testOpts()
	opts.SNPOnly = true
	c, buf := newCaller(t, opts, reference.NewChromosome("chr1", string(seq)))
	run(t, c, stackedReads(string(seq), 10, 20))
	expect.EQ(t, buf.Len(), 0)
	stats := c.Stats()
	expect.EQ(t, stats.PosCalled, int64(100))
	expect.EQ(t, stats.PosNoCall, int64(1))
	expect.EQ(t, stats.PosNoCoverage, int64(71))
}

func TestCallerSaturatesQuality(t *testing.T) {
	seq := testSequence(100)
	opts := testOpts()
	opts.GlobalDependency = 1
	c, buf := newCaller(t, opts, reference.NewChromosome("chr1", seq))
	run(t, c, stackedReads(seq, 30, 30))
	l := lineAt(t, outputLines(buf), testPos)
	expect.EQ(t, l[3], "A")
	expect.EQ(t, qualityOf(t, l), MaxQuality)
}

func TestCallerRankSum(t *testing.T) {
	seq := testSequence(100)
	call := func(rankSum bool) []string {
		opts := testOpts()
		opts.RankSum = rankSum
		c, buf := newCaller(t, opts, reference.NewChromosome("chr1", seq))
		run(t, c, hetReads(seq))
		expect.EQ(t, c.Stats().PosNonRef, int64(1))
		return lineAt(t, outputLines(buf), testPos)
	}
	plain := call(false)
	expect.EQ(t, plain[2:4], []string{"A", "M"})
	expect.EQ(t, plain[5:15], []string{"A", "30", "6", "6", "C", "15", "6", "6", "12", "0"})
	expect.EQ(t, plain[15], "1.00000")
	qPlain := qualityOf(t, plain)
	assert.True(t, qPlain >= 20 && qPlain <= 45, "quality %d", qPlain)

	// Every C has a lower quality than every A, so the rank-sum p-value is
	// 1/C(12,6).
	ranked := call(true)
	expect.EQ(t, ranked[3], "M")
	expect.EQ(t, ranked[15], "0.00108225")
	qRanked := qualityOf(t, ranked)
	assert.True(t, qRanked > 0 && qRanked < qPlain, "quality %d vs %d", qRanked, qPlain)
	diff := qPlain - qRanked
	assert.True(t, diff == 29 || diff == 30, "quality drop %d", diff)
}

func TestCallerSNPOnly(t *testing.T) {
	seq := testSequence(100)
	newChr := func() *reference.Chromosome {
		chr := reference.NewChromosome("chr1", seq)
		for _, pos := range []pileup.PosType{10, 45, 70} {
			require.True(t, chr.InsertVariant(pos, &reference.Variant{Validated: true, Name: fmt.Sprintf("rs%d", pos)}))
		}
		return chr
	}

	opts := testOpts()
	opts.SNPOnly = true
	c, buf := newCaller(t, opts, newChr())
	run(t, c, hetReads(seq))
	lines := outputLines(buf)
	require.Len(t, lines, 1)
	expect.EQ(t, lines[0][:4], []string{"chr1", "41", "A", "M"})

	opts.DumpKnown = true
	c, buf = newCaller(t, opts, newChr())
	run(t, c, hetReads(seq))
	lines = outputLines(buf)
	require.Len(t, lines, 4)
	expect.EQ(t, lines[0], []string{"K", "chr1", "11", "G", "no-coverage"})
	expect.EQ(t, lines[1][:4], []string{"chr1", "41", "A", "M"})
	expect.EQ(t, lines[1][17], "0")
	expect.EQ(t, lines[2][:5], []string{"K", "chr1", "46", "G", "G"})
	expect.EQ(t, lines[2][18], "1")
	expect.EQ(t, lines[3], []string{"K", "chr1", "71", "C", "no-coverage"})
	expect.EQ(t, c.Stats().PosKnown, int64(3))
}

func TestCallerWindowTail(t *testing.T) {
	seq := testSequence(200)
	reads := func() []*alignment.Read {
		var reads []*alignment.Read
		for start := 40; start < 43; start++ {
			r := newRead("chr1", start, seq[start:start+20], 30)
			r.Seq[55-start] = 'C'
			reads = append(reads, r)
		}
		return append(reads, newRead("chr1", 160, seq[160:180], 30))
	}

	// Every position is reported, so each window is rolled in turn and the
	// evidence past the first window end survives.
	c, buf := newCaller(t, testOpts(), reference.NewChromosome("chr1", seq))
	run(t, c, reads())
	lines := outputLines(buf)
	require.Len(t, lines, 200)
	l := lineAt(t, lines, 55)
	expect.EQ(t, l[2:4], []string{"A", "C"})
	expect.EQ(t, l[13], "3")
	expect.EQ(t, lineAt(t, lines, 60)[13], "2")
	expect.EQ(t, lineAt(t, lines, 62)[13], "0")
	expect.EQ(t, c.Stats().PosCalled, int64(200))

	// In SNP-only mode the empty window [100, 150) is skipped over.
	opts := testOpts()
	opts.SNPOnly = true
	c, buf = newCaller(t, opts, reference.NewChromosome("chr1", seq))
	run(t, c, reads())
	lines = outputLines(buf)
	require.Len(t, lines, 1)
	expect.EQ(t, lines[0][1:4], []string{"56", "A", "C"})
	expect.EQ(t, c.Stats().PosCalled, int64(150))
}

func TestCallerRegion(t *testing.T) {
	seq := testSequence(100)
	chr := reference.NewChromosome("chr1", seq)
	require.NoError(t, chr.SetRegion(30, 49))
	opts := testOpts()
	opts.Region = "chr1:31-50"
	c, buf := newCaller(t, opts, chr)
	// The first read starts outside the region and is ignored.
	run(t, c, []*alignment.Read{
		newRead("chr1", 20, seq[20:40], 30),
		newRead("chr1", 35, seq[35:55], 30),
	})
	lines := outputLines(buf)
	require.Len(t, lines, 20)
	expect.EQ(t, lines[0][1], "31")
	expect.EQ(t, lines[19][1], "50")
	expect.EQ(t, lineAt(t, lines, 30)[13], "0")
	expect.EQ(t, lineAt(t, lines, 35)[13], "1")
}

func TestCallerRegionLeavesOtherChromosomes(t *testing.T) {
	seq := testSequence(100)
	chr1 := reference.NewChromosome("chr1", seq)
	chr2 := reference.NewChromosome("chr2", seq)
	require.NoError(t, chr1.SetRegion(30, 49))
	expect.True(t, chr2.InRegion(testPos))
	opts := testOpts()
	opts.Region = "chr1:31-50"
	c, buf := newCaller(t, opts, chr1, chr2)
	run(t, c, []*alignment.Read{
		newRead("chr1", 35, seq[35:55], 30),
		newRead("chr2", testPos, seq[testPos:testPos+20], 30),
	})
	byChr := map[string][][]string{}
	for _, l := range outputLines(buf) {
		byChr[l[0]] = append(byChr[l[0]], l)
	}
	require.Len(t, byChr["chr1"], 20)
	require.Len(t, byChr["chr2"], 100)
	expect.EQ(t, byChr["chr2"][0][1], "1")
	expect.EQ(t, byChr["chr2"][testPos][1], strconv.Itoa(testPos+1))
	expect.EQ(t, byChr["chr2"][testPos][13], "1")
	expect.EQ(t, c.Stats().PosCalled, int64(120))
}

type glfBuilder struct {
	bytes.Buffer
}

func (b *glfBuilder) putInt32(v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	b.Write(buf[:])
}

func (b *glfBuilder) putString(s string) {
	b.putInt32(int32(len(s) + 1))
	b.WriteString(s)
	b.WriteByte(0)
}

func TestCallerGLF(t *testing.T) {
	opts := testOpts()
	opts.Format = FormatGLF
	opts.GLFHeader = "Sample:NA12878"
	chrs := func() []*reference.Chromosome {
		return []*reference.Chromosome{
			reference.NewChromosome("chr1", "ACGN"),
			reference.NewChromosome("chr2", "AC"),
		}
	}
	c, buf := newCaller(t, opts, chrs()...)
	run(t, c, []*alignment.Read{newRead("chr1", 0, "AC", 30)})

	var want glfBuilder
	want.WriteString("glf")
	want.putInt32(0)
	want.putInt32(0)
	want.putString("Sample")
	want.putString("NA12878")
	want.putString("CHROMOSOMES")
	want.putInt32(2)
	want.putString("chr1")
	want.putInt32(4)
	// Scores are ordered AA CC GG TT AC AG AT CG CT GT.
	want.Write([]byte{0x10, 0x10, 0, 34, 34, 34, 3, 3, 3, 34, 34, 34})
	want.Write([]byte{0x20, 0x10, 34, 0, 34, 34, 3, 34, 34, 3, 3, 34})
	want.Write([]byte{0x40, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	want.Write([]byte{0xf0, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	want.putString("chr2")
	want.putInt32(2)
	want.Write([]byte{0x10, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	want.Write([]byte{0x20, 0x0f, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	expect.EQ(t, buf.Bytes(), want.Bytes())

	opts.Format = FormatGPF
	c, gpf := newCaller(t, opts, chrs()...)
	run(t, c, []*alignment.Read{newRead("chr1", 0, "AC", 30)})
	expect.EQ(t, gpf.Len(), want.Len())
	expect.EQ(t, string(gpf.Bytes()[:3]), "gpf")
}

func TestGLFHeaderFields(t *testing.T) {
	tests := []struct {
		header string
		fields []string
	}{
		{"", nil},
		{"Sample:NA12878", []string{"Sample", "NA12878"}},
		{"A::B", []string{"A", "", "B"}},
		{"A:B:", []string{"A", "B"}},
		{":A", []string{"", "A"}},
		{"::", []string{"", ""}},
	}
	for _, tt := range tests {
		var got bytes.Buffer
		_, err := NewGLFEncoder(&got, false, tt.header, 0)
		require.NoError(t, err)
		var want glfBuilder
		want.WriteString("glf")
		want.putInt32(0)
		want.putInt32(0)
		for _, f := range tt.fields {
			want.putString(f)
		}
		want.putString("CHROMOSOMES")
		want.putInt32(0)
		expect.EQ(t, got.Bytes(), want.Bytes(), "header %q", tt.header)
	}
}

func TestCopyNumber(t *testing.T) {
	expect.EQ(t, copyNumber(&Site{}), byte(15))
	expect.EQ(t, copyNumber(&Site{Depth: 4, Repeat: 4}), byte(0))
	expect.EQ(t, copyNumber(&Site{Depth: 4, Repeat: 13}), byte(1))
	expect.EQ(t, copyNumber(&Site{Depth: 1, Repeat: 1 << 20}), byte(15))
}

func TestCallerErrors(t *testing.T) {
	seq := testSequence(100)
	chrs := func() []*reference.Chromosome {
		return []*reference.Chromosome{
			reference.NewChromosome("chr1", seq),
			reference.NewChromosome("chr2", seq),
		}
	}

	c, _ := newCaller(t, testOpts(), chrs()...)
	require.NoError(t, c.Add(newRead("chr1", 10, seq[10:20], 30)))
	err := c.Add(newRead("chr1", 5, seq[5:15], 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sorted")

	c, _ = newCaller(t, testOpts(), chrs()...)
	require.NoError(t, c.Add(newRead("chr1", 10, seq[10:20], 30)))
	require.NoError(t, c.Add(newRead("chr2", 10, seq[10:20], 30)))
	err = c.Add(newRead("chr1", 50, seq[50:60], 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one block")

	c, _ = newCaller(t, testOpts(), chrs()...)
	assert.Error(t, c.Add(newRead("chrX", 10, seq[10:20], 30)))
	assert.Error(t, c.Add(newRead("chr1", 0, seq[0:40], 30)))
	assert.Error(t, c.Add(newRead("chr1", 100, "A", 30)))

	c, _ = newCaller(t, testOpts(), chrs()...)
	assert.Error(t, c.Finish())

	c, _ = newCaller(t, testOpts(), chrs()...)
	run(t, c, []*alignment.Read{newRead("chr1", 10, seq[10:20], 30)})
	assert.Error(t, c.Add(newRead("chr1", 20, seq[20:30], 30)))

	opts := testOpts()
	opts.RankSum = true
	genome, err := reference.NewFromChromosomes(chrs())
	require.NoError(t, err)
	m, err := calibration.NewMatrix(opts.Calibration)
	require.NoError(t, err)
	_, err = NewCaller(opts, genome, m, prior.New(opts.Rates, false), nil, NewTextEncoder(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestCallerSkipsUnusableBases(t *testing.T) {
	seq := testSequence(100)
	c, buf := newCaller(t, testOpts(), reference.NewChromosome("chr1", seq))
	r := newRead("chr1", testPos, seq[testPos:testPos+4], 30)
	r.Seq[0] = 'N'
	r.Quals[1] = '@' - 1
	multi := newRead("chr1", testPos, seq[testPos:testPos+4], 30)
	multi.NHits = 3
	multi.MateID = 1
	run(t, c, []*alignment.Read{r, multi})
	lines := outputLines(buf)

	// Depth counts every base; only usable unique bases reach the counts.
	l := lineAt(t, lines, testPos)
	expect.EQ(t, l[13:16], []string{"2", "1", "1.00000"})
	expect.EQ(t, l[5:9], []string{"A", "0", "0", "1"})
	l = lineAt(t, lines, testPos+1)
	expect.EQ(t, l[5:9], []string{"C", "0", "0", "1"})
	l = lineAt(t, lines, testPos+2)
	expect.EQ(t, l[5:9], []string{"G", "30", "1", "2"})
	expect.EQ(t, l[16], "2.00000")
	expect.EQ(t, c.Stats().Paired, int64(1))
}

func TestCallerMonoploid(t *testing.T) {
	seq := testSequence(100)
	opts := testOpts()
	opts.Monoploid = true
	c, buf := newCaller(t, opts, reference.NewChromosome("chr1", seq))
	run(t, c, hetReads(seq))
	l := lineAt(t, outputLines(buf), testPos)
	// The same reads give M when diploid.
	expect.EQ(t, l[2:4], []string{"A", "A"})
	assert.True(t, qualityOf(t, l) > 0, "quality %d", qualityOf(t, l))
	expect.EQ(t, l[5:13], []string{"A", "30", "6", "6", "C", "15", "6", "6"})
	expect.EQ(t, c.Stats().PosNonRef, int64(0))
}

func TestCallerMonoploidGPF(t *testing.T) {
	opts := testOpts()
	opts.Format = FormatGPF
	opts.Monoploid = true
	c, buf := newCaller(t, opts, reference.NewChromosome("chr1", "ACGN"))
	run(t, c, []*alignment.Read{newRead("chr1", 0, "AC", 30)})

	var hdr glfBuilder
	hdr.WriteString("gpf")
	hdr.putInt32(0)
	hdr.putInt32(0)
	hdr.putString("CHROMOSOMES")
	hdr.putInt32(1)
	hdr.putString("chr1")
	hdr.putInt32(4)
	data := buf.Bytes()
	require.Equal(t, hdr.Len()+4*glfRecordLen, len(data))
	expect.EQ(t, data[:hdr.Len()], hdr.Bytes())

	// Scores are ordered AA CC GG TT AC AG AT CG CT GT, so the best
	// genotypes of A, C and G come first.  Heterozygotes are excluded.
	for pos := 0; pos < 3; pos++ {
		rec := data[hdr.Len()+pos*glfRecordLen:][:glfRecordLen]
		scores := rec[2:]
		expect.EQ(t, scores[pos], byte(0), "pos %d", pos)
		for i := 0; i < 4; i++ {
			assert.True(t, scores[i] < 255, "pos %d score %d", pos, i)
		}
		for i := 4; i < 10; i++ {
			expect.EQ(t, scores[i], byte(255), "pos %d score %d", pos, i)
		}
	}
}

func TestCallerReverseStrandCycle(t *testing.T) {
	seq := testSequence(100)
	c, _ := newCaller(t, testOpts(), reference.NewChromosome("chr1", seq))
	fwd := newRead("chr1", testPos, seq[testPos:testPos+10], 30)
	rev := newRead("chr1", testPos, seq[testPos:testPos+10], 30)
	rev.Dir = pileup.StrandRev
	require.NoError(t, c.Add(fwd))
	require.NoError(t, c.Add(rev))

	// Cycles of a reverse read count from its last aligned base.
	s, ok := c.win.SiteAt(testPos)
	require.True(t, ok)
	expect.EQ(t, s.Count(pileup.BaseA, pileup.StrandFwd, 30, 0), 1)
	expect.EQ(t, s.Count(pileup.BaseA, pileup.StrandRev, 30, 9), 1)
	expect.EQ(t, s.Count(pileup.BaseA, pileup.StrandRev, 30, 0), 0)

	s, ok = c.win.SiteAt(testPos + 9)
	require.True(t, ok)
	expect.EQ(t, s.Count(pileup.BaseC, pileup.StrandFwd, 30, 9), 1)
	expect.EQ(t, s.Count(pileup.BaseC, pileup.StrandRev, 30, 0), 1)
	require.NoError(t, c.Finish())
}

func TestCallerUniqueDepthCap(t *testing.T) {
	seq := testSequence(100)
	opts := testOpts()
	opts.GlobalDependency = 1
	c, buf := newCaller(t, opts, reference.NewChromosome("chr1", seq))
	// Ten reads, half of them reversed, start at each of 30 positions
	// covering testPos.
	var reads []*alignment.Read
	for k := 29; k >= 0; k-- {
		start := testPos - k
		for j := 0; j < 10; j++ {
			r := newRead("chr1", start, seq[start:start+30], 30)
			if j%2 == 1 {
				r.Dir = pileup.StrandRev
			}
			reads = append(reads, r)
		}
	}
	run(t, c, reads)
	l := lineAt(t, outputLines(buf), testPos)
	expect.EQ(t, l[2:4], []string{"A", "A"})
	expect.EQ(t, qualityOf(t, l), MaxQuality)
	expect.EQ(t, l[5:9], []string{"A", "30", "255", "255"})
	expect.EQ(t, l[13], "300")
}
