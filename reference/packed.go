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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"
)

// A packed image stores a genome's words so that later runs can map them
// instead of re-reading FASTA.  All integers are little-endian:
//
//   magic      [8]byte "CNSREF01"
//   nChr       uint32
//   reserved   uint32
//   nChr times:
//     nameLen  uint32, name [nameLen]byte
//     length   uint64  (positions)
//     offset   uint64  (byte offset of the chromosome's words)
//   zero padding to an 8-byte boundary
//   words      all chromosomes' packed words, back to back
//   checksum   uint64  seahash of the words section
//
// Known-variant flags are cleared before writing; variants are attached per
// run.

// PackedSuffix is the conventional file extension of a packed image.
const PackedSuffix = ".cnsref"

// PackedMagic starts every packed image.
var PackedMagic = [8]byte{'C', 'N', 'S', 'R', 'E', 'F', '0', '1'}

var nativeLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

func packedHeaderSize(g *Genome) int {
	n := len(PackedMagic) + 8
	for _, c := range g.chrs {
		n += 4 + len(c.name) + 16
	}
	return (n + 7) &^ 7
}

// WritePacked writes g as a packed image.
func WritePacked(w io.Writer, g *Genome) error {
	bw := bufio.NewWriter(w)
	var scratch [8]byte
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		bw.Write(scratch[:4]) // nolint: errcheck
	}
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		bw.Write(scratch[:]) // nolint: errcheck
	}
	bw.Write(PackedMagic[:]) // nolint: errcheck
	put32(uint32(len(g.chrs)))
	put32(0)
	headerSize := packedHeaderSize(g)
	offset := uint64(headerSize)
	written := len(PackedMagic) + 8
	for _, c := range g.chrs {
		put32(uint32(len(c.name)))
		bw.WriteString(c.name) // nolint: errcheck
		put64(uint64(c.length))
		put64(offset)
		offset += uint64(len(c.words)) * 8
		written += 4 + len(c.name) + 16
	}
	for ; written < headerSize; written++ {
		bw.WriteByte(0) // nolint: errcheck
	}
	h := seahash.New()
	for _, c := range g.chrs {
		for _, word := range c.words {
			binary.LittleEndian.PutUint64(scratch[:], word&^variantFlagWord)
			bw.Write(scratch[:]) // nolint: errcheck
			h.Write(scratch[:])  // nolint: errcheck
		}
	}
	put64(h.Sum64())
	return bw.Flush()
}

// MapPacked memory-maps a packed image written by WritePacked.  The mapping
// is private, so marking known variants never modifies the file.  The
// returned genome must be closed to release the mapping.
func MapPacked(path string) (g *Genome, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "open packed reference", path)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(stat.Size())
	if size < len(PackedMagic)+16 {
		return nil, fmt.Errorf("reference.MapPacked: %s is too short to be a packed reference", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.E(err, "mmap", path)
	}
	if g, err = parsePacked(data); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("reference.MapPacked: %s: %v", path, err)
	}
	g.closer = func() error { return unix.Munmap(data) }
	return g, nil
}

// parsePacked decodes an image held in data.  On little-endian hosts the
// chromosomes' words alias data.
func parsePacked(data []byte) (*Genome, error) {
	for i, b := range PackedMagic {
		if data[i] != b {
			return nil, fmt.Errorf("invalid magic byte sequence")
		}
	}
	off := len(PackedMagic)
	need := func(n int) error {
		if off+n > len(data) {
			return fmt.Errorf("truncated header")
		}
		return nil
	}
	nChr := int(binary.LittleEndian.Uint32(data[off:]))
	off += 8
	type chrHeader struct {
		name   string
		length PosType
		offset int
	}
	headers := make([]chrHeader, nChr)
	for i := range headers {
		if err := need(4); err != nil {
			return nil, err
		}
		nameLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if err := need(nameLen + 16); err != nil {
			return nil, err
		}
		headers[i].name = string(data[off : off+nameLen])
		off += nameLen
		headers[i].length = PosType(binary.LittleEndian.Uint64(data[off:]))
		headers[i].offset = int(binary.LittleEndian.Uint64(data[off+8:]))
		off += 16
	}
	wordsStart := (off + 7) &^ 7
	wordsEnd := len(data) - 8
	if wordsEnd < wordsStart {
		return nil, fmt.Errorf("truncated image")
	}
	if got, want := seahash.Sum64(data[wordsStart:wordsEnd]), binary.LittleEndian.Uint64(data[wordsEnd:]); got != want {
		return nil, fmt.Errorf("checksum mismatch (got %x, want %x)", got, want)
	}
	chrs := make([]*Chromosome, nChr)
	for i, hdr := range headers {
		nWords := wordsFor(hdr.length)
		start, end := hdr.offset, hdr.offset+nWords*8
		if start < wordsStart || end > wordsEnd || start%8 != 0 {
			return nil, fmt.Errorf("chromosome %s words [%d, %d) out of bounds", hdr.name, start, end)
		}
		c, err := newChromosomeFromWords(hdr.name, hdr.length, bytesToWords(data[start:end]))
		if err != nil {
			return nil, err
		}
		chrs[i] = c
	}
	return NewFromChromosomes(chrs)
}

func bytesToWords(b []byte) []uint64 {
	n := len(b) / 8
	if n == 0 {
		return nil
	}
	if nativeLittleEndian {
		return (*[1 << 32]uint64)(unsafe.Pointer(&b[0]))[:n:n]
	}
	words := make([]uint64, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return words
}
