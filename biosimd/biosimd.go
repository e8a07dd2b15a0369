// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

import (
	"github.com/grailbio/base/simd"
)

// AmbiguousCode is the base code of any letter other than A/C/G/T.
const AmbiguousCode = 4

// NibbleLookupTable is re-exported here to reduce base/simd import clutter.
type NibbleLookupTable = simd.NibbleLookupTable

var (
	cleanASCIISeqTable [256]byte
	asciiToBaseTable   [256]byte

	// BaseASCIITable maps packed 4-bit codes back to capital letters.  Codes
	// 8-15 decode like 0-7, so flag bit 3 is ignored.
	BaseASCIITable = simd.MakeNibbleLookupTable([16]byte{
		'A', 'C', 'T', 'G', 'N', 'N', 'N', 'N',
		'A', 'C', 'T', 'G', 'N', 'N', 'N', 'N'})
)

func init() {
	for i := range cleanASCIISeqTable {
		cleanASCIISeqTable[i] = 'N'
		asciiToBaseTable[i] = AmbiguousCode
	}
	for code, c := range []byte("ACTG") {
		for _, b := range []byte{c, c | 0x20} {
			cleanASCIISeqTable[b] = c
			asciiToBaseTable[b] = byte(code)
		}
	}
}

// CleanASCIISeqInplace capitalizes 'a'/'c'/'g'/'t', and replaces everything
// non-ACGT with 'N'.
func CleanASCIISeqInplace(ascii8 []byte) {
	for pos, b := range ascii8 {
		ascii8[pos] = cleanASCIISeqTable[b]
	}
}

// ASCIIToBaseInplace converts main[pos] as follows:
//   'A'/'a' -> 0
//   'C'/'c' -> 1
//   'T'/'t' -> 2
//   'G'/'g' -> 3
//   anything else -> AmbiguousCode
func ASCIIToBaseInplace(main []byte) {
	for pos, b := range main {
		main[pos] = asciiToBaseTable[b]
	}
}

// PackSeq sets the bytes in dst[] as follows:
//   if pos is even, low 4 bits of dst[pos / 2] := src[pos]
//   if pos is odd, high 4 bits of dst[pos / 2] := src[pos]
//   if len(src) is odd, the high 4 bits of dst[len(src) / 2] are zero
// Bytes of dst past (len(src) + 1) / 2 are left alone, so dst may be padded
// to a word boundary.  It panics if dst is too short.
//
// Values in dst are garbage if any src[] byte is greater than 15.
func PackSeq(dst, src []byte) {
	nFull := len(src) >> 1
	odd := len(src) & 1
	if len(dst) < nFull+odd {
		panic("PackSeq() requires len(dst) >= (len(src) + 1) / 2.")
	}
	for pos := 0; pos < nFull; pos++ {
		dst[pos] = src[2*pos] | src[2*pos+1]<<4
	}
	if odd == 1 {
		dst[nFull] = src[2*nFull]
	}
}

// UnpackSeq is the inverse of PackSeq: dst[pos] := nibble pos of src.  It
// panics if src holds fewer than len(dst) nibbles.
func UnpackSeq(dst, src []byte) {
	if 2*len(src) < len(dst) {
		panic("UnpackSeq() requires 2 * len(src) >= len(dst).")
	}
	for pos := range dst {
		dst[pos] = (src[pos>>1] >> (uint(pos&1) * 4)) & 15
	}
}

// UnpackAndReplaceSeq sets dst[pos] := table[nibble pos of src], with the
// same nibble order as PackSeq.  len(src) must be (len(dst) + 1) / 2.
func UnpackAndReplaceSeq(dst, src []byte, tablePtr *NibbleLookupTable) {
	simd.PackedNibbleLookup(dst, src, tablePtr)
}
