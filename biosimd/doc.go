// Copyright 2020 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides table-driven conversions between ASCII base
// letters and the 4-bit base codes used by the packed reference, plus
// nibble packing in the reference's little-endian order.
//
// Base codes are A=0, C=1, T=2, G=3; every other letter maps to 4
// (ambiguous).  Bit 3 of a packed code is free for callers' flags.
package biosimd
