// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package index provides branchless index validation against power-of-two
// capacities and the streamlined lookup arrays built on top of it.
//
// Two numbering schemes are supported. Zero-based indexes clamp an
// out-of-range index to the last valid slot. One-based indexes reserve slot 0
// as an anchor and map any out-of-range index to it. Both return a wrong, but
// in-range, answer instead of faulting; callers that must detect bad input
// compare the clamped result with the original index, or use Check.
package index

import (
	"math/bits"

	"github.com/pkg/errors"
)

// ErrIndexOutOfRange is returned by the strict validation APIs.
var ErrIndexOutOfRange = errors.New("index out of range")

// Clamp0 returns index if index <= mask and mask otherwise. The selection is
// driven by the sign of mask-index computed in 64 bits, so it compiles to
// straight-line code.
func Clamp0(index, mask uint32) uint32 {
	c := uint32(int64(uint64(mask)-uint64(index)) >> 63)
	return (index &^ c) | (mask & c)
}

// Clamp1 returns index if it has no bits set outside of mask, and 0
// otherwise. Slot 0 is the reserved anchor of a one-based table.
func Clamp1(index, mask uint32) uint32 {
	h := index &^ mask
	// (h | -h) has its top bit set iff h != 0.
	nz := (h | -h) >> 31
	return index & (nz - 1)
}

// Clamp0u64 is the 64-bit variant of Clamp0.
func Clamp0u64(index, mask uint64) uint64 {
	_, borrow := bits.Sub64(mask, index, 0)
	c := -borrow
	return (index &^ c) | (mask & c)
}

// Clamp1u64 is the 64-bit variant of Clamp1.
func Clamp1u64(index, mask uint64) uint64 {
	h := index &^ mask
	nz := (h | -h) >> 63
	return index & (nz - 1)
}

// Check returns an error wrapping ErrIndexOutOfRange if index > mask.
func Check(index, mask uint32) error {
	if Clamp0(index, mask) != index {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d > mask %d", index, mask)
	}
	return nil
}

// IsPow2 reports whether n is a power of two. Zero is not.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// NextPow2 returns the smallest power of two >= n. NextPow2(0) is 1.
func NextPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// Bits returns log2(n) for a power of two n.
func Bits(n uint64) uint {
	return uint(bits.TrailingZeros64(n))
}

// Mask returns n-1 for a power of two n as a uint32 index mask.
func Mask(n uint64) uint32 {
	return uint32(n - 1)
}
