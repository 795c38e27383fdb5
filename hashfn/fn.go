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

// Package hashfn provides the key mixing functions used to pick hash
// buckets: integer avalanche mixers, a sequence hash, and content hashes over
// raw bytes.
package hashfn

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// Mix64 is the splitmix64 finalizer. Every input bit affects every output
// bit, so the low bits are as good as the high ones for masking.
func Mix64(x uint64) uint64 {
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Hash64 returns the top bits bits of Mix64(x).
func Hash64(x uint64, bits uint) uint64 {
	if bits == 0 {
		return 0
	}
	return Mix64(x) >> (64 - bits)
}

// Mix32 is a 32-bit integer avalanche mixer.
func Mix32(x uint32) uint32 {
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	return (x >> 16) ^ x
}

// Hash32 returns the top bits bits of Mix32(x).
func Hash32(x uint32, bits uint) uint32 {
	if bits == 0 {
		return 0
	}
	return Mix32(x) >> (32 - bits)
}

// Sequence maps monotonically assigned sequence numbers onto 2^bits buckets
// round-robin.
func Sequence(seqno uint32, bits uint) uint32 {
	return seqno & (1<<bits - 1)
}

// Bernstein is the djb2 multiplicative hash seeded with level. It is cheap
// and adequate for short text keys but has known funnels for
// arbitrary binary input.
func Bernstein(key []byte, level uint32) uint32 {
	h := level
	for _, c := range key {
		h = 33*h + uint32(c)
	}
	return h
}

// Buffer returns the XXH64 content hash of b.
func Buffer(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Buffer32 returns the top bits bits of the low 32 bits of Buffer(b).
func Buffer32(b []byte, bits uint) uint32 {
	if bits == 0 {
		return 0
	}
	return uint32(Buffer(b)) >> (32 - bits)
}

// String returns the XXH64 content hash of s.
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Key is a SipHash-2-4 key. Keyed hashing keeps bucket placement
// unpredictable to whoever controls the input bytes.
type Key struct {
	K0, K1 uint64
}

// NewKey returns a randomly seeded Key.
func NewKey() Key {
	return Key{K0: rand.Uint64(), K1: rand.Uint64()}
}

// Sum returns the keyed hash of b.
func (k Key) Sum(b []byte) uint64 {
	return siphash.Hash(k.K0, k.K1, b)
}
