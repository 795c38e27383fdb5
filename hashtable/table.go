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

// Package hashtable is a fixed-size chained hash table of intrusive nodes.
//
// A Table owns 2^bits bucket heads and nothing else. The nodes are embedded
// in caller records, typically pagepool pages, and resolved through a
// list.Arena; the table links them by reference. Keys are never stored:
// Insert hashes the key to choose a bucket and Find rescans that bucket with
// a caller predicate comparing the true keys, since collisions are expected.
//
// The table does not rehash or resize. Chains are O(1) to modify and
// O(length) to search, so bits should be chosen to match the expected load;
// a pathological key distribution degrades Find to O(n).
//
// Remove unlinks a node through its own back reference and does not need the
// key. Touch moves a node to the front of its bucket, which callers can use
// to keep recently used records cheap to find.
//
// A Table is NOT goroutine-safe.
package hashtable

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pagepool/list"
)

// MaxBits is the largest supported bucket count exponent. The bucket heads
// of a list.TailQ stop short of 1<<31.
const MaxBits = 30

// option provide an interface to do work on Table while it is being created.
type option[K any] interface {
	apply(t *Table[K])
}

type invariantsOption[K any] struct {
	keyOf func(ref uint32) K
}

func (op invariantsOption[K]) apply(t *Table[K]) {
	t.keyOf = op.keyOf
}

// WithInvariants enables verification after every mutation that each linked
// node sits in the bucket its key hashes to. keyOf returns the key of a
// linked node. Verification is O(n) per operation; use it in tests.
func WithInvariants[K any](keyOf func(ref uint32) K) option[K] {
	return invariantsOption[K]{keyOf}
}

// Table maps keys to chains of nodes.
type Table[K any] struct {
	q    *list.TailQ
	hash func(key K) uint64
	mask uint32
	bits uint
	// keyOf is set when invariant checking is enabled.
	keyOf func(ref uint32) K
}

// New returns a table of 1<<bits empty buckets over arena. hash maps a key to
// a 64-bit value whose low bits select the bucket, so it must avalanche (see
// package hashfn).
func New[K any](
	bits uint, arena list.Arena[list.QNode], hash func(key K) uint64, options ...option[K],
) *Table[K] {
	if bits > MaxBits {
		panic(fmt.Sprintf("hashtable: bits %d exceeds %d", bits, MaxBits))
	}
	t := &Table[K]{
		q:    list.NewTailQ(1<<bits, arena),
		hash: hash,
		mask: uint32(1)<<bits - 1,
		bits: bits,
	}
	for _, op := range options {
		op.apply(t)
	}
	return t
}

// Bucket returns the bucket key hashes to.
func (t *Table[K]) Bucket(key K) uint32 {
	return uint32(t.hash(key)) & t.mask
}

// Buckets returns the number of buckets.
func (t *Table[K]) Buckets() int {
	return 1 << t.bits
}

// Bits returns log2 of the number of buckets.
func (t *Table[K]) Bits() uint {
	return t.bits
}

// Insert links node ref at the head of the bucket for key. ref must not be
// linked into any table. O(1).
func (t *Table[K]) Insert(key K, ref uint32) {
	t.q.Add(t.Bucket(key), ref)
	t.checkInvariants()
}

// Remove unlinks node ref from whichever bucket holds it. Removing an
// unlinked node is a no-op. O(1).
func (t *Table[K]) Remove(ref uint32) {
	t.q.Del(ref)
	t.checkInvariants()
}

// Find scans the bucket for key and returns the first node for which match
// returns true.
func (t *Table[K]) Find(key K, match func(ref uint32) bool) (uint32, bool) {
	q := t.q
	for it := q.Head(t.Bucket(key)); it != list.Nil; it = q.Node(it).Next {
		if match(it) {
			return it, true
		}
	}
	return list.Nil, false
}

// Touch moves the linked node ref to the front of the bucket for key. key
// must be the key ref was inserted with. O(1).
func (t *Table[K]) Touch(key K, ref uint32) {
	t.q.Del(ref)
	t.q.Add(t.Bucket(key), ref)
	t.checkInvariants()
}

// Walk calls yield for every node in the bucket for key, most recently
// inserted first, until yield returns false. yield may remove the node it is
// given.
func (t *Table[K]) Walk(key K, yield func(ref uint32) bool) {
	t.q.Walk(t.Bucket(key), yield)
}

// WalkBucket is Walk for bucket b.
func (t *Table[K]) WalkBucket(b uint32, yield func(ref uint32) bool) {
	t.q.Walk(b&t.mask, yield)
}

// All calls yield for every node in bucket order until yield returns false.
func (t *Table[K]) All(yield func(ref uint32) bool) {
	cont := true
	for b := uint32(0); cont && b <= t.mask; b++ {
		t.q.Walk(b, func(ref uint32) bool {
			cont = yield(ref)
			return cont
		})
	}
}

// Empty reports whether the bucket for key has no nodes.
func (t *Table[K]) Empty(key K) bool {
	return t.q.Empty(t.Bucket(key))
}

// Len counts the linked nodes. O(n + buckets).
func (t *Table[K]) Len() int {
	var n int
	for b := uint32(0); b <= t.mask; b++ {
		n += t.q.Len(b)
	}
	return n
}

// Reset empties every bucket. Linked nodes are left as they are and must be
// re-initialized before reuse.
func (t *Table[K]) Reset() {
	t.q.Reset()
}

// Stats summarizes chain lengths.
type Stats struct {
	Buckets  int `json:"buckets"`
	Used     int `json:"used"`
	Nodes    int `json:"nodes"`
	MaxChain int `json:"max_chain"`
}

// Stats walks every bucket. O(n + buckets).
func (t *Table[K]) Stats() Stats {
	s := Stats{Buckets: t.Buckets()}
	for b := uint32(0); b <= t.mask; b++ {
		n := t.q.Len(b)
		if n > 0 {
			s.Used++
		}
		if n > s.MaxChain {
			s.MaxChain = n
		}
		s.Nodes += n
	}
	return s
}

func (t *Table[K]) checkInvariants() {
	if t.keyOf == nil {
		return
	}
	for b := uint32(0); b <= t.mask; b++ {
		expected := list.HeadCell(b)
		for it := t.q.Head(b); it != list.Nil; it = t.q.Node(it).Next {
			n := t.q.Node(it)
			if n.Prev != expected {
				panic(fmt.Sprintf("invariant failed: node(%d): prev is %s, expected %s\n%s",
					it, n.Prev, expected, t.debugString()))
			}
			if h := t.Bucket(t.keyOf(it)); h != b {
				panic(fmt.Sprintf("invariant failed: node(%d): in bucket %d, but key %v hashes to %d\n%s",
					it, b, t.keyOf(it), h, t.debugString()))
			}
			expected = list.NextCell(it)
		}
	}
}

func (t *Table[K]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "buckets=%d\n", t.Buckets())
	for b := uint32(0); b <= t.mask; b++ {
		if t.q.Empty(b) {
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", b)
		var n int
		for it := t.q.Head(b); it != list.Nil && n < 64; it = t.q.Node(it).Next {
			if t.keyOf != nil {
				fmt.Fprintf(&buf, " %d[%v]", it, t.keyOf(it))
			} else {
				fmt.Fprintf(&buf, " %d", it)
			}
			n++
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
