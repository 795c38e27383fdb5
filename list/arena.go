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

// Package list implements intrusive linked containers whose nodes live in an
// arena and reference each other by uint32 index rather than by pointer. A
// record embeds a node, the arena resolves an index to that node, and no
// container ever allocates. Because links are plain integers the records can
// live in memory the Go garbage collector does not scan (for example a
// memory-mapped page pool).
//
// Three shapes are provided:
//
//   - SList: singly-linked, forward only. O(1) push, pop and insert after a
//     known node; O(1) delete only when the predecessor is known.
//   - List: circular and doubly-linked with a sentinel head. O(1) insert and
//     delete anywhere; Len is O(n).
//   - TailQ: a set of queue heads whose nodes record the cell (a head, or a
//     sibling's Next field) that points at them. Delete writes through that
//     cell, so removing the first node is no different from removing any
//     other.
//
// Nodes must be initialized before first use: the zero reference is a valid
// index, so a zeroed node is not an unlinked one.
//
// Walk and WalkReverse capture the next reference before calling yield, so
// yield may delete the node it is given. None of the containers are safe for
// concurrent use.
package list

// Nil is the reference that denotes "no node".
const Nil = ^uint32(0)

// Arena resolves a node reference to the node's storage. At is only called
// with references previously linked into a container, or passed in by the
// caller.
type Arena[N any] interface {
	At(ref uint32) *N
}

// Slice is an Arena backed by a Go slice.
type Slice[N any] []N

// At implements Arena.
func (s Slice[N]) At(ref uint32) *N {
	return &s[ref]
}
