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

package list

import "fmt"

// Cell addresses a link cell that can target a QNode: either one of a
// TailQ's heads or the Next field of another node. The top bit selects
// between the two, which limits node references to 31 bits.
type Cell uint32

const (
	headCell Cell = 1 << 31

	// NilCell is the Prev of an unlinked QNode.
	NilCell = Cell(Nil)

	// MaxRef is the largest node reference a TailQ can link.
	MaxRef = uint32(headCell) - 1
)

// HeadCell returns the cell of head h.
func HeadCell(h uint32) Cell { return Cell(h) | headCell }

// NextCell returns the cell of the Next field of node ref.
func NextCell(ref uint32) Cell { return Cell(ref) }

// IsHead reports whether c is a head cell, and which.
func (c Cell) IsHead() (uint32, bool) {
	return uint32(c &^ headCell), c != NilCell && c&headCell != 0
}

func (c Cell) String() string {
	switch h, ok := c.IsHead(); {
	case c == NilCell:
		return "nil"
	case ok:
		return fmt.Sprintf("head(%d)", h)
	default:
		return fmt.Sprintf("next(%d)", uint32(c))
	}
}

// QNode is the link of a TailQ. Prev is the cell that currently targets the
// node: a head if the node is first, otherwise its predecessor's Next.
type QNode struct {
	Next uint32
	Prev Cell
}

// Init marks the node as unlinked.
func (n *QNode) Init() {
	n.Next, n.Prev = Nil, NilCell
}

// Linked reports whether the node is on a queue.
func (n *QNode) Linked() bool {
	return n.Prev != NilCell
}

// TailQ is a fixed set of queue heads over one arena. Nodes are added at the
// head and removed in O(1) by writing their successor through their Prev
// cell.
type TailQ struct {
	heads []uint32
	arena Arena[QNode]
}

// NewTailQ returns n empty heads over arena. n is at most MaxRef, so the
// cell of the last head never collides with NilCell.
func NewTailQ(n int, arena Arena[QNode]) *TailQ {
	if n <= 0 || uint64(n) > uint64(MaxRef) {
		panic(fmt.Sprintf("list: invalid head count %d", n))
	}
	q := &TailQ{
		heads: make([]uint32, n),
		arena: arena,
	}
	q.Reset()
	return q
}

// Reset empties every head. Linked nodes are not modified.
func (q *TailQ) Reset() {
	for i := range q.heads {
		q.heads[i] = Nil
	}
}

// Heads returns the number of heads.
func (q *TailQ) Heads() int {
	return len(q.heads)
}

// cell resolves c to the storage it names.
func (q *TailQ) cell(c Cell) *uint32 {
	if c&headCell != 0 {
		return &q.heads[c&^headCell]
	}
	return &q.arena.At(uint32(c)).Next
}

// Node returns the node for ref.
func (q *TailQ) Node(ref uint32) *QNode {
	return q.arena.At(ref)
}

// Head returns the first node of head h, or Nil.
func (q *TailQ) Head(h uint32) uint32 {
	return q.heads[h]
}

// Empty reports whether head h has no nodes.
func (q *TailQ) Empty(h uint32) bool {
	return q.heads[h] == Nil
}

// Singular reports whether head h has exactly one node.
func (q *TailQ) Singular(h uint32) bool {
	first := q.heads[h]
	return first != Nil && q.arena.At(first).Next == Nil
}

// Add links ref at the front of head h.
func (q *TailQ) Add(h, ref uint32) {
	n := q.arena.At(ref)
	first := q.heads[h]
	n.Next = first
	if first != Nil {
		q.arena.At(first).Prev = NextCell(ref)
	}
	q.heads[h] = ref
	n.Prev = HeadCell(h)
}

// AddBefore links ref in front of the linked node next.
func (q *TailQ) AddBefore(ref, next uint32) {
	n, x := q.arena.At(ref), q.arena.At(next)
	n.Prev = x.Prev
	n.Next = next
	x.Prev = NextCell(ref)
	*q.cell(n.Prev) = ref
}

// AddAfter links ref behind the linked node after.
func (q *TailQ) AddAfter(ref, after uint32) {
	n, a := q.arena.At(ref), q.arena.At(after)
	n.Next = a.Next
	a.Next = ref
	n.Prev = NextCell(after)
	if n.Next != Nil {
		q.arena.At(n.Next).Prev = NextCell(ref)
	}
}

// Del unlinks ref. Deleting an unlinked node is a no-op.
func (q *TailQ) Del(ref uint32) {
	n := q.arena.At(ref)
	if n.Prev == NilCell {
		return
	}
	*q.cell(n.Prev) = n.Next
	if n.Next != Nil {
		q.arena.At(n.Next).Prev = n.Prev
	}
	n.Init()
}

// Len counts the nodes of head h. O(n).
func (q *TailQ) Len(h uint32) int {
	var n int
	for it := q.heads[h]; it != Nil; it = q.arena.At(it).Next {
		n++
	}
	return n
}

// Walk calls yield for every node of head h until yield returns false.
func (q *TailQ) Walk(h uint32, yield func(ref uint32) bool) {
	for it := q.heads[h]; it != Nil; {
		next := q.arena.At(it).Next
		if !yield(it) {
			return
		}
		it = next
	}
}
