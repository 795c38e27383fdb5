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

// Head is the reference of a List's own sentinel node. It is never a valid
// arena index.
const Head = Nil - 1

// Node is the link of a circular doubly-linked List.
type Node struct {
	Next, Prev uint32
}

// Init marks the node as unlinked.
func (n *Node) Init() {
	n.Next, n.Prev = Nil, Nil
}

// Linked reports whether the node is on a list.
func (n *Node) Linked() bool {
	return n.Next != Nil
}

// List is a circular doubly-linked list with a sentinel head. The sentinel
// is embedded in the List and addressed by the Head reference, so an empty
// list is one whose sentinel points at itself. A List must not be copied
// after Init.
type List struct {
	head  Node
	arena Arena[Node]
}

// NewList returns an empty list over arena.
func NewList(arena Arena[Node]) *List {
	l := &List{arena: arena}
	l.Init()
	return l
}

// Init empties the list. Linked nodes are not modified.
func (l *List) Init() {
	l.head = Node{Next: Head, Prev: Head}
}

func (l *List) node(ref uint32) *Node {
	if ref == Head {
		return &l.head
	}
	return l.arena.At(ref)
}

// Empty reports whether the list has no nodes.
func (l *List) Empty() bool {
	return l.head.Next == Head
}

// Singular reports whether the list has exactly one node.
func (l *List) Singular() bool {
	return !l.Empty() && l.head.Next == l.head.Prev
}

// First returns the first node, or Nil.
func (l *List) First() uint32 {
	return l.outer(l.head.Next)
}

// Last returns the last node, or Nil.
func (l *List) Last() uint32 {
	return l.outer(l.head.Prev)
}

// Next returns the node after ref, or Nil at the end of the list.
func (l *List) Next(ref uint32) uint32 {
	return l.outer(l.node(ref).Next)
}

// Prev returns the node before ref, or Nil at the front of the list.
func (l *List) Prev(ref uint32) uint32 {
	return l.outer(l.node(ref).Prev)
}

func (l *List) outer(ref uint32) uint32 {
	if ref == Head {
		return Nil
	}
	return ref
}

// AddAfter links ref after prev, which is either a linked node or Head.
func (l *List) AddAfter(ref, prev uint32) {
	n, p := l.node(ref), l.node(prev)
	next := p.Next
	l.node(next).Prev = ref
	n.Next = next
	n.Prev = prev
	p.Next = ref
}

// AddBefore links ref before next, which is either a linked node or Head.
func (l *List) AddBefore(ref, next uint32) {
	l.AddAfter(ref, l.node(next).Prev)
}

// Add links ref at the front of the list.
func (l *List) Add(ref uint32) {
	l.AddAfter(ref, Head)
}

// AddTail links ref at the back of the list.
func (l *List) AddTail(ref uint32) {
	l.AddBefore(ref, Head)
}

// Del unlinks ref and marks it unlinked.
func (l *List) Del(ref uint32) {
	n := l.node(ref)
	l.node(n.Next).Prev = n.Prev
	l.node(n.Prev).Next = n.Next
	n.Init()
}

// MoveHead moves a linked node to the front of the list.
func (l *List) MoveHead(ref uint32) {
	l.Del(ref)
	l.Add(ref)
}

// Len counts the nodes. There is no cached counter, so this is O(n).
func (l *List) Len() int {
	var n int
	for it := l.head.Next; it != Head; it = l.node(it).Next {
		n++
	}
	return n
}

// Walk calls yield for every node front to back until yield returns false.
func (l *List) Walk(yield func(ref uint32) bool) {
	for it := l.head.Next; it != Head; {
		next := l.node(it).Next
		if !yield(it) {
			return
		}
		it = next
	}
}

// WalkReverse calls yield for every node back to front until yield returns
// false.
func (l *List) WalkReverse(yield func(ref uint32) bool) {
	for it := l.head.Prev; it != Head; {
		prev := l.node(it).Prev
		if !yield(it) {
			return
		}
		it = prev
	}
}
