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

// SNode is the link of a singly-linked list.
type SNode struct {
	Next uint32
}

// Init marks the node as the end of a chain.
func (n *SNode) Init() {
	n.Next = Nil
}

// SList is a forward-only list of SNodes.
type SList struct {
	Head  uint32
	arena Arena[SNode]
}

// MakeSList returns an empty list over arena.
func MakeSList(arena Arena[SNode]) SList {
	return SList{Head: Nil, arena: arena}
}

// Init empties the list. The nodes are not modified.
func (l *SList) Init() {
	l.Head = Nil
}

// Empty reports whether the list has no nodes.
func (l *SList) Empty() bool {
	return l.Head == Nil
}

// Push links ref at the front of the list.
func (l *SList) Push(ref uint32) {
	l.arena.At(ref).Next = l.Head
	l.Head = ref
}

// Pop unlinks and returns the first node.
func (l *SList) Pop() (uint32, bool) {
	ref := l.Head
	if ref == Nil {
		return Nil, false
	}
	n := l.arena.At(ref)
	l.Head = n.Next
	n.Next = Nil
	return ref, true
}

// AddAfter links ref directly after the linked node after.
func (l *SList) AddAfter(ref, after uint32) {
	a := l.arena.At(after)
	l.arena.At(ref).Next = a.Next
	a.Next = ref
}

// DelAfter unlinks and returns the node following prev. A prev of Nil
// removes the head. It returns Nil if there is no such node.
func (l *SList) DelAfter(prev uint32) uint32 {
	if prev == Nil {
		ref, _ := l.Pop()
		return ref
	}
	p := l.arena.At(prev)
	ref := p.Next
	if ref == Nil {
		return Nil
	}
	n := l.arena.At(ref)
	p.Next = n.Next
	n.Next = Nil
	return ref
}

// Split cuts the chain starting at head in two at its mid-point, using a
// fast and a slow cursor, and returns the head of the second half. For an
// odd length the first half is the longer one.
func (l *SList) Split(head uint32) uint32 {
	if head == Nil {
		return Nil
	}
	slow, fast := head, head
	for {
		next := l.arena.At(fast).Next
		if next == Nil {
			break
		}
		fast = l.arena.At(next).Next
		if fast == Nil {
			break
		}
		slow = l.arena.At(slow).Next
	}
	s := l.arena.At(slow)
	second := s.Next
	s.Next = Nil
	return second
}

// Sort orders the list with a stable merge sort. less is called with node
// references.
func (l *SList) Sort(less func(a, b uint32) bool) {
	l.Head = l.mergeSort(l.Head, less)
}

func (l *SList) mergeSort(head uint32, less func(a, b uint32) bool) uint32 {
	if head == Nil || l.arena.At(head).Next == Nil {
		return head
	}
	second := l.Split(head)
	return l.merge(l.mergeSort(head, less), l.mergeSort(second, less), less)
}

func (l *SList) merge(a, b uint32, less func(a, b uint32) bool) uint32 {
	head, tail := Nil, Nil
	for a != Nil && b != Nil {
		var n uint32
		if less(b, a) {
			n, b = b, l.arena.At(b).Next
		} else {
			n, a = a, l.arena.At(a).Next
		}
		if tail == Nil {
			head = n
		} else {
			l.arena.At(tail).Next = n
		}
		tail = n
	}
	rest := a
	if rest == Nil {
		rest = b
	}
	if tail == Nil {
		return rest
	}
	l.arena.At(tail).Next = rest
	return head
}

// Len counts the nodes. O(n).
func (l *SList) Len() int {
	var n int
	for it := l.Head; it != Nil; it = l.arena.At(it).Next {
		n++
	}
	return n
}

// Walk calls yield for every node from the head until yield returns false.
func (l *SList) Walk(yield func(ref uint32) bool) {
	for it := l.Head; it != Nil; {
		next := l.arena.At(it).Next
		if !yield(it) {
			return
		}
		it = next
	}
}
