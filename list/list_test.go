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

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(walk func(func(uint32) bool)) []uint32 {
	var refs []uint32
	walk(func(ref uint32) bool {
		refs = append(refs, ref)
		return true
	})
	return refs
}

func newSList(n int) (SList, Slice[SNode]) {
	arena := make(Slice[SNode], n)
	for i := range arena {
		arena[i].Init()
	}
	return MakeSList(arena), arena
}

func TestSListPushPop(t *testing.T) {
	l, _ := newSList(4)
	require.True(t, l.Empty())
	_, ok := l.Pop()
	require.False(t, ok)

	for i := uint32(0); i < 4; i++ {
		l.Push(i)
	}
	require.Equal(t, 4, l.Len())
	require.Equal(t, []uint32{3, 2, 1, 0}, collect(l.Walk))

	ref, ok := l.Pop()
	require.True(t, ok)
	require.EqualValues(t, 3, ref)
	require.Equal(t, []uint32{2, 1, 0}, collect(l.Walk))
}

func TestSListAddDelAfter(t *testing.T) {
	l, _ := newSList(5)
	l.Push(0)
	l.AddAfter(2, 0)
	l.AddAfter(1, 0)
	l.AddAfter(3, 2)
	require.Equal(t, []uint32{0, 1, 2, 3}, collect(l.Walk))

	require.EqualValues(t, 2, l.DelAfter(1))
	require.Equal(t, []uint32{0, 1, 3}, collect(l.Walk))
	require.EqualValues(t, 0, l.DelAfter(Nil))
	require.Equal(t, []uint32{1, 3}, collect(l.Walk))
	require.Equal(t, Nil, l.DelAfter(3))
}

func TestSListSplit(t *testing.T) {
	for n := 1; n <= 9; n++ {
		l, _ := newSList(n)
		for i := n - 1; i >= 0; i-- {
			l.Push(uint32(i))
		}
		second := l.Split(l.Head)
		first := collect(l.Walk)
		var rest []uint32
		for it := second; it != Nil; it = l.arena.At(it).Next {
			rest = append(rest, it)
		}
		require.Equal(t, (n+1)/2, len(first), "n=%d", n)
		require.Equal(t, n/2, len(rest), "n=%d", n)
		require.Equal(t, n, len(first)+len(rest))
	}
	l, _ := newSList(1)
	require.Equal(t, Nil, l.Split(Nil))
}

func TestSListSort(t *testing.T) {
	const n = 257
	keys := rand.Perm(n)
	l, _ := newSList(n)
	for i := 0; i < n; i++ {
		l.Push(uint32(i))
	}
	l.Sort(func(a, b uint32) bool { return keys[a] < keys[b] })

	refs := collect(l.Walk)
	require.Len(t, refs, n)
	require.True(t, sort.SliceIsSorted(refs, func(i, j int) bool {
		return keys[refs[i]] < keys[refs[j]]
	}))
}

func TestSListWalkDelete(t *testing.T) {
	l, _ := newSList(6)
	for i := uint32(0); i < 6; i++ {
		l.Push(i)
	}
	// Deleting the visited node must not stop the walk.
	var prev uint32 = Nil
	l.Walk(func(ref uint32) bool {
		if ref%2 == 0 {
			l.DelAfter(prev)
			return true
		}
		prev = ref
		return true
	})
	require.Equal(t, []uint32{5, 3, 1}, collect(l.Walk))
}

func newList(n int) (*List, Slice[Node]) {
	arena := make(Slice[Node], n)
	for i := range arena {
		arena[i].Init()
	}
	return NewList(arena), arena
}

func TestListBasic(t *testing.T) {
	l, arena := newList(8)
	require.True(t, l.Empty())
	require.Equal(t, Nil, l.First())
	require.Equal(t, Nil, l.Last())
	require.Zero(t, l.Len())

	l.Add(1)
	require.True(t, l.Singular())
	l.Add(0)
	l.AddTail(2)
	l.AddAfter(3, 2)
	l.AddBefore(4, 0)
	require.False(t, l.Singular())
	require.Equal(t, []uint32{4, 0, 1, 2, 3}, collect(l.Walk))
	require.Equal(t, []uint32{3, 2, 1, 0, 4}, collect(l.WalkReverse))
	require.Equal(t, 5, l.Len())
	require.EqualValues(t, 4, l.First())
	require.EqualValues(t, 3, l.Last())
	require.EqualValues(t, 1, l.Next(0))
	require.Equal(t, Nil, l.Next(3))
	require.Equal(t, Nil, l.Prev(4))

	l.Del(1)
	require.False(t, arena[1].Linked())
	require.Equal(t, []uint32{4, 0, 2, 3}, collect(l.Walk))

	l.MoveHead(3)
	require.Equal(t, []uint32{3, 4, 0, 2}, collect(l.Walk))
}

func TestListWalkDelete(t *testing.T) {
	l, _ := newList(10)
	for i := uint32(0); i < 10; i++ {
		l.AddTail(i)
	}
	l.Walk(func(ref uint32) bool {
		if ref%3 == 0 {
			l.Del(ref)
		}
		return true
	})
	require.Equal(t, []uint32{1, 2, 4, 5, 7, 8}, collect(l.Walk))

	l.WalkReverse(func(ref uint32) bool {
		l.Del(ref)
		return ref != 5
	})
	require.Equal(t, []uint32{1, 2, 4}, collect(l.Walk))
}

func newTailQ(heads, n int) (*TailQ, Slice[QNode]) {
	arena := make(Slice[QNode], n)
	for i := range arena {
		arena[i].Init()
	}
	return NewTailQ(heads, arena), arena
}

func TestTailQBasic(t *testing.T) {
	q, arena := newTailQ(2, 8)
	require.Equal(t, 2, q.Heads())
	require.True(t, q.Empty(0))

	q.Add(0, 1)
	require.True(t, q.Singular(0))
	q.Add(0, 2)
	q.Add(0, 3)
	q.Add(1, 4)
	require.Equal(t, []uint32{3, 2, 1}, collect(func(y func(uint32) bool) { q.Walk(0, y) }))
	require.Equal(t, HeadCell(0), arena[3].Prev)
	require.Equal(t, NextCell(3), arena[2].Prev)
	require.Equal(t, 3, q.Len(0))
	require.Equal(t, 1, q.Len(1))

	// Removing the first node writes through the head cell.
	q.Del(3)
	require.False(t, arena[3].Linked())
	require.EqualValues(t, 2, q.Head(0))
	require.Equal(t, HeadCell(0), arena[2].Prev)

	// Removing a middle node writes through a sibling's Next.
	q.Add(0, 3)
	q.Del(2)
	require.Equal(t, []uint32{3, 1}, collect(func(y func(uint32) bool) { q.Walk(0, y) }))
	require.Equal(t, NextCell(3), arena[1].Prev)

	// Removing an unlinked node is a no-op.
	q.Del(2)
	require.Equal(t, 2, q.Len(0))
	require.Equal(t, []uint32{4}, collect(func(y func(uint32) bool) { q.Walk(1, y) }))
}

func TestTailQAddBeforeAfter(t *testing.T) {
	q, _ := newTailQ(1, 6)
	q.Add(0, 0)
	q.AddBefore(1, 0)
	q.AddAfter(2, 0)
	q.AddAfter(3, 1)
	q.AddBefore(4, 2)
	require.Equal(t, []uint32{1, 3, 0, 4, 2}, collect(func(y func(uint32) bool) { q.Walk(0, y) }))

	for _, ref := range []uint32{1, 2, 0, 4, 3} {
		q.Del(ref)
	}
	require.True(t, q.Empty(0))
}

func TestTailQRandom(t *testing.T) {
	const heads, n = 4, 64
	q, arena := newTailQ(heads, n)
	owner := make(map[uint32]uint32)
	for i := 0; i < 10000; i++ {
		ref := uint32(rand.Intn(n))
		if _, ok := owner[ref]; ok {
			q.Del(ref)
			delete(owner, ref)
			require.False(t, arena[ref].Linked())
		} else {
			h := uint32(rand.Intn(heads))
			q.Add(h, ref)
			owner[ref] = h
		}
	}
	var total int
	for h := uint32(0); h < heads; h++ {
		q.Walk(h, func(ref uint32) bool {
			require.Equal(t, h, owner[ref])
			total++
			return true
		})
	}
	require.Equal(t, len(owner), total)
}

func TestCellString(t *testing.T) {
	require.Equal(t, "nil", NilCell.String())
	require.Equal(t, "head(3)", HeadCell(3).String())
	require.Equal(t, "next(7)", NextCell(7).String())
	require.Panics(t, func() { NewTailQ(0, Slice[QNode]{}) })
}

func TestTailQHeadLimit(t *testing.T) {
	// The cell of head MaxRef would read as NilCell.
	require.Equal(t, NilCell, HeadCell(MaxRef))
	require.NotEqual(t, NilCell, HeadCell(MaxRef-1))
	n := int(MaxRef)
	require.Panics(t, func() { NewTailQ(n+1, Slice[QNode]{}) })
}
