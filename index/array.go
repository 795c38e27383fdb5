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

package index

import (
	"fmt"
	"unsafe"
)

// Entry is an explicit index to value override of an Array.
type Entry[T any] struct {
	Index uint32
	Value T
}

// Array is a power-of-two padded lookup table. Every slot not named by an
// Entry holds the anchor value, so At never needs a range check: the index is
// clamped onto the table and an out-of-range index lands on an anchor slot.
//
// A zero-based Array clamps to the last slot, which is always an anchor. A
// one-based Array reserves slot 0 for the anchor and maps out-of-range
// indexes to it. The zero value is not usable.
type Array[T any] struct {
	items    []T
	mask     uint32
	size     uint32
	oneBased bool
}

// NewArray returns a zero-based Array. The capacity is the smallest power of
// two strictly greater than the largest entry index, which keeps the clamp
// target (the last slot) an anchor.
func NewArray[T any](anchor T, entries ...Entry[T]) Array[T] {
	var n uint64
	for _, e := range entries {
		if uint64(e.Index)+1 > n {
			n = uint64(e.Index) + 1
		}
	}
	return makeArray(anchor, NextPow2(n+1), uint32(n+1), false, entries)
}

// NewArray1 returns a one-based Array. Slot 0 is the anchor and may not be
// overridden.
func NewArray1[T any](anchor T, entries ...Entry[T]) Array[T] {
	var n uint64 = 1
	for _, e := range entries {
		if e.Index == 0 {
			panic("index: one-based array entry at reserved index 0")
		}
		if uint64(e.Index)+1 > n {
			n = uint64(e.Index) + 1
		}
	}
	return makeArray(anchor, NextPow2(n), uint32(n), true, entries)
}

func makeArray[T any](anchor T, capacity uint64, size uint32, oneBased bool, entries []Entry[T]) Array[T] {
	if capacity > 1<<31 {
		panic(fmt.Sprintf("index: array capacity %d too large", capacity))
	}
	a := Array[T]{
		items:    make([]T, capacity),
		mask:     Mask(capacity),
		size:     size,
		oneBased: oneBased,
	}
	for i := range a.items {
		a.items[i] = anchor
	}
	for _, e := range entries {
		a.items[e.Index] = e.Value
	}
	return a
}

// Verify returns the clamped index At would read.
func (a Array[T]) Verify(i uint32) uint32 {
	if a.oneBased {
		return Clamp1(i, a.mask)
	}
	return Clamp0(i, a.mask)
}

// At returns the element at i, or the anchor if i is unused or out of range.
func (a Array[T]) At(i uint32) T {
	var t T
	base := unsafe.Pointer(unsafe.SliceData(a.items))
	return *(*T)(unsafe.Add(base, unsafe.Sizeof(t)*uintptr(a.Verify(i))))
}

// Anchor returns the default element.
func (a Array[T]) Anchor() T {
	if a.oneBased {
		return a.items[0]
	}
	return a.items[a.mask]
}

// Size returns the number of declared slots, including the anchor.
func (a Array[T]) Size() int { return int(a.size) }

// Cap returns the padded capacity, always a power of two.
func (a Array[T]) Cap() int { return len(a.items) }

// Mask returns Cap()-1.
func (a Array[T]) Mask() uint32 { return a.mask }
