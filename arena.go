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

package pagepool

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/pagepool/index"
	"github.com/cockroachdb/pagepool/list"
)

// nodeArena resolves a page index to a node stored offset bytes into the
// page.
type nodeArena[N any] struct {
	p      *Pool
	offset uintptr
}

// NodeArena returns a list.Arena whose reference i is the N stored at offset
// within page i. It lets records held in pool pages be linked into the
// containers of package list and into hashtable.Table. It panics if an N at
// offset does not fit in a page or is misaligned.
func NodeArena[N any](p *Pool, offset uintptr) list.Arena[N] {
	var n N
	if offset+unsafe.Sizeof(n) > uintptr(p.PageSize()) {
		panic(fmt.Sprintf("pagepool: node of %d bytes at offset %d exceeds page size %d",
			unsafe.Sizeof(n), offset, p.PageSize()))
	}
	if offset%unsafe.Alignof(n) != 0 {
		panic(fmt.Sprintf("pagepool: offset %d is not aligned to %d", offset, unsafe.Alignof(n)))
	}
	return nodeArena[N]{p: p, offset: offset}
}

func (a nodeArena[N]) At(ref uint32) *N {
	return (*N)(unsafe.Add(a.p.pageAt(index.Clamp0(ref, a.p.mask)), a.offset))
}

// As returns the record of type T stored at the start of page. T must not
// contain Go pointers if the pool is mapped. It panics if T does not fit.
func As[T any](page []byte) *T {
	var t T
	if unsafe.Sizeof(t) > uintptr(len(page)) {
		panic(fmt.Sprintf("pagepool: record of %d bytes exceeds page of %d", unsafe.Sizeof(t), len(page)))
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(page)))
}

// Record returns the T stored in page i, clamping i like Page.
func Record[T any](p *Pool, i uint32) *T {
	return As[T](p.Page(i))
}
