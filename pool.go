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

// Package pagepool is a fixed-capacity pool of equal-size pages with an
// intrusive free list, the allocation layer underneath keyed record tables
// such as github.com/cockroachdb/pagepool/hashtable.
//
// # Layout
//
// A Pool reserves total<<shift bytes once, from the Go heap or from an mmap
// mapping, and never grows. total and the page size are both powers of two
// so a page index translates to an address with a shift and a caller
// supplied index can be clamped onto the pool with a mask (see package
// index). While a page is free its first four bytes hold the index of the
// next free page:
//
//	 free ─> [ 2 | ........ ]   page 0
//	         [ ... payload  ]   page 1 (acquired)
//	         [ 3 | ........ ]   page 2
//	         [ ~0| ........ ]   page 3 (end of list)
//
// Acquire pops the head of that list and Release pushes onto it, so both are
// O(1) with no search and the most recently released page is the next one
// handed out. Once acquired, every byte of a page belongs to the caller;
// the contents of a freshly acquired page are unspecified.
//
// # Ownership
//
// The pool owns only free pages. Release of a page that was not acquired
// from the same pool, or releasing a page twice, is not detected: it links
// the page into the free list a second time and a later Acquire hands out a
// page that is still owned. Verify walks the free list and reports such
// damage, and builds with the invariants tag check the list after every
// operation, but neither is on the normal path.
//
// Records stored in pages must not contain Go pointers when the pool is
// backed by a mapping, since the garbage collector does not scan it. The
// containers in package list link records by index for that reason.
//
// A Pool is NOT goroutine-safe.
package pagepool

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/pagepool/index"
	"github.com/cockroachdb/pagepool/list"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// MinPageBits is the smallest page size: one free-list header.
	MinPageBits = 2
	// MaxPageBits is the largest page size (1 GiB).
	MaxPageBits = 30
	// MaxPages is the largest page count. Page indexes must leave room for
	// the list.Nil sentinel and the list.TailQ head bit.
	MaxPages = 1 << 31
)

// Pool is a fixed set of 1<<shift byte pages.
type Pool struct {
	data  []byte
	base  unsafe.Pointer
	free  list.SList
	avail uint32
	total uint32
	mask  uint32
	shift uint

	allocator Allocator
	logger    logrus.FieldLogger
	mode      Mode
	prot      Prot
	path      string
}

// New reserves storage for pages pages of 1<<pageBits bytes each and links
// every page into the free list in ascending order. pages must be a power of
// two no larger than MaxPages and pageBits must be within
// [MinPageBits, MaxPageBits]. Parameter and storage failures return an error
// wrapping ErrAllocation.
func New(pages int, pageBits uint, options ...option) (*Pool, error) {
	p := &Pool{
		mode: ModeHeap,
		prot: ProtRead | ProtWrite,
	}
	for _, op := range options {
		op.apply(p)
	}
	if p.logger == nil {
		p.logger = DiscardLogger()
	}

	switch {
	case pages <= 0 || uint64(pages) > MaxPages || !index.IsPow2(uint64(pages)):
		return nil, errors.Wrapf(ErrAllocation, "page count %d is not a power of two in [1, %d]", pages, uint64(MaxPages))
	case pageBits < MinPageBits || pageBits > MaxPageBits:
		return nil, errors.Wrapf(ErrAllocation, "page bits %d not in [%d, %d]", pageBits, MinPageBits, MaxPageBits)
	case p.prot&(ProtRead|ProtWrite) != ProtRead|ProtWrite:
		return nil, errors.Wrapf(ErrAllocation, "protection %s must allow read and write", p.prot)
	}
	hi, size := bits.Mul64(uint64(pages), uint64(1)<<pageBits)
	if hi != 0 || size > uint64(^uint(0)>>1) {
		return nil, errors.Wrapf(ErrAllocation, "%d pages of %d bytes overflow the address space", pages, 1<<pageBits)
	}

	if p.allocator == nil {
		if p.mode == ModeHeap {
			p.allocator = heapAllocator{}
		} else {
			a, err := newMmapAllocator(p.mode, p.prot, p.path)
			if err != nil {
				return nil, errors.Wrapf(ErrAllocation, "%s: %v", p.mode, err)
			}
			p.allocator = a
		}
	}

	data, err := p.allocator.Alloc(int(size))
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "reserve %d bytes: %v", size, err)
	}
	if len(data) < int(size) {
		_ = p.allocator.Free(data)
		return nil, errors.Wrapf(ErrAllocation, "allocator returned %d bytes, want %d", len(data), size)
	}

	p.data = data
	p.base = unsafe.Pointer(unsafe.SliceData(data))
	p.total = uint32(pages)
	p.mask = index.Mask(uint64(pages))
	p.shift = pageBits
	p.free = list.MakeSList(freeArena{p})
	p.Reset()

	p.logger.WithFields(logrus.Fields{
		"pages":     pages,
		"page_size": 1 << pageBits,
		"mode":      p.mode,
		"prot":      p.prot,
	}).Debug("pagepool: created")
	return p, nil
}

// freeArena views the header of each page as a free-list node.
type freeArena struct {
	p *Pool
}

func (a freeArena) At(ref uint32) *list.SNode {
	return (*list.SNode)(a.p.pageAt(index.Clamp0(ref, a.p.mask)))
}

// pageAt returns the address of page i. i must be in range.
func (p *Pool) pageAt(i uint32) unsafe.Pointer {
	return unsafe.Add(p.base, uintptr(i)<<p.shift)
}

// Close releases the backing storage. Every page, acquired or not, becomes
// invalid; it is a usage error to touch them afterwards. Close is
// idempotent.
func (p *Pool) Close() error {
	if p.data == nil {
		return nil
	}
	if p.avail != p.total {
		p.logger.WithFields(logrus.Fields{
			"outstanding": p.total - p.avail,
		}).Warn("pagepool: closing with acquired pages")
	}
	err := p.allocator.Free(p.data)
	p.data = nil
	p.base = nil
	p.free.Init()
	p.avail, p.total, p.mask = 0, 0, 0
	p.logger.Debug("pagepool: closed")
	return errors.Wrap(err, "pagepool: free")
}

// Reset returns every page to the free list, in ascending order. Pages held
// by callers are silently reclaimed.
func (p *Pool) Reset() {
	p.free.Init()
	for i := p.total; i > 0; i-- {
		p.free.Push(i - 1)
	}
	p.avail = p.total
	p.checkInvariants()
}

// Acquire removes the first page from the free list and returns its index.
// It returns false when the pool is exhausted, which is an expected
// condition under load and not an error.
func (p *Pool) Acquire() (uint32, bool) {
	i, ok := p.free.Pop()
	if !ok {
		return 0, false
	}
	p.avail--
	p.checkInvariants()
	return i, true
}

// TryAcquire is Acquire returning ErrExhausted instead of false.
func (p *Pool) TryAcquire() (uint32, error) {
	i, ok := p.Acquire()
	if !ok {
		return 0, ErrExhausted
	}
	return i, nil
}

// Release returns page i to the front of the free list. i must have been
// returned by Acquire on this pool and not released since; neither is
// checked. An out-of-range i is clamped, so Release never writes outside the
// pool.
func (p *Pool) Release(i uint32) {
	p.free.Push(index.Clamp0(i, p.mask))
	p.avail++
	p.checkInvariants()
}

// Avail returns the number of free pages.
func (p *Pool) Avail() int { return int(p.avail) }

// InUse returns the number of acquired pages.
func (p *Pool) InUse() int { return int(p.total - p.avail) }

// Total returns the number of pages.
func (p *Pool) Total() int { return int(p.total) }

// PageSize returns the size of a page in bytes.
func (p *Pool) PageSize() int { return 1 << p.shift }

// PageBits returns log2 of the page size.
func (p *Pool) PageBits() uint { return p.shift }

// Mode returns the mapping strategy of the pool.
func (p *Pool) Mode() Mode { return p.mode }

// Bytes returns the whole backing storage.
func (p *Pool) Bytes() []byte { return p.data }

// Page returns the storage of page i. An out-of-range i is clamped to the
// last page rather than faulting; use Lookup to detect it.
func (p *Pool) Page(i uint32) []byte {
	return unsafe.Slice((*byte)(p.pageAt(index.Clamp0(i, p.mask))), p.PageSize())
}

// Lookup is Page with strict validation. It returns an error wrapping
// ErrIndexOutOfRange if i is not a page of the pool.
func (p *Pool) Lookup(i uint32) ([]byte, error) {
	if p.total == 0 || index.Check(i, p.mask) != nil {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "page %d of %d", i, p.total)
	}
	return p.Page(i), nil
}

// IndexOf returns the index of the page containing the first byte of page.
// Slices from outside the pool map to a clamped, in-range index.
func (p *Pool) IndexOf(page []byte) uint32 {
	off := uintptr(unsafe.Pointer(unsafe.SliceData(page))) - uintptr(p.base)
	return uint32(index.Clamp0u64(uint64(off>>p.shift), uint64(p.mask)))
}

// All calls yield for every page in index order, free or not, until yield
// returns false.
func (p *Pool) All(yield func(i uint32, page []byte) bool) {
	for i := uint32(0); i < p.total; i++ {
		if !yield(i, p.Page(i)) {
			return
		}
	}
}

// SortFreeList reorders the free list by ascending index so that the next
// acquisitions walk memory in address order. O(n log n) in the free count.
func (p *Pool) SortFreeList() {
	p.free.Sort(func(a, b uint32) bool { return a < b })
	p.checkInvariants()
}

// prefetchSink keeps the heap prefetch reads from being eliminated.
var prefetchSink byte

// Prefetch hints that n pages starting at page i are about to be used. Mapped
// pools pass the hint to the kernel; heap pools touch each page.
func (p *Pool) Prefetch(i, n uint32) error {
	if p.total == 0 || n == 0 {
		return nil
	}
	i = index.Clamp0(i, p.mask)
	if n > p.total-i {
		n = p.total - i
	}
	b := unsafe.Slice((*byte)(p.pageAt(i)), uintptr(n)<<p.shift)
	if a, ok := p.allocator.(Advisor); ok {
		return errors.Wrap(a.WillNeed(b), "pagepool: prefetch")
	}
	var sum byte
	for off := 0; off < len(b); off += 1 << p.shift {
		sum += b[off]
	}
	prefetchSink = sum
	return nil
}

// Protect changes the protection of the whole pool. Removing ProtWrite while
// pages are being acquired or released faults.
func (p *Pool) Protect(prot Prot) error {
	a, ok := p.allocator.(Protector)
	if !ok {
		return errors.Wrapf(ErrUnsupported, "protect %s", p.mode)
	}
	if err := a.Protect(p.data, prot); err != nil {
		return errors.Wrap(err, "pagepool: protect")
	}
	p.prot = prot
	return nil
}

// Verify walks the free list and returns an error wrapping ErrCorrupt if it
// does not visit exactly Avail distinct pages.
func (p *Pool) Verify() error {
	seen := make([]uint64, (p.total+63)/64)
	a := freeArena{p}
	var n uint32
	for it := p.free.Head; it != list.Nil; it = a.At(it).Next {
		if it >= p.total {
			return errors.Wrapf(ErrCorrupt, "page %d out of range after %d entries", it, n)
		}
		w, b := it/64, uint64(1)<<(it%64)
		if seen[w]&b != 0 {
			return errors.Wrapf(ErrCorrupt, "page %d linked twice after %d entries", it, n)
		}
		seen[w] |= b
		n++
	}
	if n != p.avail {
		return errors.Wrapf(ErrCorrupt, "found %d free pages, but avail is %d", n, p.avail)
	}
	return nil
}

func (p *Pool) checkInvariants() {
	if invariants {
		if err := p.Verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, p.debugString()))
		}
	}
}

func (p *Pool) debugString() string {
	var n int
	s := fmt.Sprintf("total=%d  avail=%d  page-size=%d\n  free:", p.total, p.avail, 1<<p.shift)
	a := freeArena{p}
	for it := p.free.Head; it != list.Nil && n <= int(p.total); it = a.At(it).Next {
		s += fmt.Sprintf(" %d", it)
		n++
	}
	return s
}
