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
	"io"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// option provide an interface to do work on Pool while it is being created.
type option interface {
	apply(p *Pool)
}

// Prot is a set of memory protection flags for the backing storage.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec

	// ProtNone forbids all access.
	ProtNone Prot = 0
)

func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Mode selects the mapping strategy for the backing storage.
type Mode uint8

const (
	// ModeHeap backs the pool with Go heap memory.
	ModeHeap Mode = iota
	// ModeAnonymous backs the pool with an anonymous private mapping.
	ModeAnonymous
	// ModeFile backs the pool with a shared mapping of the file set with
	// WithFile.
	ModeFile
)

func (m Mode) String() string {
	switch m {
	case ModeHeap:
		return "heap"
	case ModeAnonymous:
		return "anonymous"
	case ModeFile:
		return "file"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Allocator specifies an interface for reserving and releasing the storage
// backing a Pool. The default allocator for ModeHeap uses Go's builtin
// make() and lets the GC reclaim memory; the mapping modes use mmap.
type Allocator interface {
	// Alloc returns n bytes of zeroed storage aligned to at least 8 bytes.
	Alloc(n int) ([]byte, error)

	// Free releases storage that is guaranteed to have been returned by
	// Alloc.
	Free(b []byte) error
}

// Advisor is implemented by allocators that can hint upcoming access to a
// range of their storage.
type Advisor interface {
	WillNeed(b []byte) error
}

// Protector is implemented by allocators that can change the protection of
// their storage.
type Protector interface {
	Protect(b []byte, prot Prot) error
}

type heapAllocator struct{}

// Alloc returns an error rather than panicking when the runtime refuses a
// slice of n bytes. Requests the runtime accepts but the host cannot back
// still abort the process; use a mapping mode for pools near memory size.
func (heapAllocator) Alloc(n int) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, errors.Errorf("heap: %v", r)
		}
	}()
	// Allocate words so page headers and records are 8-byte aligned.
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n), nil
}

func (heapAllocator) Free(b []byte) error {
	return nil
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(p *Pool) {
	p.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Pool. It
// takes precedence over WithMode.
func WithAllocator(allocator Allocator) option {
	return allocatorOption{allocator}
}

type protOption struct {
	prot Prot
}

func (op protOption) apply(p *Pool) {
	p.prot = op.prot
}

// WithProt sets the protection of a mapped pool. The pool writes its free
// list during creation, so the flags must include ProtRead and ProtWrite.
// The default is ProtRead|ProtWrite.
func WithProt(prot Prot) option {
	return protOption{prot}
}

type modeOption struct {
	mode Mode
}

func (op modeOption) apply(p *Pool) {
	p.mode = op.mode
}

// WithMode sets the mapping strategy. The default is ModeHeap.
func WithMode(mode Mode) option {
	return modeOption{mode}
}

type fileOption struct {
	path string
}

func (op fileOption) apply(p *Pool) {
	p.path = op.path
	p.mode = ModeFile
}

// WithFile backs the pool with a shared mapping of the file at path, which is
// created or truncated to the pool size. It implies ModeFile.
func WithFile(path string) option {
	return fileOption{path}
}

type loggerOption struct {
	logger logrus.FieldLogger
}

func (op loggerOption) apply(p *Pool) {
	p.logger = op.logger
}

// WithLogger sets the logger used for lifecycle events. By default nothing
// is logged.
func WithLogger(logger logrus.FieldLogger) option {
	return loggerOption{logger}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
