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

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pagepool

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// OSPageSize returns the virtual memory page size of the host.
func OSPageSize() int {
	return unix.Getpagesize()
}

// mmapAllocator reserves a single mapping. It is owned by one Pool.
type mmapAllocator struct {
	mode Mode
	prot Prot
	path string
	file *os.File
	data []byte
}

func newMmapAllocator(mode Mode, prot Prot, path string) (Allocator, error) {
	if mode == ModeFile && path == "" {
		return nil, errors.New("file mode requires a path")
	}
	return &mmapAllocator{mode: mode, prot: prot, path: path}, nil
}

func unixProt(prot Prot) int {
	var v int
	if prot&ProtRead != 0 {
		v |= unix.PROT_READ
	}
	if prot&ProtWrite != 0 {
		v |= unix.PROT_WRITE
	}
	if prot&ProtExec != 0 {
		v |= unix.PROT_EXEC
	}
	return v
}

func (a *mmapAllocator) Alloc(n int) ([]byte, error) {
	if a.data != nil {
		return nil, errors.New("mapping already reserved")
	}
	fd, flags := -1, unix.MAP_ANON|unix.MAP_PRIVATE
	if a.mode == ModeFile {
		f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, errors.Wrap(err, "open")
		}
		if err := f.Truncate(int64(n)); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "truncate")
		}
		a.file = f
		fd, flags = int(f.Fd()), unix.MAP_SHARED
	}
	data, err := unix.Mmap(fd, 0, n, unixProt(a.prot), flags)
	if err != nil {
		if a.file != nil {
			_ = a.file.Close()
			a.file = nil
		}
		return nil, errors.Wrap(err, "mmap")
	}
	a.data = data
	return data, nil
}

func (a *mmapAllocator) Free(b []byte) error {
	if a.data == nil {
		return nil
	}
	err := unix.Munmap(a.data)
	a.data = nil
	if errors.Is(err, unix.EINVAL) {
		// Already unmapped.
		err = nil
	}
	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}
		a.file = nil
	}
	return errors.Wrap(err, "munmap")
}

// WillNeed advises the kernel that b, a sub-slice of the mapping, will be
// accessed soon. madvise wants a page aligned address, so the range is
// widened down to the enclosing OS page.
func (a *mmapAllocator) WillNeed(b []byte) error {
	if a.data == nil || len(b) == 0 {
		return nil
	}
	off := uintptr(unsafe.Pointer(unsafe.SliceData(b))) - uintptr(unsafe.Pointer(unsafe.SliceData(a.data)))
	start := off &^ uintptr(OSPageSize()-1)
	end := off + uintptr(len(b))
	if end > uintptr(len(a.data)) {
		return errors.New("range outside mapping")
	}
	return errors.Wrap(unix.Madvise(a.data[start:end], unix.MADV_WILLNEED), "madvise")
}

func (a *mmapAllocator) Protect(b []byte, prot Prot) error {
	if a.data == nil {
		return nil
	}
	if err := unix.Mprotect(a.data, unixProt(prot)); err != nil {
		return errors.Wrap(err, "mprotect")
	}
	a.prot = prot
	return nil
}
