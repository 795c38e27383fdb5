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

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package pagepool

import (
	"os"

	"github.com/pkg/errors"
)

// OSPageSize returns the virtual memory page size of the host.
func OSPageSize() int {
	return os.Getpagesize()
}

// newMmapAllocator falls back to heap memory for anonymous mappings when mmap
// is not available. File mappings are not supported.
func newMmapAllocator(mode Mode, prot Prot, path string) (Allocator, error) {
	if mode == ModeFile {
		return nil, errors.Errorf("%s mode is not supported on this platform", mode)
	}
	return heapAllocator{}, nil
}
