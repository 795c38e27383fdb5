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
	"github.com/cockroachdb/pagepool/index"
	"github.com/pkg/errors"
)

var (
	// ErrAllocation indicates that the backing storage could not be reserved
	// or that the pool parameters violate their preconditions.
	ErrAllocation = errors.New("pagepool: allocation failed")

	// ErrExhausted indicates that no free page is available.
	ErrExhausted = errors.New("pagepool: no page available")

	// ErrIndexOutOfRange is returned by the strict lookup APIs.
	ErrIndexOutOfRange = index.ErrIndexOutOfRange

	// ErrUnsupported indicates the allocator lacks an optional capability.
	ErrUnsupported = errors.New("pagepool: unsupported by allocator")

	// ErrCorrupt is returned by Verify when the free list is damaged, for
	// example by a double release.
	ErrCorrupt = errors.New("pagepool: free list corrupt")
)
