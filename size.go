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

// PagesToBytes returns the size of pages pages of 1<<shift bytes.
func PagesToBytes(shift uint, pages uint64) uint64 {
	return pages << shift
}

// PagesToMB returns the size of pages pages of 1<<shift bytes in MiB,
// rounded down.
func PagesToMB(shift uint, pages uint64) uint64 {
	return (pages << shift) >> 20
}

// MBToPages returns how many 1<<shift byte pages fit in mb MiB. shift must
// not exceed 20.
func MBToPages(shift uint, mb uint64) uint64 {
	return mb << (20 - shift)
}
