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

package main

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/cockroachdb/pagepool"
	"github.com/cockroachdb/pagepool/index"
	"github.com/cockroachdb/pagepool/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdInfo = &cobra.Command{
	Use:   "info",
	Short: "Print page size and pool size arithmetic",
	Long: `
The "info" command prints the operating system page size and the footprint of
a pool of --pages pages of 2^--bits bytes.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(cmd.OutOrStdout(), infoOptions, globalOptions)
	},
}

// InfoOptions bundles all options for the info command.
type InfoOptions struct {
	Pages    uint64
	PageBits uint
	MB       uint64
}

var infoOptions InfoOptions

func init() {
	cmdRoot.AddCommand(cmdInfo)

	f := cmdInfo.Flags()
	f.Uint64Var(&infoOptions.Pages, "pages", 1<<16, "number of pages")
	f.UintVar(&infoOptions.PageBits, "bits", 12, "log2 of the page size")
	f.Uint64Var(&infoOptions.MB, "mb", 0, "also report how many pages fit in this many MiB")
}

// InfoReport is the output of the info command.
type InfoReport struct {
	OSPageSize  int    `json:"os_page_size"`
	MinPageBits uint   `json:"min_page_bits"`
	MaxPageBits uint   `json:"max_page_bits"`
	MaxPages    uint64 `json:"max_pages"`
	RecordSize  int    `json:"record_size"`
	Pages       uint64 `json:"pages"`
	PageBits    uint   `json:"page_bits"`
	PageSize    uint64 `json:"page_size"`
	Bytes       uint64 `json:"bytes"`
	MiB         uint64 `json:"mib"`
	PowerOfTwo  bool   `json:"power_of_two"`
	MBPages     uint64 `json:"mb_pages,omitempty"`
}

func runInfo(w io.Writer, opts InfoOptions, gopts GlobalOptions) error {
	if opts.PageBits < pagepool.MinPageBits || opts.PageBits > pagepool.MaxPageBits {
		return errors.Errorf("--bits %d not in [%d, %d]", opts.PageBits, pagepool.MinPageBits, pagepool.MaxPageBits)
	}
	if opts.Pages > pagepool.MaxPages {
		return errors.Errorf("--pages %d exceeds %d", opts.Pages, uint64(pagepool.MaxPages))
	}
	r := InfoReport{
		OSPageSize:  pagepool.OSPageSize(),
		MinPageBits: pagepool.MinPageBits,
		MaxPageBits: pagepool.MaxPageBits,
		MaxPages:    pagepool.MaxPages,
		RecordSize:  int(unsafe.Sizeof(session.Record{})),
		Pages:       opts.Pages,
		PageBits:    opts.PageBits,
		PageSize:    pagepool.PagesToBytes(opts.PageBits, 1),
		Bytes:       pagepool.PagesToBytes(opts.PageBits, opts.Pages),
		MiB:         pagepool.PagesToMB(opts.PageBits, opts.Pages),
		PowerOfTwo:  index.IsPow2(opts.Pages),
	}
	if opts.MB > 0 && opts.PageBits <= 20 {
		r.MBPages = pagepool.MBToPages(opts.PageBits, opts.MB)
	}

	if gopts.JSON {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "os page size:   %d\n", r.OSPageSize)
	fmt.Fprintf(w, "page bits:      [%d, %d]\n", r.MinPageBits, r.MaxPageBits)
	fmt.Fprintf(w, "max pages:      %d\n", r.MaxPages)
	fmt.Fprintf(w, "flow record:    %d bytes\n", r.RecordSize)
	fmt.Fprintf(w, "pool:           %d x %d bytes = %d bytes (%d MiB)\n", r.Pages, r.PageSize, r.Bytes, r.MiB)
	if !r.PowerOfTwo {
		fmt.Fprintf(w, "                %d is not a power of two, New will refuse it\n", r.Pages)
	}
	if r.MBPages > 0 {
		fmt.Fprintf(w, "%d MiB:         %d pages\n", opts.MB, r.MBPages)
	}
	return nil
}
