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

// Command pagepool reports page pool sizing and benchmarks the session
// tracker.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/cockroachdb/pagepool"
	"github.com/cockroachdb/pagepool/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
)

// GlobalOptions hold options shared by all commands.
type GlobalOptions struct {
	Verbose bool
	JSON    bool
}

var globalOptions GlobalOptions

var log = logrus.New()

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "pagepool",
	Short: "Inspect and exercise fixed-size page pools",
	Long: `
pagepool reports the page and pool size arithmetic of this host and runs the
flow tracking workload over one or more page pools.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(cmd.ErrOrStderr())
		if globalOptions.Verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	f := cmdRoot.PersistentFlags()
	f.BoolVarP(&globalOptions.Verbose, "verbose", "v", false, "log pool and tracker lifecycle events")
	f.BoolVar(&globalOptions.JSON, "json", false, "print the report as JSON")
}

func parseMode(s string) (pagepool.Mode, error) {
	switch s {
	case "heap":
		return pagepool.ModeHeap, nil
	case "anon", "anonymous":
		return pagepool.ModeAnonymous, nil
	case "file":
		return pagepool.ModeFile, nil
	}
	return 0, errors.Errorf("unknown mode %q, want heap, anonymous or file", s)
}

func parseHash(s string) (session.Hash, error) {
	switch s {
	case "xxh64", "xxhash":
		return session.HashXXH, nil
	case "sip", "siphash":
		return session.HashSip, nil
	}
	return 0, errors.Errorf("unknown hash %q, want xxh64 or siphash", s)
}

// printJSON writes v to w as a single line of JSON.
func printJSON(w io.Writer, v any) error {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
