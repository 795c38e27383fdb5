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
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/netip"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/pagepool"
	"github.com/cockroachdb/pagepool/index"
	"github.com/cockroachdb/pagepool/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmdBench = &cobra.Command{
	Use:   "bench",
	Short: "Run the flow tracking workload",
	Long: `
The "bench" command runs one session tracker per worker, each over its own
page pool, and feeds it --ops packets drawn from --flows distinct flows. When
the flows outnumber the pages the least recently used flows are evicted.

If a pool cannot be allocated the page count is halved and the allocation
retried with exponential backoff.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context(), cmd.OutOrStdout(), benchOptions, globalOptions)
	},
}

// BenchOptions bundles all options for the bench command.
type BenchOptions struct {
	Pages     int
	PageBits  uint
	TableBits uint
	Workers   int
	Ops       int
	Flows     int
	Mode      string
	Path      string
	Hash      string
	Seed      uint64
}

var benchOptions BenchOptions

func init() {
	cmdRoot.AddCommand(cmdBench)

	f := cmdBench.Flags()
	f.IntVar(&benchOptions.Pages, "pages", 1<<14, "pages per worker, a power of two")
	f.UintVar(&benchOptions.PageBits, "bits", 0, "log2 of the page size (0 fits one flow record)")
	f.UintVar(&benchOptions.TableBits, "table-bits", 0, "log2 of the bucket count per worker (0 is one bucket per page)")
	f.IntVar(&benchOptions.Workers, "workers", runtime.GOMAXPROCS(0), "number of independent trackers")
	f.IntVar(&benchOptions.Ops, "ops", 1_000_000, "packets per worker")
	f.IntVar(&benchOptions.Flows, "flows", 1<<15, "distinct flows per worker")
	f.StringVar(&benchOptions.Mode, "mode", "heap", "pool backing: heap, anonymous or file")
	f.StringVar(&benchOptions.Path, "path", "pagepool.bin", "file prefix for --mode=file, one file per worker")
	f.StringVar(&benchOptions.Hash, "hash", "xxh64", "bucket hash: xxh64 or siphash")
	f.Uint64Var(&benchOptions.Seed, "seed", 1, "workload seed")
}

// ShardReport is the result of one worker.
type ShardReport struct {
	Shard       int     `json:"shard"`
	Pages       int     `json:"pages"`
	Ops         int     `json:"ops"`
	Forgotten   int     `json:"forgotten"`
	Flows       int     `json:"flows"`
	Evictions   uint64  `json:"evictions"`
	Buckets     int     `json:"buckets"`
	UsedBuckets int     `json:"used_buckets"`
	MaxChain    int     `json:"max_chain"`
	NsPerOp     float64 `json:"ns_per_op"`
}

// BenchReport is the output of the bench command.
type BenchReport struct {
	Mode      string        `json:"mode"`
	Hash      string        `json:"hash"`
	Workers   int           `json:"workers"`
	Ops       int           `json:"ops"`
	Evictions uint64        `json:"evictions"`
	Seconds   float64       `json:"seconds"`
	OpsPerSec float64       `json:"ops_per_sec"`
	Shards    []ShardReport `json:"shards"`
}

func runBench(ctx context.Context, w io.Writer, opts BenchOptions, gopts GlobalOptions) error {
	mode, err := parseMode(opts.Mode)
	if err != nil {
		return err
	}
	hash, err := parseHash(opts.Hash)
	if err != nil {
		return err
	}
	switch {
	case opts.Pages <= 0 || !index.IsPow2(uint64(opts.Pages)):
		return errors.Errorf("--pages %d is not a power of two", opts.Pages)
	case opts.Workers <= 0:
		return errors.Errorf("--workers %d must be positive", opts.Workers)
	case opts.Flows <= 0 || opts.Flows > 1<<24:
		return errors.Errorf("--flows %d not in [1, %d]", opts.Flows, 1<<24)
	case opts.Ops < 0:
		return errors.Errorf("--ops %d is negative", opts.Ops)
	}

	shards := make([]ShardReport, opts.Workers)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := range shards {
		cfg := session.Config{
			Pages:     opts.Pages,
			PageBits:  opts.PageBits,
			TableBits: opts.TableBits,
			Hash:      hash,
			Mode:      mode,
			Logger:    log.WithField("shard", i),
		}
		if mode == pagepool.ModeFile {
			cfg.Path = fmt.Sprintf("%s.%d", opts.Path, i)
		}
		g.Go(func() error {
			r, err := runShard(ctx, i, cfg, opts)
			if err != nil {
				return errors.Wrapf(err, "shard %d", i)
			}
			shards[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	report := BenchReport{
		Mode:    mode.String(),
		Hash:    hash.String(),
		Workers: opts.Workers,
		Seconds: elapsed.Seconds(),
		Shards:  shards,
	}
	for _, s := range shards {
		report.Ops += s.Ops
		report.Evictions += s.Evictions
	}
	if elapsed > 0 {
		report.OpsPerSec = float64(report.Ops) / elapsed.Seconds()
	}

	if gopts.JSON {
		return printJSON(w, report)
	}
	fmt.Fprintf(w, "%d workers, %s pool, %s hash: %d ops in %.3fs (%.0f ops/s), %d evictions\n",
		report.Workers, report.Mode, report.Hash, report.Ops, report.Seconds, report.OpsPerSec, report.Evictions)
	for _, s := range shards {
		fmt.Fprintf(w, "  shard %d: pages=%d flows=%d evictions=%d forgotten=%d buckets=%d/%d max_chain=%d %.1f ns/op\n",
			s.Shard, s.Pages, s.Flows, s.Evictions, s.Forgotten, s.UsedBuckets, s.Buckets, s.MaxChain, s.NsPerOp)
	}
	return nil
}

// openTracker creates a tracker for cfg. On allocation failure it halves the
// page count and retries with exponential backoff.
func openTracker(ctx context.Context, cfg session.Config) (*session.Tracker, error) {
	var tr *session.Tracker
	op := func() error {
		var err error
		tr, err = session.New(cfg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pagepool.ErrAllocation) || cfg.Pages <= 1 {
			return backoff.Permanent(err)
		}
		cfg.Pages /= 2
		cfg.Logger.WithError(err).WithField("pages", cfg.Pages).Warn("pagepool: allocation failed, retrying")
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 8), ctx)); err != nil {
		return nil, err
	}
	return tr, nil
}

// flowKey returns the j'th flow of a shard.
func flowKey(shard, j int) session.Key {
	src := netip.AddrPortFrom(
		netip.AddrFrom4([4]byte{10, byte(shard), byte(j >> 8), byte(j)}),
		uint16(1024+(j>>16)))
	dst := netip.AddrPortFrom(netip.AddrFrom4([4]byte{198, 51, 100, 1}), 443)
	proto := session.ProtoTCP
	if j%4 == 0 {
		proto = session.ProtoUDP
	}
	return session.MakeKey(src, dst, proto)
}

func runShard(ctx context.Context, shard int, cfg session.Config, opts BenchOptions) (ShardReport, error) {
	tr, err := openTracker(ctx, cfg)
	if err != nil {
		return ShardReport{}, err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			cfg.Logger.WithError(err).Warn("session: close failed")
		}
	}()

	keys := make([]session.Key, opts.Flows)
	for j := range keys {
		keys[j] = flowKey(shard, j)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(shard)))
	clock := time.Unix(0, 0)

	r := ShardReport{Shard: shard, Pages: tr.Cap()}
	start := time.Now()
	for op := 0; op < opts.Ops; op++ {
		if op&4095 == 0 && ctx.Err() != nil {
			return r, ctx.Err()
		}
		k := keys[rng.IntN(len(keys))]
		// One packet in 64 closes its flow.
		if rng.IntN(64) == 0 && tr.Forget(k) {
			r.Forgotten++
			continue
		}
		tr.Track(k, 64+rng.IntN(1400), clock.Add(time.Duration(op)))
		r.Ops++
	}
	elapsed := time.Since(start)

	st := tr.Stats()
	r.Flows = tr.Len()
	r.Evictions = tr.Evictions()
	r.Buckets = st.Buckets
	r.UsedBuckets = st.Used
	r.MaxChain = st.MaxChain
	if r.Ops > 0 {
		r.NsPerOp = float64(elapsed.Nanoseconds()) / float64(r.Ops)
	}
	cfg.Logger.WithFields(logrus.Fields{
		"ops":       r.Ops,
		"flows":     r.Flows,
		"evictions": r.Evictions,
	}).Debug("session: shard done")
	return r, nil
}
