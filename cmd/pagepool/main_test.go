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
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/pagepool"
	"github.com/cockroachdb/pagepool/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func TestParse(t *testing.T) {
	for s, want := range map[string]pagepool.Mode{
		"heap":      pagepool.ModeHeap,
		"anon":      pagepool.ModeAnonymous,
		"anonymous": pagepool.ModeAnonymous,
		"file":      pagepool.ModeFile,
	} {
		m, err := parseMode(s)
		require.NoError(t, err)
		require.Equal(t, want, m)
	}
	_, err := parseMode("hugetlb")
	require.Error(t, err)

	h, err := parseHash("siphash")
	require.NoError(t, err)
	require.Equal(t, session.HashSip, h)
	_, err = parseHash("md5")
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runInfo(&buf, InfoOptions{Pages: 256, PageBits: 12, MB: 4}, GlobalOptions{}))
	require.Contains(t, buf.String(), "256 x 4096 bytes = 1048576 bytes (1 MiB)")
	require.Contains(t, buf.String(), "4 MiB:         1024 pages")

	buf.Reset()
	require.NoError(t, runInfo(&buf, InfoOptions{Pages: 100, PageBits: 12}, GlobalOptions{JSON: true}))
	var r InfoReport
	require.NoError(t, sonnet.Unmarshal(buf.Bytes(), &r))
	require.EqualValues(t, 409600, r.Bytes)
	require.False(t, r.PowerOfTwo)
	require.Equal(t, pagepool.OSPageSize(), r.OSPageSize)

	require.Error(t, runInfo(&buf, InfoOptions{Pages: 1, PageBits: 40}, GlobalOptions{}))
}

func TestBench(t *testing.T) {
	opts := BenchOptions{
		Pages:   64,
		Workers: 3,
		Ops:     5000,
		Flows:   256,
		Mode:    "heap",
		Hash:    "xxh64",
		Seed:    7,
	}
	var buf bytes.Buffer
	require.NoError(t, runBench(context.Background(), &buf, opts, GlobalOptions{JSON: true}))

	var r BenchReport
	require.NoError(t, sonnet.Unmarshal(buf.Bytes(), &r))
	require.Equal(t, 3, r.Workers)
	require.Len(t, r.Shards, 3)
	for i, s := range r.Shards {
		require.Equal(t, i, s.Shard)
		require.Equal(t, 64, s.Pages)
		require.LessOrEqual(t, s.Flows, 64)
		require.Greater(t, s.Flows, 32)
		require.Equal(t, 5000, s.Ops+s.Forgotten)
		require.Positive(t, s.Evictions)
	}

	buf.Reset()
	opts.Hash = "siphash"
	opts.Workers = 1
	require.NoError(t, runBench(context.Background(), &buf, opts, GlobalOptions{}))
	require.Contains(t, buf.String(), "1 workers, heap pool, siphash hash")

	for _, bad := range []BenchOptions{
		{Pages: 3, Workers: 1, Flows: 1, Mode: "heap", Hash: "xxh64"},
		{Pages: 4, Workers: 0, Flows: 1, Mode: "heap", Hash: "xxh64"},
		{Pages: 4, Workers: 1, Flows: 0, Mode: "heap", Hash: "xxh64"},
		{Pages: 4, Workers: 1, Flows: 1, Mode: "tmpfs", Hash: "xxh64"},
	} {
		require.Error(t, runBench(context.Background(), &buf, bad, GlobalOptions{}), "%+v", bad)
	}
}

func TestBenchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := BenchOptions{Pages: 16, Workers: 2, Ops: 10000, Flows: 64, Mode: "heap", Hash: "xxh64"}
	err := runBench(ctx, &bytes.Buffer{}, opts, GlobalOptions{})
	require.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestOpenTrackerHalves(t *testing.T) {
	cfg := session.Config{Pages: 3, Logger: pagepool.DiscardLogger()}
	tr, err := openTracker(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, tr.Cap())
	require.NoError(t, tr.Close())

	cfg = session.Config{Pages: 1, PageBits: 3, Logger: pagepool.DiscardLogger()}
	_, err = openTracker(context.Background(), cfg)
	require.True(t, errors.Is(err, pagepool.ErrAllocation), "%v", err)
}

func TestFlowKeysDistinct(t *testing.T) {
	seen := make(map[session.Key]int)
	for j := 0; j < 1<<17; j += 7 {
		k := flowKey(1, j)
		prev, dup := seen[k]
		require.False(t, dup, "flows %d and %d collide", prev, j)
		seen[k] = j
	}
}
