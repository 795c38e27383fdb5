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

package session

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/aclements/go-perfevent/perfbench"
	"github.com/cockroachdb/pagepool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func flow(i int) Key {
	src := netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)}), uint16(1024+i))
	dst := netip.MustParseAddrPort("192.0.2.1:443")
	return MakeKey(src, dst, ProtoTCP)
}

func newTracker(t *testing.T, cfg Config) *Tracker {
	tr, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tr.Close()) })
	return tr
}

func TestKey(t *testing.T) {
	k := flow(1)
	require.Equal(t, "tcp 10.0.0.1:1025->192.0.2.1:443", k.String())
	require.Equal(t, k, k.Reverse().Reverse())
	require.Equal(t, k.SrcAddr(), k.Reverse().DstAddr())
	require.NotEqual(t, k.bytes(), k.Reverse().bytes())

	v6 := MakeKey(netip.MustParseAddrPort("[2001:db8::1]:53"), netip.MustParseAddrPort("[2001:db8::2]:5353"), ProtoUDP)
	require.Equal(t, "udp [2001:db8::1]:53->[2001:db8::2]:5353", v6.String())
}

func TestProtoName(t *testing.T) {
	require.Equal(t, "tcp", ProtoName(ProtoTCP))
	require.Equal(t, "udp", ProtoName(17))
	require.Equal(t, "sctp", ProtoName(132))
	require.Equal(t, "unknown", ProtoName(0))
	require.Equal(t, "unknown", ProtoName(2))
	require.Equal(t, "unknown", ProtoName(255))
}

func TestTrack(t *testing.T) {
	for _, h := range []Hash{HashXXH, HashSip} {
		t.Run(h.String(), func(t *testing.T) {
			tr := newTracker(t, Config{Pages: 16, Hash: h})
			now := time.Unix(1000, 0)

			r := tr.Track(flow(1), 100, now)
			require.EqualValues(t, 1, r.Packets)
			require.EqualValues(t, 100, r.Bytes)
			require.Equal(t, now, r.First())

			r = tr.Track(flow(1), 50, now.Add(time.Second))
			require.EqualValues(t, 2, r.Packets)
			require.EqualValues(t, 150, r.Bytes)
			require.Equal(t, now, r.First())
			require.Equal(t, now.Add(time.Second), r.Last())
			require.Equal(t, 1, tr.Len())

			tr.Track(flow(2), 10, now)
			require.Equal(t, 2, tr.Len())

			got, ok := tr.Get(flow(2))
			require.True(t, ok)
			require.Equal(t, flow(2), got.Key)
			_, ok = tr.Get(flow(3))
			require.False(t, ok)
			_, ok = tr.Get(flow(1).Reverse())
			require.False(t, ok)

			require.True(t, tr.Forget(flow(1)))
			require.False(t, tr.Forget(flow(1)))
			require.Equal(t, 1, tr.Len())
			_, ok = tr.Get(flow(1))
			require.False(t, ok)
		})
	}
}

func TestEvictLRU(t *testing.T) {
	tr := newTracker(t, Config{Pages: 4, TableBits: 1})
	now := time.Unix(0, 0)
	for i := 0; i < 4; i++ {
		tr.Track(flow(i), 1, now)
	}
	require.Equal(t, 4, tr.Len())
	require.Equal(t, 4, tr.Cap())

	// Using flow 0 makes flow 1 the oldest.
	tr.Track(flow(0), 1, now)
	tr.Track(flow(4), 1, now)
	require.EqualValues(t, 1, tr.Evictions())
	require.Equal(t, 4, tr.Len())
	_, ok := tr.Get(flow(1))
	require.False(t, ok)
	for _, i := range []int{0, 2, 3, 4} {
		r, ok := tr.Get(flow(i))
		require.True(t, ok, "flow %d", i)
		require.Equal(t, flow(i), r.Key)
	}

	var order []Key
	tr.Walk(func(r *Record) bool {
		order = append(order, r.Key)
		return true
	})
	require.Equal(t, []Key{flow(4), flow(0), flow(3), flow(2)}, order)
}

func TestManyFlows(t *testing.T) {
	tr := newTracker(t, Config{Pages: 256})
	now := time.Unix(0, 0)
	for i := 0; i < 1000; i++ {
		tr.Track(flow(i), i, now.Add(time.Duration(i)))
	}
	require.Equal(t, 256, tr.Len())
	require.EqualValues(t, 1000-256, tr.Evictions())
	for i := 1000 - 256; i < 1000; i++ {
		r, ok := tr.Get(flow(i))
		require.True(t, ok, "flow %d", i)
		require.EqualValues(t, i, r.Bytes)
	}
	s := tr.Stats()
	require.Equal(t, 256, s.Nodes)
	require.Equal(t, 256, s.Buckets)
}

func TestExpire(t *testing.T) {
	tr := newTracker(t, Config{Pages: 8})
	base := time.Unix(100, 0)
	for i := 0; i < 6; i++ {
		tr.Track(flow(i), 1, base.Add(time.Duration(i)*time.Second))
	}
	require.Equal(t, 3, tr.Expire(base.Add(3*time.Second)))
	require.Equal(t, 3, tr.Len())
	for i := 0; i < 6; i++ {
		_, ok := tr.Get(flow(i))
		require.Equal(t, i >= 3, ok, "flow %d", i)
	}
	require.Equal(t, 0, tr.Expire(base))

	// Expired pages are reused without eviction.
	for i := 10; i < 15; i++ {
		tr.Track(flow(i), 1, base)
	}
	require.EqualValues(t, 0, tr.Evictions())
}

func TestNewValidation(t *testing.T) {
	for _, cfg := range []Config{
		{Pages: 0},
		{Pages: 3},
		{Pages: 8, PageBits: 4},
		{Pages: 8, TableBits: 32},
	} {
		_, err := New(cfg)
		require.Error(t, err, "%+v", cfg)
		require.True(t, errors.Is(err, pagepool.ErrAllocation), "%+v", cfg)
	}
}

func TestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tr, err := New(Config{Pages: 2, Logger: logger})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		tr.Track(flow(i), 1, time.Unix(0, 0))
	}
	require.NoError(t, tr.Close())

	var msgs []string
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	require.Contains(t, msgs, "session: tracker created")
	require.Contains(t, msgs, fmt.Sprintf("session: evicted %s after 1 packets", flow(0)))
	require.Contains(t, msgs, "session: tracker closed")
	// The tracker owns its pages, so closing is not an outstanding-page leak.
	for _, e := range hook.AllEntries() {
		require.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}
}

func TestMappedTracker(t *testing.T) {
	tr := newTracker(t, Config{Pages: 64, Mode: pagepool.ModeAnonymous})
	for i := 0; i < 100; i++ {
		tr.Track(flow(i), 1, time.Unix(0, 0))
	}
	require.Equal(t, 64, tr.Len())
}

func BenchmarkTrack(b *testing.B) {
	for _, h := range []Hash{HashXXH, HashSip} {
		b.Run("hash="+h.String(), func(b *testing.B) {
			tr, err := New(Config{Pages: 1 << 12, Hash: h})
			if err != nil {
				b.Fatal(err)
			}
			defer tr.Close()
			keys := make([]Key, 1<<13)
			for i := range keys {
				keys[i] = flow(i)
			}
			now := time.Unix(0, 0)
			b.ResetTimer()
			perfbench.Open(b)
			for i := 0; i < b.N; i++ {
				tr.Track(keys[i&(len(keys)-1)], 64, now)
			}
		})
	}
}
