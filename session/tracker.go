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

// Package session tracks network flows in a fixed number of pool pages.
//
// Every flow Record lives in one page of a pagepool.Pool and is linked into
// two intrusive containers: a hashtable.Table bucket for lookup by Key and a
// global list.List ordered by last use. When the pool runs out of pages the
// least recently used flow is evicted to make room, so a Tracker never
// allocates after New and never fails to track.
//
// A Tracker is NOT goroutine-safe. Shard by key to use several.
package session

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/pagepool"
	"github.com/cockroachdb/pagepool/hashfn"
	"github.com/cockroachdb/pagepool/hashtable"
	"github.com/cockroachdb/pagepool/index"
	"github.com/cockroachdb/pagepool/list"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Hash selects how keys are distributed over buckets.
type Hash uint8

const (
	// HashXXH hashes the encoded key with XXH64.
	HashXXH Hash = iota
	// HashSip hashes the encoded key with SipHash-2-4 under a random key.
	// Use it when the flows are chosen by someone else.
	HashSip
)

func (h Hash) String() string {
	switch h {
	case HashXXH:
		return "xxh64"
	case HashSip:
		return "siphash"
	}
	return "unknown"
}

// Config configures a Tracker.
type Config struct {
	// Pages is the maximum number of tracked flows. It must be a power of
	// two.
	Pages int
	// PageBits is log2 of the page size. Zero selects the smallest page that
	// holds a Record.
	PageBits uint
	// TableBits is log2 of the bucket count. Zero selects one bucket per
	// page.
	TableBits uint
	Hash      Hash
	// Mode selects the pool backing. ModeFile maps Path.
	Mode pagepool.Mode
	Path string
	// Logger receives lifecycle and eviction events at Debug. Nil discards.
	Logger logrus.FieldLogger
}

// Record is the per-flow state stored at the start of a page. It holds no Go
// pointers.
type Record struct {
	link list.QNode
	lru  list.Node

	Key     Key
	Packets uint64
	Bytes   uint64
	first   int64
	last    int64
}

// First returns the time the flow was first seen.
func (r *Record) First() time.Time { return time.Unix(0, r.first) }

// Last returns the time the flow was last seen.
func (r *Record) Last() time.Time { return time.Unix(0, r.last) }

// Tracker maps flow keys to Records.
type Tracker struct {
	pool      *pagepool.Pool
	table     *hashtable.Table[Key]
	lru       *list.List
	logger    logrus.FieldLogger
	evictions uint64
}

// New returns an empty Tracker. Invalid sizes and storage failures return an
// error wrapping pagepool.ErrAllocation.
func New(cfg Config) (*Tracker, error) {
	if cfg.Logger == nil {
		cfg.Logger = pagepool.DiscardLogger()
	}
	recordSize := uint64(unsafe.Sizeof(Record{}))
	if cfg.PageBits == 0 {
		cfg.PageBits = max(pagepool.MinPageBits, index.Bits(index.NextPow2(recordSize)))
	}
	if cfg.PageBits < pagepool.MinPageBits || cfg.PageBits > pagepool.MaxPageBits ||
		uint64(1)<<cfg.PageBits < recordSize {
		return nil, errors.Wrapf(pagepool.ErrAllocation,
			"page bits %d cannot hold a %d byte record", cfg.PageBits, recordSize)
	}
	if cfg.TableBits == 0 && cfg.Pages > 0 {
		cfg.TableBits = index.Bits(index.NextPow2(uint64(cfg.Pages)))
	}
	if cfg.TableBits > hashtable.MaxBits {
		return nil, errors.Wrapf(pagepool.ErrAllocation,
			"table bits %d exceed %d", cfg.TableBits, hashtable.MaxBits)
	}

	var pool *pagepool.Pool
	var err error
	if cfg.Mode == pagepool.ModeFile {
		pool, err = pagepool.New(cfg.Pages, cfg.PageBits,
			pagepool.WithFile(cfg.Path), pagepool.WithLogger(cfg.Logger))
	} else {
		pool, err = pagepool.New(cfg.Pages, cfg.PageBits,
			pagepool.WithMode(cfg.Mode), pagepool.WithLogger(cfg.Logger))
	}
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		pool:   pool,
		lru:    list.NewList(pagepool.NodeArena[list.Node](pool, unsafe.Offsetof(Record{}.lru))),
		logger: cfg.Logger,
	}
	t.table = hashtable.New[Key](
		cfg.TableBits,
		pagepool.NodeArena[list.QNode](pool, unsafe.Offsetof(Record{}.link)),
		hasher(cfg.Hash),
	)
	t.logger.WithFields(logrus.Fields{
		"pages":      cfg.Pages,
		"page_bits":  cfg.PageBits,
		"table_bits": cfg.TableBits,
		"hash":       cfg.Hash,
	}).Debug("session: tracker created")
	return t, nil
}

func hasher(h Hash) func(k Key) uint64 {
	if h == HashSip {
		key := hashfn.NewKey()
		return func(k Key) uint64 {
			b := k.bytes()
			return key.Sum(b[:])
		}
	}
	return func(k Key) uint64 {
		b := k.bytes()
		return hashfn.Buffer(b[:])
	}
}

func (t *Tracker) record(ref uint32) *Record {
	return pagepool.Record[Record](t.pool, ref)
}

func (t *Tracker) find(key Key) (uint32, bool) {
	return t.table.Find(key, func(ref uint32) bool {
		return t.record(ref).Key == key
	})
}

// Track accounts a packet of n bytes seen at now to the flow for key,
// creating the flow if it is new, and returns its record. The record is
// valid until the flow is forgotten or evicted.
func (t *Tracker) Track(key Key, n int, now time.Time) *Record {
	ts := now.UnixNano()
	if ref, ok := t.find(key); ok {
		r := t.record(ref)
		r.Packets++
		r.Bytes += uint64(n)
		r.last = ts
		t.table.Touch(key, ref)
		t.lru.MoveHead(ref)
		return r
	}

	ref, ok := t.pool.Acquire()
	if !ok {
		ref = t.evict()
	}
	r := t.record(ref)
	*r = Record{
		Key:     key,
		Packets: 1,
		Bytes:   uint64(n),
		first:   ts,
		last:    ts,
	}
	r.link.Init()
	r.lru.Init()
	t.table.Insert(key, ref)
	t.lru.Add(ref)
	return r
}

// evict unlinks the least recently used flow and returns its page without
// releasing it.
func (t *Tracker) evict() uint32 {
	ref := t.lru.Last()
	r := t.record(ref)
	t.table.Remove(ref)
	t.lru.Del(ref)
	t.evictions++
	t.logger.Debugf("session: evicted %s after %d packets", r.Key, r.Packets)
	return ref
}

// Get returns the record for key without changing its recency.
func (t *Tracker) Get(key Key) (*Record, bool) {
	ref, ok := t.find(key)
	if !ok {
		return nil, false
	}
	return t.record(ref), true
}

// Forget drops the flow for key and reports whether it was tracked.
func (t *Tracker) Forget(key Key) bool {
	ref, ok := t.find(key)
	if !ok {
		return false
	}
	t.table.Remove(ref)
	t.lru.Del(ref)
	t.pool.Release(ref)
	return true
}

// Expire forgets every flow last seen before cutoff, oldest first, and
// returns how many were dropped.
func (t *Tracker) Expire(cutoff time.Time) int {
	ts := cutoff.UnixNano()
	var n int
	t.lru.WalkReverse(func(ref uint32) bool {
		if t.record(ref).last >= ts {
			return false
		}
		t.table.Remove(ref)
		t.lru.Del(ref)
		t.pool.Release(ref)
		n++
		return true
	})
	return n
}

// Len returns the number of tracked flows.
func (t *Tracker) Len() int {
	return t.pool.InUse()
}

// Cap returns the maximum number of tracked flows.
func (t *Tracker) Cap() int {
	return t.pool.Total()
}

// Evictions returns the number of flows evicted to make room.
func (t *Tracker) Evictions() uint64 {
	return t.evictions
}

// Walk calls yield for every flow, most recently used first, until yield
// returns false. yield must not track or forget flows.
func (t *Tracker) Walk(yield func(r *Record) bool) {
	t.lru.Walk(func(ref uint32) bool {
		return yield(t.record(ref))
	})
}

// Stats returns the bucket occupancy of the lookup table.
func (t *Tracker) Stats() hashtable.Stats {
	return t.table.Stats()
}

// Close releases the pool. The Tracker must not be used afterwards.
func (t *Tracker) Close() error {
	t.logger.WithFields(logrus.Fields{
		"flows":     t.Len(),
		"evictions": t.evictions,
	}).Debug("session: tracker closed")
	t.table.Reset()
	t.lru.Init()
	t.pool.Reset()
	return t.pool.Close()
}
