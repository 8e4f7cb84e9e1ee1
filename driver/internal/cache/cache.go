// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package cache holds catalog query results for a bounded time.
//
// A [Cache] maps a string key (operation name plus the stringified
// request parameters) onto an immutable [Entry]. Entries expire lazily:
// a read at or after an entry's deadline is a miss and drops the entry.
// A [Registry] hands out one Cache per (catalog identity, TTL) pair so
// connections to the same project share warm results.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Two-Bear-Capital/tbc-bq-jdbc-sub000/go/tbcbq"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/bluele/gcache"
)

// Column names one field of the rows held in an [Entry].
type Column struct {
	Name string
	Type arrow.DataType
}

// Entry is one cached result set. It must not be modified once it has
// been handed to [Cache.Put].
type Entry struct {
	Key       string
	Columns   []Column
	Rows      [][]any
	ExpiresAt time.Time
}

// Cache is a TTL cache safe for concurrent use.
type Cache struct {
	identity string
	ttl      time.Duration
	clock    gcache.Clock
	store    gcache.Cache

	// serializes Put with the removal of an expired entry
	mu sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty cache whose entries live for ttl. A nil clock
// uses the wall clock.
func New(identity string, ttl time.Duration, clock gcache.Clock) *Cache {
	if clock == nil {
		clock = gcache.NewRealClock()
	}
	return &Cache{
		identity: identity,
		ttl:      ttl,
		clock:    clock,
		store:    gcache.New(0).Simple().Clock(clock).Build(),
	}
}

func (c *Cache) Identity() string   { return c.identity }
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the live entry for key.
func (c *Cache) Get(key string) (*Entry, bool) {
	v, err := c.store.Get(key)
	if err != nil {
		c.recordMiss()
		return nil, false
	}

	entry := v.(*Entry)
	if !c.clock.Now().Before(entry.ExpiresAt) {
		c.removeExpired(key, entry)
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry, true
}

// Put stores a copy of entry under entry.Key with a fresh deadline and
// returns the stored entry. Any previous entry for the key is replaced.
func (c *Cache) Put(entry Entry) *Entry {
	stored := &Entry{
		Key:       entry.Key,
		Columns:   entry.Columns,
		Rows:      entry.Rows,
		ExpiresAt: c.clock.Now().Add(c.ttl),
	}
	c.mu.Lock()
	// gcache only fails Set when a serialize func is configured.
	_ = c.store.SetWithExpire(stored.Key, stored, c.ttl)
	c.mu.Unlock()
	return stored
}

// removeExpired drops key only while it still holds the expired entry,
// so a concurrent Put of a fresh entry survives.
func (c *Cache) removeExpired(key string, expired *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, err := c.store.Get(key); err == nil && v.(*Entry) == expired {
		c.store.Remove(key)
	}
}

// Invalidate removes every entry whose key starts with prefix and
// returns how many were removed. An empty prefix removes everything.
func (c *Cache) Invalidate(prefix string) int {
	removed := 0
	for _, k := range c.store.Keys(false) {
		key, ok := k.(string)
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if c.store.Remove(key) {
			removed++
		}
	}
	return removed
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *Cache) Clear() {
	c.store.Purge()
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	return c.store.Len(true)
}

func (c *Cache) Stats() tbcbq.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := tbcbq.CacheStats{Hits: hits, Misses: misses, Entries: c.Len()}
	if total := hits + misses; total > 0 {
		stats.HitRatePercent = float64(hits) * 100 / float64(total)
	}
	return stats
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	recordLookup(c.identity, true)
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	recordLookup(c.identity, false)
}
