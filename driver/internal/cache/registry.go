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

package cache

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

type registryKey struct {
	identity string
	ttl      time.Duration
}

// Registry owns the caches shared by every connection opened through
// one driver. Caches are created on first use and live until the
// registry is cleared; closing a connection never removes one.
type Registry struct {
	clock gcache.Clock

	mu     sync.Mutex
	caches map[registryKey]*Cache
}

// NewRegistry returns an empty registry. A nil clock uses the wall
// clock for every cache it creates.
func NewRegistry(clock gcache.Clock) *Registry {
	r := &Registry{clock: clock, caches: make(map[registryKey]*Cache)}
	registerEntriesGauge(r)
	return r
}

// Cache returns the cache for the given catalog identity and TTL,
// creating it if needed.
func (r *Registry) Cache(identity string, ttl time.Duration) *Cache {
	key := registryKey{identity: identity, ttl: ttl}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[key]; ok {
		return c
	}
	c := New(identity, ttl, r.clock)
	r.caches[key] = c
	return c
}

// ClearAll empties every cache in the registry. The caches themselves
// stay registered so connections holding them keep working.
func (r *Registry) ClearAll() {
	for _, c := range r.snapshot() {
		c.Clear()
	}
}

// Len returns the number of distinct caches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caches)
}

func (r *Registry) snapshot() []*Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Cache, 0, len(r.caches))
	for _, c := range r.caches {
		out = append(out, c)
	}
	return out
}
