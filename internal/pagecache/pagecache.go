// Package pagecache implements the OctreeStore's page cache: an
// LRU cache of on-disk pages bounded by a configured memory budget in
// megabytes, with hit/miss/eviction counters.
package pagecache

/*
 Copyright 2019 - 2025 Crunchy Data Solutions, Inc.
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at
      http://www.apache.org/licenses/LICENSE-2.0
 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Key identifies a cached page: the file offset its page starts at.
// OctreeStore computes this from a node address; pagecache itself is
// address-agnostic.
type Key uint64

// Cache is a thread-unsafe-by-contract, MB-budgeted LRU page cache.
type Cache struct {
	cache   *lru.Cache[Key, []byte]
	budget  int64 // bytes
	enabled bool

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	currentSize atomic.Int64
	currentBytes atomic.Int64
}

// Stats reports cache occupancy and hit/miss/eviction counts.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Size        int
	MemoryBytes int64
	HitRate     float64
}

// maxEntries caps the underlying LRU's slot count; the real bound this
// cache enforces is the byte budget, evicted by Add below, but
// golang-lru/v2 still requires a positive item capacity up front.
const maxEntries = 1 << 20

// New returns a page cache bounded by budgetMB megabytes. budgetMB <= 0
// disables caching: Get always misses and Add is a no-op, since the
// page cache is an optional acceleration layer.
func New(budgetMB int) (*Cache, error) {
	if budgetMB <= 0 {
		return &Cache{enabled: false}, nil
	}

	c := &Cache{
		enabled: true,
		budget:  int64(budgetMB) * 1024 * 1024,
	}

	underlying, err := lru.NewWithEvict(maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.cache = underlying

	log.Debugf("pagecache: initialized with budget %d MB", budgetMB)
	return c, nil
}

// Get returns the cached page for key, if present.
func (c *Cache) Get(key Key) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	page, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
		return page, true
	}
	c.misses.Add(1)
	return nil, false
}

// Add stores page under key, evicting the least-recently-used pages
// until the cache is back within its byte budget.
func (c *Cache) Add(key Key, page []byte) {
	if !c.enabled || len(page) == 0 {
		return
	}

	cp := make([]byte, len(page))
	copy(cp, page)

	// Replacing an existing key does not fire onEvict, so drop the old
	// page's bytes from the running totals here.
	if old, ok := c.cache.Peek(key); ok {
		c.currentBytes.Add(-int64(len(old)))
		c.currentSize.Add(-1)
	}
	c.cache.Add(key, cp)
	c.currentBytes.Add(int64(len(cp)))
	c.currentSize.Add(1)

	for c.currentBytes.Load() > c.budget && c.cache.Len() > 0 {
		c.cache.RemoveOldest()
	}
}

// Remove evicts key from the cache, if present.
func (c *Cache) Remove(key Key) {
	if !c.enabled {
		return
	}
	c.cache.Remove(key)
}

func (c *Cache) onEvict(key Key, value []byte) {
	c.evictions.Add(1)
	c.currentSize.Add(-1)
	c.currentBytes.Add(-int64(len(value)))
}

// Purge discards every cached page.
func (c *Cache) Purge() {
	if !c.enabled {
		return
	}
	c.cache.Purge()
	c.currentSize.Store(0)
	c.currentBytes.Store(0)
}

// Enabled reports whether caching is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Stats returns current occupancy and hit/miss/eviction counts.
func (c *Cache) Stats() Stats {
	if !c.enabled {
		return Stats{}
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100.0
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Size:        c.cache.Len(),
		MemoryBytes: c.currentBytes.Load(),
		HitRate:     hitRate,
	}
}
