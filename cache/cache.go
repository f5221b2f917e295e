/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package cache is a process-wide, byte-budgeted LRU for whatever a
// read path is expensive enough to want to keep warm: a reconstructed
// zone's rows, a compiled WHERE-clause selector, a replay snapshot's
// decoded header. Generalized from storage/cache.go's CacheManager
// (a single memory budget, eviction by least-recently-used) plus
// storage/cachemap.go's per-entry wrapper, with two additions neither
// of those had: singleflight-coalesced loads so N concurrent misses on
// the same key do the work once, and per-segment invalidation so a
// compaction can drop exactly the entries it drained.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	key       string
	value     any
	size      int64
	segmentID string
}

// Stats is a point-in-time snapshot of a Cache's counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Reloads   uint64 // loads coalesced onto an in-flight singleflight call
	Evictions uint64
}

// Cache is a byte-budgeted LRU, safe for concurrent use. The zero value
// is not usable; construct with New.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	ll       *list.List
	items    map[string]*list.Element

	group singleflight.Group
	log   *zap.Logger

	hits, misses, reloads, evictions atomic.Uint64
}

// New creates a Cache with the given byte budget. A nil logger is
// replaced with a no-op one.
func New(capacityBytes int64, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		capacity: capacityBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		log:      logger,
	}
}

// Get returns the cached value for key, if present, marking it most
// recently used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*entry).value, true
}

// Put inserts or replaces key's cached value, evicting least-recently-used
// entries until the cache is back under budget.
func (c *Cache) Put(key string, value any, size int64, segmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value, size, segmentID)
}

func (c *Cache) putLocked(key string, value any, size int64, segmentID string) {
	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		c.used -= old.size
		el.Value = &entry{key: key, value: value, size: size, segmentID: segmentID}
		c.used += size
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{key: key, value: value, size: size, segmentID: segmentID})
		c.items[key] = el
		c.used += size
	}
	c.evictLocked()
}

// GetOrLoad returns key's cached value, loading it via load on a miss.
// Concurrent misses on the same key share one load call: every caller
// past the first blocks on the in-flight call and is counted as a
// Reload rather than a fresh Misses+load.
func (c *Cache) GetOrLoad(ctx context.Context, key string, segmentID string, load func(ctx context.Context) (value any, size int64, err error)) (any, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		c.hits.Add(1)
		v := el.Value.(*entry).value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	leader := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		leader = true
		c.misses.Add(1)
		value, size, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, value, size, segmentID)
		return value, nil
	})
	if !leader {
		c.reloads.Add(1)
	}
	return v, err
}

// Invalidate drops key from the cache, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return
	}
	c.removeLocked(el)
}

// InvalidateSegment drops every cached entry tagged with segmentID. Its
// signature matches compaction.Handover's onInvalidate hook, so a
// shard's Config.OnSegmentInvalid can be this method directly.
func (c *Cache) InvalidateSegment(segmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dead []*list.Element
	for el := c.ll.Front(); el != nil; el = el.Next() {
		if el.Value.(*entry).segmentID == segmentID {
			dead = append(dead, el)
		}
	}
	for _, el := range dead {
		c.removeLocked(el)
	}
	if len(dead) > 0 {
		c.log.Info("cache: invalidated segment", zap.String("segment_id", segmentID), zap.Int("entries", len(dead)))
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.used -= e.size
}

// evictLocked drops least-recently-used entries until used <= capacity.
// Must be called with c.mu held.
func (c *Cache) evictLocked() {
	for c.used > c.capacity {
		el := c.ll.Back()
		if el == nil {
			return
		}
		c.removeLocked(el)
		c.evictions.Add(1)
	}
}

// Resize changes the cache's byte budget, evicting from the
// least-recently-used end if the new budget is smaller. Recency is
// preserved either way: the LRU list ordering never changes, only how
// far eviction walks into it.
func (c *Cache) Resize(capacityBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacityBytes
	c.evictLocked()
}

// Len reports how many entries are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of the cache's hit/miss/reload/eviction
// counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Reloads:   c.reloads.Load(),
		Evictions: c.evictions.Load(),
	}
}
