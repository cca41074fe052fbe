// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// contextKey identifies one cached schema context.
type contextKey struct {
	tenant string
	// query is the normalized query text.
	query string
}

// contextCache is a fixed-size LRU over assembled schema contexts, with
// wholesale per-tenant invalidation for drift handling.
//
// Description:
//
//	Context assembly costs several graph round-trips, and the same query
//	phrasing recurs; an LRU keyed by (tenant, normalized query) absorbs
//	that. Invalidation is never partial: drift for a tenant drops every
//	entry for that tenant, so readers observe either the old snapshot or
//	the new one, never a mix.
//
// Thread Safety: All methods are safe for concurrent use.
type contextCache struct {
	mu       sync.Mutex
	capacity int
	items    map[contextKey]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	hits   atomic.Int64
	misses atomic.Int64
}

type contextEntry struct {
	key   contextKey
	value *Assembled
}

// newContextCache creates the cache. Capacity below 1 gets a default.
func newContextCache(capacity int) *contextCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &contextCache{
		capacity: capacity,
		items:    make(map[contextKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// get returns the cached context for the key, marking it most recent.
func (c *contextCache) get(key contextKey) (*Assembled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*contextEntry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// set adds or refreshes an entry, evicting the oldest at capacity.
func (c *contextCache) set(key contextKey, value *Assembled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*contextEntry).value = value
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&contextEntry{key: key, value: value})
}

// invalidateTenant drops every entry belonging to the tenant.
func (c *contextCache) invalidateTenant(tenant string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*contextEntry).key.tenant == tenant {
			victims = append(victims, elem)
		}
	}
	for _, elem := range victims {
		c.remove(elem)
	}
	return len(victims)
}

// len returns the live entry count.
func (c *contextCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// stats returns hit/miss counters since creation.
func (c *contextCache) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// remove drops an element from list and map. Caller holds the lock.
func (c *contextCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*contextEntry).key)
}
