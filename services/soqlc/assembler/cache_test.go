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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(tenant, query string) contextKey {
	return contextKey{tenant: tenant, query: query}
}

func TestContextCacheEvictsOldest(t *testing.T) {
	c := newContextCache(2)
	c.set(key("t1", "a"), &Assembled{})
	c.set(key("t1", "b"), &Assembled{})
	c.set(key("t1", "c"), &Assembled{})

	assert.Equal(t, 2, c.len())
	_, ok := c.get(key("t1", "a"))
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = c.get(key("t1", "c"))
	assert.True(t, ok)
}

func TestContextCacheGetRefreshesRecency(t *testing.T) {
	c := newContextCache(2)
	c.set(key("t1", "a"), &Assembled{})
	c.set(key("t1", "b"), &Assembled{})

	_, ok := c.get(key("t1", "a"))
	require.True(t, ok)

	// "b" is now least recent and must be the one evicted.
	c.set(key("t1", "c"), &Assembled{})
	_, ok = c.get(key("t1", "a"))
	assert.True(t, ok)
	_, ok = c.get(key("t1", "b"))
	assert.False(t, ok)
}

func TestContextCacheSetRefreshesExisting(t *testing.T) {
	c := newContextCache(2)
	first := &Assembled{}
	second := &Assembled{}
	c.set(key("t1", "a"), first)
	c.set(key("t1", "a"), second)

	assert.Equal(t, 1, c.len())
	got, ok := c.get(key("t1", "a"))
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestContextCacheInvalidateTenant(t *testing.T) {
	c := newContextCache(8)
	c.set(key("t1", "a"), &Assembled{})
	c.set(key("t1", "b"), &Assembled{})
	c.set(key("t2", "a"), &Assembled{})

	dropped := c.invalidateTenant("t1")
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, c.len())

	_, ok := c.get(key("t2", "a"))
	assert.True(t, ok, "other tenants must be untouched")
}

func TestContextCacheStats(t *testing.T) {
	c := newContextCache(8)
	c.set(key("t1", "a"), &Assembled{})

	c.get(key("t1", "a"))
	c.get(key("t1", "missing"))

	hits, misses := c.stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestContextCacheDefaultCapacity(t *testing.T) {
	c := newContextCache(0)
	assert.Equal(t, 256, c.capacity)
}
