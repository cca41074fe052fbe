// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scoring

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// EmbeddingCache is a Badger-backed cache of stored object embeddings.
//
// Description:
//
//	Embedding fetches hit the schema graph; vectors change only on
//	re-ingestion, so caching them locally with a TTL removes the fetch
//	from the hot path. Entries expire via Badger's native TTL. The cache
//	is strictly optional: every miss falls through to the graph.
//
// Thread Safety: Safe for concurrent use (Badger transactions).
type EmbeddingCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// EmbeddingCacheOptions configures OpenEmbeddingCache.
type EmbeddingCacheOptions struct {
	// Dir is the Badger directory. Empty selects in-memory mode.
	Dir string
	// TTL bounds entry staleness. Zero means 24h.
	TTL time.Duration
	// Logger for cache operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// OpenEmbeddingCache opens (or creates) the cache store.
func OpenEmbeddingCache(opts EmbeddingCacheOptions) (*EmbeddingCache, error) {
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var badgerOpts badger.Options
	if opts.Dir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &EmbeddingCache{
		db:     db,
		ttl:    opts.TTL,
		logger: opts.Logger.With(slog.String("component", "embedding_cache")),
	}, nil
}

// Close releases the Badger store.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func cacheKey(tenant, object string) []byte {
	return []byte("emb/" + tenant + "/" + object)
}

// Get returns the cached vector for (tenant, object), if present.
func (c *EmbeddingCache) Get(tenant, object string) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(tenant, object))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &vec)
		})
	})
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Put stores a vector with the configured TTL. Failures are logged and
// swallowed; the cache is best-effort.
func (c *EmbeddingCache) Put(tenant, object string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(tenant, object), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("embedding cache write failed",
			slog.String("tenant", tenant),
			slog.String("object", object),
			slog.String("error", err.Error()))
	}
}

// InvalidateTenant drops every cached vector for a tenant. Called on
// schema drift so stale vectors never outlive the graph snapshot.
func (c *EmbeddingCache) InvalidateTenant(tenant string) {
	prefix := []byte("emb/" + tenant + "/")
	err := c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("embedding cache invalidation failed",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()))
	}
}
