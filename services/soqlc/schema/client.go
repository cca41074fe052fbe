// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Sentinel errors for the schema package.
var (
	// ErrGraphUnavailable indicates the schema graph store is unreachable.
	ErrGraphUnavailable = errors.New("schema graph is not available")

	// ErrObjectNotFound indicates the requested object does not exist for
	// the tenant.
	ErrObjectNotFound = errors.New("schema object not found")

	// ErrEmbeddingsUnavailable indicates object embeddings could not be
	// fetched. Callers degrade to lexical+graph scoring.
	ErrEmbeddingsUnavailable = errors.New("object embeddings unavailable")

	// ErrCircuitOpen indicates the circuit breaker is blocking graph calls.
	ErrCircuitOpen = errors.New("circuit breaker is open, graph requests blocked")

	// ErrClientClosed is returned when operations run on a closed client.
	ErrClientClosed = errors.New("schema graph client is closed")
)

// InstanceRecord is one live record returned by instance search.
type InstanceRecord struct {
	// ObjectType is the API name of the record's object.
	ObjectType string
	// ID is the record's stable identifier.
	ID string
	// Name is the record's name field value.
	Name string
}

// GraphClient is the read-only query surface over the schema graph.
//
// Description:
//
//	The graph itself is populated by an out-of-scope ingestion pipeline.
//	All methods are tenant-scoped and must be safe for concurrent use.
//	Implementations should return ErrGraphUnavailable (possibly wrapped)
//	when the backing store is unreachable so callers can degrade.
type GraphClient interface {
	// ListObjects returns every object's API name for the tenant.
	ListObjects(ctx context.Context, tenant string) ([]string, error)

	// GetObjectDetail returns the full object definition.
	// Returns ErrObjectNotFound when the object does not exist.
	GetObjectDetail(ctx context.Context, apiName, tenant string) (*Object, error)

	// GetFieldEmbeddings returns the stored embedding vector per object,
	// fetched exactly for the given names (never approximate search).
	// Objects without a stored vector are absent from the result.
	GetFieldEmbeddings(ctx context.Context, objectNames []string, tenant string) (map[string][]float32, error)

	// SearchInstanceRecords runs a sanitized SOSL-like full-text search
	// against live instance data, already scoped to the given objects.
	SearchInstanceRecords(ctx context.Context, term string, objectScope []string, tenant string) ([]InstanceRecord, error)
}

// -----------------------------------------------------------------------------
// Static client
// -----------------------------------------------------------------------------

// StaticClient is an in-memory GraphClient backed by fixed objects.
//
// Description:
//
//	Used in tests and for snapshot-file deployments where the graph was
//	exported ahead of time. Embeddings and instance records are optional.
//
// Thread Safety: Safe for concurrent use; the backing maps are never
// mutated after construction.
type StaticClient struct {
	mu         sync.RWMutex
	objects    map[string]map[string]*Object   // tenant -> lower(apiName) -> object
	embeddings map[string]map[string][]float32 // tenant -> apiName -> vector
	records    map[string][]InstanceRecord     // tenant -> records
}

// NewStaticClient creates an empty StaticClient.
func NewStaticClient() *StaticClient {
	return &StaticClient{
		objects:    make(map[string]map[string]*Object),
		embeddings: make(map[string]map[string][]float32),
		records:    make(map[string][]InstanceRecord),
	}
}

// AddObject registers an object for a tenant.
func (s *StaticClient) AddObject(tenant string, obj *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[tenant] == nil {
		s.objects[tenant] = make(map[string]*Object)
	}
	s.objects[tenant][strings.ToLower(obj.APIName)] = obj
}

// AddEmbedding registers an object embedding for a tenant.
func (s *StaticClient) AddEmbedding(tenant, apiName string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embeddings[tenant] == nil {
		s.embeddings[tenant] = make(map[string][]float32)
	}
	s.embeddings[tenant][apiName] = vector
}

// AddRecord registers a live instance record for a tenant.
func (s *StaticClient) AddRecord(tenant string, rec InstanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[tenant] = append(s.records[tenant], rec)
}

// ListObjects implements GraphClient.
func (s *StaticClient) ListObjects(ctx context.Context, tenant string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, obj := range s.objects[tenant] {
		names = append(names, obj.APIName)
	}
	return names, nil
}

// GetObjectDetail implements GraphClient.
func (s *StaticClient) GetObjectDetail(ctx context.Context, apiName, tenant string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[tenant][strings.ToLower(apiName)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

// GetFieldEmbeddings implements GraphClient.
func (s *StaticClient) GetFieldEmbeddings(ctx context.Context, objectNames []string, tenant string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float32, len(objectNames))
	for _, name := range objectNames {
		if vec, ok := s.embeddings[tenant][name]; ok {
			out[name] = vec
		}
	}
	return out, nil
}

// SearchInstanceRecords implements GraphClient. Matching is a simple
// case-insensitive substring scan over record names within scope.
func (s *StaticClient) SearchInstanceRecords(ctx context.Context, term string, objectScope []string, tenant string) ([]InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := make(map[string]bool, len(objectScope))
	for _, o := range objectScope {
		scope[strings.ToLower(o)] = true
	}
	lowerTerm := strings.ToLower(term)
	var out []InstanceRecord
	for _, rec := range s.records[tenant] {
		if len(scope) > 0 && !scope[strings.ToLower(rec.ObjectType)] {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Name), lowerTerm) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ GraphClient = (*StaticClient)(nil)
