// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler builds the schema context for one compilation: the
// minimal object set the planner and validator need, with picklist hints
// and a grounding scope attached. Assembly is the only phase that walks
// the whole tenant schema; everything downstream sees the pruned context.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/grounding"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/scoring"
)

// detailFetchParallelism bounds concurrent GetObjectDetail calls during
// candidate loading.
const detailFetchParallelism = 8

// Assembled is the cacheable product of one assembly run.
type Assembled struct {
	Context *schema.Context
	// Grounded holds the entity-grounding results for the query's
	// candidate terms, in extraction order.
	Grounded []grounding.Result
}

// Service assembles schema contexts.
//
// Thread Safety: Safe for concurrent use after construction.
type Service struct {
	graph    schema.GraphClient
	scorer   *scoring.HybridScorer
	grounder *grounding.Service
	cfg      config.AssemblerConfig
	logger   *slog.Logger

	cache *contextCache
	// embedCache, when set, is invalidated alongside the context cache on
	// drift so stale vectors never outlive the schema snapshot.
	embedCache *scoring.EmbeddingCache
}

// NewService creates the assembler. grounder and embedCache may be nil.
func NewService(graph schema.GraphClient, scorer *scoring.HybridScorer, grounder *grounding.Service, embedCache *scoring.EmbeddingCache, cfg config.AssemblerConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		graph:      graph,
		scorer:     scorer,
		grounder:   grounder,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "assembler")),
		cache:      newContextCache(cfg.CacheCapacity),
		embedCache: embedCache,
	}
}

// Assemble returns the schema context for (tenant, query), from cache
// when possible.
//
// Description:
//
//	Cold path: load every object definition for the tenant, seed the
//	context with lexical matches against the query, expand the seed set
//	through the hybrid scorer up to the neighbor budget, attach picklist
//	hints and the grounding scope, then ground the query's candidate
//	entity terms. The whole product is cached keyed by (tenant,
//	normalized query).
func (s *Service) Assemble(ctx context.Context, tenant, query string) (*Assembled, error) {
	key := contextKey{tenant: tenant, query: normalizeQuery(query)}
	if cached, ok := s.cache.get(key); ok {
		s.logger.Debug("context cache hit", slog.String("tenant", tenant))
		return cached, nil
	}

	candidates, err := s.loadObjects(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: tenant %s", ErrNoObjects, tenant)
	}

	selected := s.selectObjects(ctx, tenant, query, candidates)

	sctx := &schema.Context{
		Objects:       selected,
		PicklistHints: collectPicklistHints(selected),
	}
	for _, o := range selected {
		sctx.GroundingScope = append(sctx.GroundingScope, o.APIName)
	}
	sctx.ComputeStats()

	assembled := &Assembled{Context: sctx}
	if s.grounder != nil {
		terms := extractEntityTerms(query)
		if len(terms) > 0 {
			assembled.Grounded = s.grounder.GroundTerms(ctx, tenant, terms, sctx)
		}
	}

	s.cache.set(key, assembled)
	s.logger.Info("context assembled",
		slog.String("tenant", tenant),
		slog.Int("objects", len(selected)),
		slog.Int("grounded_terms", len(assembled.Grounded)))
	return assembled, nil
}

// OnSchemaChanged invalidates every cached artifact for the tenant. The
// drift watcher and any push notification path both land here.
func (s *Service) OnSchemaChanged(tenant string) {
	dropped := s.cache.invalidateTenant(tenant)
	if s.embedCache != nil {
		s.embedCache.InvalidateTenant(tenant)
	}
	s.logger.Info("schema drift: tenant caches invalidated",
		slog.String("tenant", tenant),
		slog.Int("contexts_dropped", dropped))
}

// CacheStats exposes context cache hit/miss counters.
func (s *Service) CacheStats() (hits, misses int64) {
	return s.cache.stats()
}

// loadObjects fetches every object definition for the tenant, bounded
// concurrency.
func (s *Service) loadObjects(ctx context.Context, tenant string) ([]*schema.Object, error) {
	names, err := s.graph.ListObjects(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var (
		mu      sync.Mutex
		objects []*schema.Object
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchParallelism)
	for _, name := range names {
		g.Go(func() error {
			obj, err := s.graph.GetObjectDetail(gctx, name, tenant)
			if err != nil {
				return fmt.Errorf("object detail %s: %w", name, err)
			}
			mu.Lock()
			objects = append(objects, obj)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].APIName < objects[j].APIName })
	return objects, nil
}

// selectObjects builds the pruned, relevance-ordered object set: lexical
// seeds first, then scorer-ranked expansion up to the neighbor budget.
func (s *Service) selectObjects(ctx context.Context, tenant, query string, candidates []*schema.Object) []*schema.Object {
	seeds, rest := lexicalSeeds(query, candidates)
	if len(seeds) == 0 {
		// Nothing matched lexically: let the scorer rank the whole set.
		rest = candidates
	}

	budget := s.cfg.NeighborBudget
	if budget <= 0 {
		budget = 8
	}

	selected := make([]*schema.Object, 0, len(seeds)+budget)
	selected = append(selected, seeds...)

	if len(rest) > 0 && s.scorer != nil {
		ranked := s.scorer.Score(ctx, tenant, query, rest, seeds)
		for _, r := range ranked {
			if len(selected) >= len(seeds)+budget {
				break
			}
			if r.Total <= 0 {
				break
			}
			selected = append(selected, r.Object)
		}
	}
	if len(selected) == 0 {
		// Degenerate query: keep the first candidate so downstream phases
		// have something to validate against.
		selected = append(selected, candidates[0])
	}
	return selected
}

// lexicalSeeds partitions candidates into query-matching seeds and the
// remainder. A seed match is the object's API name, label, or a synonym
// appearing in the query.
func lexicalSeeds(query string, candidates []*schema.Object) (seeds, rest []*schema.Object) {
	lower := strings.ToLower(query)
	for _, obj := range candidates {
		if objectMentioned(lower, obj) {
			seeds = append(seeds, obj)
		} else {
			rest = append(rest, obj)
		}
	}
	return seeds, rest
}

func objectMentioned(lowerQuery string, obj *schema.Object) bool {
	names := append([]string{obj.APIName, obj.Label}, obj.Synonyms...)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if strings.Contains(lowerQuery, n) {
			return true
		}
		// Naive singular: "accounts" mentions Account.
		if strings.Contains(lowerQuery, n+"s") {
			return true
		}
	}
	return false
}

// collectPicklistHints gathers "Object.Field" -> values for every
// picklist field in the selected set.
func collectPicklistHints(objects []*schema.Object) map[string][]string {
	hints := make(map[string][]string)
	for _, obj := range objects {
		for _, f := range obj.Fields {
			if len(f.PicklistValues) > 0 {
				hints[obj.APIName+"."+f.APIName] = f.PicklistValues
			}
		}
	}
	return hints
}

// extractEntityTerms pulls candidate entity terms from the query: quoted
// spans verbatim, plus capitalized multi-word runs outside the leading
// position.
func extractEntityTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			return
		}
		seen[strings.ToLower(t)] = true
		terms = append(terms, t)
	}

	// Quoted spans are the strongest signal. They are removed from the
	// text so the capitalized-run pass below never double-counts them.
	var stripped strings.Builder
	rest := query
	for {
		i := strings.IndexAny(rest, `"'`)
		if i < 0 {
			stripped.WriteString(rest)
			break
		}
		quote := rest[i]
		stripped.WriteString(rest[:i])
		stripped.WriteByte(' ')
		rest = rest[i+1:]
		j := strings.IndexByte(rest, quote)
		if j < 0 {
			stripped.WriteString(rest)
			break
		}
		add(rest[:j])
		rest = rest[j+1:]
	}

	// Capitalized runs after the first word: "deals at Acme Corp" yields
	// "Acme Corp".
	words := strings.Fields(stripped.String())
	var run []string
	flush := func() {
		if len(run) > 0 {
			add(strings.Join(run, " "))
			run = nil
		}
	}
	for i, w := range words {
		trimmed := strings.Trim(w, ".,;:!?()")
		if i > 0 && trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
			run = append(run, trimmed)
			continue
		}
		flush()
	}
	flush()
	return terms
}

// normalizeQuery canonicalizes query text for cache keying.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
