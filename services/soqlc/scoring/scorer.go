// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring ranks candidate schema objects for a query using three
// independent signals: lexical overlap, vector cosine similarity, and
// graph-structural similarity. The vector signal degrades gracefully when
// embeddings are unavailable; the call never fails for that reason.
package scoring

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

// Embedder computes an embedding vector for free text. The llm package
// provides the OpenAI-backed implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CandidateScore is the ranked output for one candidate object.
type CandidateScore struct {
	Object  *schema.Object
	Lexical float64
	Vector  float64
	Graph   float64
	// Total is the weighted combination actually used for ranking.
	Total float64
	// VectorUsed is false when the call degraded to lexical+graph.
	VectorUsed bool
}

// HybridScorer combines the three signals with fixed weights.
//
// Thread Safety: Safe for concurrent use after construction.
type HybridScorer struct {
	graph    schema.GraphClient
	embedder Embedder
	cache    *EmbeddingCache
	cfg      config.ScoringConfig
	logger   *slog.Logger

	// degradation tracks graph availability for the vector signal.
	degradation *schema.BaseDegradationHandler
}

// NewHybridScorer creates a scorer. embedder and cache may be nil: without
// an embedder the scorer always runs in lexical+graph mode.
func NewHybridScorer(graph schema.GraphClient, embedder Embedder, cache *EmbeddingCache, cfg config.ScoringConfig, logger *slog.Logger) *HybridScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridScorer{
		graph:       graph,
		embedder:    embedder,
		cache:       cache,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "hybrid_scorer")),
		degradation: schema.NewBaseDegradationHandler("hybrid_scorer", logger),
	}
}

// DegradationHandler exposes the scorer's handler for registration with a
// resilient graph client.
func (s *HybridScorer) DegradationHandler() schema.DegradationHandler {
	return s.degradation
}

// Score ranks candidates against the query.
//
// Description:
//
//	Computes lexical and graph-structural signals synchronously while the
//	vector signal (query embedding plus exact embedding fetch for the
//	candidate set) runs concurrently. When the vector signal cannot be
//	produced the remaining weights are renormalized and the degradation
//	is logged; the call itself never fails for that reason.
//
// Inputs:
//
//	ctx - Cancellation and deadline.
//	tenant - Tenant scope for embedding fetch.
//	query - The natural-language query.
//	candidates - Candidate objects with full detail.
//	selected - Objects already chosen for the context (graph signal anchor).
//
// Outputs:
//
//	[]CandidateScore - Candidates ranked best-first.
func (s *HybridScorer) Score(ctx context.Context, tenant, query string, candidates []*schema.Object, selected []*schema.Object) []CandidateScore {
	if len(candidates) == 0 {
		return nil
	}

	queryTerms := tokenizeQuery(query)
	selectedNames := make(map[string]bool, len(selected))
	for _, o := range selected {
		selectedNames[strings.ToLower(o.APIName)] = true
	}

	var (
		queryVec   []float32
		objectVecs map[string][]float32
	)
	g, vctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, vecs, err := s.fetchVectors(vctx, tenant, query, candidates)
		if err != nil {
			// Degraded, not failed: the error is recorded and the
			// combining step renormalizes without the vector term.
			s.logger.Warn("vector signal unavailable, degrading to lexical+graph",
				slog.String("error", err.Error()))
			return nil
		}
		queryVec, objectVecs = vec, vecs
		return nil
	})

	scores := make([]CandidateScore, len(candidates))
	for i, cand := range candidates {
		scores[i] = CandidateScore{
			Object:  cand,
			Lexical: lexicalScore(queryTerms, cand),
			Graph:   graphScore(cand, selectedNames),
		}
	}

	_ = g.Wait()

	vectorUsed := queryVec != nil && len(objectVecs) > 0
	lw, vw, gw := s.weights(vectorUsed)
	for i := range scores {
		if vectorUsed {
			if vec, ok := objectVecs[scores[i].Object.APIName]; ok {
				scores[i].Vector = cosine(queryVec, vec)
			}
			scores[i].VectorUsed = true
		}
		scores[i].Total = lw*scores[i].Lexical + vw*scores[i].Vector + gw*scores[i].Graph
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Total > scores[j].Total })
	return scores
}

// weights returns the active signal weights, renormalized to sum to one
// when the vector signal is out.
func (s *HybridScorer) weights(vectorUsed bool) (lexical, vector, graph float64) {
	lw, vw, gw := s.cfg.LexicalWeight, s.cfg.VectorWeight, s.cfg.GraphWeight
	if vectorUsed {
		return lw, vw, gw
	}
	rest := lw + gw
	if rest <= 0 {
		return 0.5, 0, 0.5
	}
	return lw / rest, 0, gw / rest
}

// fetchVectors produces the query embedding and the stored embeddings for
// the exact candidate set. Cached vectors are served from Badger when a
// cache is configured.
func (s *HybridScorer) fetchVectors(ctx context.Context, tenant, query string, candidates []*schema.Object) ([]float32, map[string][]float32, error) {
	if s.embedder == nil {
		return nil, nil, schema.ErrEmbeddingsUnavailable
	}
	if s.degradation.IsDegraded() {
		return nil, nil, schema.ErrGraphUnavailable
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	vecs := make(map[string][]float32, len(candidates))
	var missing []string
	for _, cand := range candidates {
		if s.cache != nil {
			if vec, ok := s.cache.Get(tenant, cand.APIName); ok {
				vecs[cand.APIName] = vec
				continue
			}
		}
		missing = append(missing, cand.APIName)
	}

	if len(missing) > 0 {
		fetched, err := s.graph.GetFieldEmbeddings(ctx, missing, tenant)
		if err != nil {
			return nil, nil, err
		}
		for name, vec := range fetched {
			vecs[name] = vec
			if s.cache != nil {
				s.cache.Put(tenant, name, vec)
			}
		}
	}
	return queryVec, vecs, nil
}

// -----------------------------------------------------------------------------
// Signals
// -----------------------------------------------------------------------------

// lexicalScore measures term containment of query terms within the
// object's names, synonyms, and field labels.
func lexicalScore(queryTerms []string, obj *schema.Object) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	haystack := make([]string, 0, 2+len(obj.Synonyms)+2*len(obj.Fields))
	haystack = append(haystack, strings.ToLower(obj.APIName), strings.ToLower(obj.Label))
	for _, s := range obj.Synonyms {
		haystack = append(haystack, strings.ToLower(s))
	}
	for _, f := range obj.Fields {
		haystack = append(haystack, strings.ToLower(f.APIName), strings.ToLower(f.Label))
	}

	matched := 0
	for _, term := range queryTerms {
		for _, h := range haystack {
			if strings.Contains(h, term) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// graphScore is the Jaccard similarity between the candidate's
// relationship-neighbor set and the already-selected object names. A high
// value is a cheap proxy for "junction or closely coupled object".
func graphScore(obj *schema.Object, selectedNames map[string]bool) float64 {
	if len(selectedNames) == 0 {
		return 0
	}
	neighbors := make(map[string]bool)
	for _, f := range obj.Fields {
		for _, ref := range f.ReferenceTo {
			neighbors[strings.ToLower(ref)] = true
		}
	}
	for _, r := range obj.ChildRelationships {
		neighbors[strings.ToLower(r.ChildObject)] = true
	}
	if len(neighbors) == 0 {
		return 0
	}

	intersection := 0
	for n := range neighbors {
		if selectedNames[n] {
			intersection++
		}
	}
	union := len(neighbors) + len(selectedNames) - intersection
	return float64(intersection) / float64(union)
}

// cosine computes cosine similarity, zero for mismatched or empty vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenizeQuery lower-cases and splits the query, dropping short tokens.
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
