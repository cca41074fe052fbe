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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func scoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		LexicalWeight: 0.35,
		VectorWeight:  0.45,
		GraphWeight:   0.20,
	}
}

func testObjects() (*schema.Object, *schema.Object) {
	opp := &schema.Object{
		APIName: "Opportunity",
		Label:   "Opportunity",
		Fields: []schema.Field{
			{APIName: "Amount", Label: "Amount"},
			{APIName: "StageName", Label: "Stage"},
			{APIName: "AccountId", Label: "Account ID", ReferenceTo: []string{"Account"}},
		},
	}
	task := &schema.Object{
		APIName: "Task",
		Label:   "Task",
		Fields: []schema.Field{
			{APIName: "Subject", Label: "Subject"},
		},
	}
	return opp, task
}

func TestScoreLexicalRanking(t *testing.T) {
	graph := schema.NewStaticClient()
	scorer := NewHybridScorer(graph, nil, nil, scoringConfig(), nil)

	opp, task := testObjects()
	scores := scorer.Score(context.Background(), "t1", "total opportunity amount by stage", []*schema.Object{task, opp}, nil)

	require.Len(t, scores, 2)
	assert.Equal(t, "Opportunity", scores[0].Object.APIName)
	assert.Greater(t, scores[0].Lexical, scores[1].Lexical)
	assert.False(t, scores[0].VectorUsed)
}

func TestScoreWithVectors(t *testing.T) {
	graph := schema.NewStaticClient()
	graph.AddEmbedding("t1", "Opportunity", []float32{1, 0, 0})
	graph.AddEmbedding("t1", "Task", []float32{0, 1, 0})

	embedder := &stubEmbedder{vec: []float32{1, 0, 0}}
	scorer := NewHybridScorer(graph, embedder, nil, scoringConfig(), nil)

	opp, task := testObjects()
	scores := scorer.Score(context.Background(), "t1", "zzz unrelated words", []*schema.Object{task, opp}, nil)

	require.Len(t, scores, 2)
	assert.True(t, scores[0].VectorUsed)
	assert.Equal(t, "Opportunity", scores[0].Object.APIName)
	assert.InDelta(t, 1.0, scores[0].Vector, 0.001)
	assert.InDelta(t, 0.0, scores[1].Vector, 0.001)
}

func TestScoreDegradesWithoutEmbedder(t *testing.T) {
	graph := schema.NewStaticClient()
	scorer := NewHybridScorer(graph, nil, nil, scoringConfig(), nil)

	opp, _ := testObjects()
	scores := scorer.Score(context.Background(), "t1", "opportunity amount", []*schema.Object{opp}, nil)

	require.Len(t, scores, 1)
	assert.False(t, scores[0].VectorUsed)
	// Renormalized weights: lexical 0.35/0.55, graph 0.20/0.55. With a
	// zero graph signal the total is pure renormalized lexical.
	expected := scores[0].Lexical * (0.35 / 0.55)
	assert.InDelta(t, expected, scores[0].Total, 0.001)
}

func TestScoreDegradesOnEmbedderError(t *testing.T) {
	graph := schema.NewStaticClient()
	embedder := &stubEmbedder{err: errors.New("provider down")}
	scorer := NewHybridScorer(graph, embedder, nil, scoringConfig(), nil)

	opp, task := testObjects()
	scores := scorer.Score(context.Background(), "t1", "opportunity amount", []*schema.Object{opp, task}, nil)

	require.Len(t, scores, 2)
	for _, s := range scores {
		assert.False(t, s.VectorUsed, "embedder failure must degrade, not fail")
	}
	assert.Equal(t, "Opportunity", scores[0].Object.APIName)
}

func TestGraphSignalFavorsNeighbors(t *testing.T) {
	graph := schema.NewStaticClient()
	scorer := NewHybridScorer(graph, nil, nil, scoringConfig(), nil)

	opp, task := testObjects()
	account := &schema.Object{APIName: "Account", Label: "Account"}

	scores := scorer.Score(context.Background(), "t1", "zzz", []*schema.Object{task, opp}, []*schema.Object{account})

	require.Len(t, scores, 2)
	// Opportunity references Account; Task has no neighbors in common.
	assert.Equal(t, "Opportunity", scores[0].Object.APIName)
	assert.Greater(t, scores[0].Graph, scores[1].Graph)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.001)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 0.001)
	assert.Equal(t, 0.0, cosine(nil, []float32{1}))
	assert.Equal(t, 0.0, cosine([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{0, 0}))
}

func TestTokenizeQueryDropsShortTokens(t *testing.T) {
	terms := tokenizeQuery("My top 10 accounts by ARR!")
	assert.Contains(t, terms, "accounts")
	assert.Contains(t, terms, "arr")
	assert.Contains(t, terms, "top")
	assert.NotContains(t, terms, "my")
	assert.NotContains(t, terms, "10")
	assert.NotContains(t, terms, "by")
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	cache, err := OpenEmbeddingCache(EmbeddingCacheOptions{})
	require.NoError(t, err)
	defer cache.Close()

	_, ok := cache.Get("t1", "Account")
	assert.False(t, ok)

	cache.Put("t1", "Account", []float32{1, 2, 3})
	vec, ok := cache.Get("t1", "Account")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestEmbeddingCacheInvalidateTenant(t *testing.T) {
	cache, err := OpenEmbeddingCache(EmbeddingCacheOptions{})
	require.NoError(t, err)
	defer cache.Close()

	cache.Put("t1", "Account", []float32{1})
	cache.Put("t1", "Task", []float32{2})
	cache.Put("t2", "Account", []float32{3})

	cache.InvalidateTenant("t1")

	_, ok := cache.Get("t1", "Account")
	assert.False(t, ok)
	_, ok = cache.Get("t1", "Task")
	assert.False(t, ok)
	vec, ok := cache.Get("t2", "Account")
	require.True(t, ok, "other tenants must be untouched")
	assert.Equal(t, []float32{3}, vec)
}
