// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the compiler configuration. Every empirically tuned
// threshold in the pipeline is a named field here rather than a magic
// number, so deployments can override without code changes.
package config

import "time"

// SoqlcConfig is the root configuration for the compiler service.
type SoqlcConfig struct {
	Graph     GraphConfig     `yaml:"graph"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Grounding GroundingConfig `yaml:"grounding"`
	Assembler AssemblerConfig `yaml:"assembler"`
	Validate  ValidateConfig  `yaml:"validate"`
	Repair    RepairConfig    `yaml:"repair"`
	LLM       LLMConfig       `yaml:"llm"`
}

// GraphConfig configures the schema graph connection.
type GraphConfig struct {
	// URL of the Weaviate schema graph store.
	URL string `yaml:"url"`
}

// ScoringConfig holds the hybrid scorer signal weights. The three weights
// are renormalized automatically when the vector signal is unavailable.
type ScoringConfig struct {
	LexicalWeight float64 `yaml:"lexical_weight"` // default 0.35
	VectorWeight  float64 `yaml:"vector_weight"`  // default 0.45
	GraphWeight   float64 `yaml:"graph_weight"`   // default 0.20

	// EmbeddingCacheDir enables the Badger embedding cache when set.
	EmbeddingCacheDir string `yaml:"embedding_cache_dir"`
	// EmbeddingCacheTTL bounds cached vector staleness. Default 24h.
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
}

// GroundingConfig holds entity-grounding thresholds. The defaults are
// empirical; they are preserved here as overridable constants rather than
// re-derived.
type GroundingConfig struct {
	// FuzzyThreshold is the minimum relative similarity (1 - distance /
	// longer length) for a fuzzy match. Default 0.8.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
	// MinTermLength is the shortest sanitized term Tier-2 will search.
	// Default 3.
	MinTermLength int `yaml:"min_term_length"`
	// SearchTimeout bounds one Tier-2 instance search. Default 5s.
	SearchTimeout time.Duration `yaml:"search_timeout"`
	// SearchRatePerSecond rate-limits Tier-2 searches. Default 5.
	SearchRatePerSecond float64 `yaml:"search_rate_per_second"`
}

// AssemblerConfig configures schema context assembly.
type AssemblerConfig struct {
	// NeighborBudget caps hybrid-scorer context expansion. Default 8.
	NeighborBudget int `yaml:"neighbor_budget"`
	// CacheCapacity is the per-process context cache size. Default 256.
	CacheCapacity int `yaml:"cache_capacity"`
	// SnapshotDir enables the fsnotify drift watcher when set: a change
	// to <tenant>.json invalidates that tenant's cache entries.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// ValidateConfig holds validator thresholds.
type ValidateConfig struct {
	// MaxLimit is the governor ceiling for explicit LIMIT values.
	// Default 2000.
	MaxLimit int `yaml:"max_limit"`
	// SuggestedLimit is the concrete LIMIT recommended by the governor
	// warning. Default 200.
	SuggestedLimit int `yaml:"suggested_limit"`
	// SuggestionMaxDistance caps edit distance for closest-match
	// suggestions. Default 2.
	SuggestionMaxDistance int `yaml:"suggestion_max_distance"`
}

// RepairConfig bounds the repair loop.
type RepairConfig struct {
	// MaxPasses bounds deterministic repair passes. Default 4.
	MaxPasses int `yaml:"max_passes"`
	// MaxRegenerations bounds Coder re-invocations. Default 2.
	MaxRegenerations int `yaml:"max_regenerations"`
}

// LLMConfig configures the completion capability.
type LLMConfig struct {
	// Model passed to the provider. Default "gpt-4o-mini".
	Model string `yaml:"model"`
	// EmbeddingModel for query embeddings. Default "text-embedding-3-small".
	EmbeddingModel string `yaml:"embedding_model"`
	// Timeout bounds one completion call. Default 60s.
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults returns the fully populated default configuration.
func Defaults() SoqlcConfig {
	return SoqlcConfig{
		Graph: GraphConfig{URL: "http://localhost:8080"},
		Scoring: ScoringConfig{
			LexicalWeight:     0.35,
			VectorWeight:      0.45,
			GraphWeight:       0.20,
			EmbeddingCacheTTL: 24 * time.Hour,
		},
		Grounding: GroundingConfig{
			FuzzyThreshold:      0.8,
			MinTermLength:       3,
			SearchTimeout:       5 * time.Second,
			SearchRatePerSecond: 5,
		},
		Assembler: AssemblerConfig{
			NeighborBudget: 8,
			CacheCapacity:  256,
		},
		Validate: ValidateConfig{
			MaxLimit:              2000,
			SuggestedLimit:        200,
			SuggestionMaxDistance: 2,
		},
		Repair: RepairConfig{
			MaxPasses:        4,
			MaxRegenerations: 2,
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        60 * time.Second,
		},
	}
}

// applyDefaults fills zero values from Defaults. Loaded files may set only
// the fields they care about.
func (c *SoqlcConfig) applyDefaults() {
	d := Defaults()
	if c.Graph.URL == "" {
		c.Graph.URL = d.Graph.URL
	}
	if c.Scoring.LexicalWeight == 0 && c.Scoring.VectorWeight == 0 && c.Scoring.GraphWeight == 0 {
		c.Scoring.LexicalWeight = d.Scoring.LexicalWeight
		c.Scoring.VectorWeight = d.Scoring.VectorWeight
		c.Scoring.GraphWeight = d.Scoring.GraphWeight
	}
	if c.Scoring.EmbeddingCacheTTL == 0 {
		c.Scoring.EmbeddingCacheTTL = d.Scoring.EmbeddingCacheTTL
	}
	if c.Grounding.FuzzyThreshold == 0 {
		c.Grounding.FuzzyThreshold = d.Grounding.FuzzyThreshold
	}
	if c.Grounding.MinTermLength == 0 {
		c.Grounding.MinTermLength = d.Grounding.MinTermLength
	}
	if c.Grounding.SearchTimeout == 0 {
		c.Grounding.SearchTimeout = d.Grounding.SearchTimeout
	}
	if c.Grounding.SearchRatePerSecond == 0 {
		c.Grounding.SearchRatePerSecond = d.Grounding.SearchRatePerSecond
	}
	if c.Assembler.NeighborBudget == 0 {
		c.Assembler.NeighborBudget = d.Assembler.NeighborBudget
	}
	if c.Assembler.CacheCapacity == 0 {
		c.Assembler.CacheCapacity = d.Assembler.CacheCapacity
	}
	if c.Validate.MaxLimit == 0 {
		c.Validate.MaxLimit = d.Validate.MaxLimit
	}
	if c.Validate.SuggestedLimit == 0 {
		c.Validate.SuggestedLimit = d.Validate.SuggestedLimit
	}
	if c.Validate.SuggestionMaxDistance == 0 {
		c.Validate.SuggestionMaxDistance = d.Validate.SuggestionMaxDistance
	}
	if c.Repair.MaxPasses == 0 {
		c.Repair.MaxPasses = d.Repair.MaxPasses
	}
	if c.Repair.MaxRegenerations == 0 {
		c.Repair.MaxRegenerations = d.Repair.MaxRegenerations
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = d.LLM.EmbeddingModel
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
}
