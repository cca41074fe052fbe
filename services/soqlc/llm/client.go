// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the completion and embedding capabilities the
// compiler delegates to a language-model provider. The pipeline treats
// the model as an untrusted draft generator: everything it returns is
// parsed, validated, and repaired downstream.
package llm

import "context"

// GenerationParams tunes one completion call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the completion surface the planner and coder depend on.
type Client interface {
	// Complete sends a system role plus a user prompt and returns the raw
	// model output.
	Complete(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}

// Embedder computes an embedding vector for free text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
