// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner drives the two model-backed phases of a compilation:
// the Decomposer, which turns the query plus schema context into a
// QueryPlan, and the Coder, which turns the plan into draft query text.
// Both phases are single request/response calls; retries live in the
// outer repair loop, never here.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/soqlforge/services/soqlc/grounding"
	"github.com/AleutianAI/soqlforge/services/soqlc/llm"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

// QueryPlan is the Decomposer's output. Produced once per compilation
// attempt and never mutated afterwards.
type QueryPlan struct {
	// Summary restates the user's intent in one sentence.
	Summary string `json:"summary"`
	// Tables is the ordered list of relevant object API names, main
	// object first.
	Tables []string `json:"tables"`
	// TableFields is the ordered list of relevant "Object.Field" pairs.
	TableFields []string `json:"table_fields"`
	// JoinRationale explains required relationships and junction hops.
	JoinRationale string `json:"join_rationale"`
	// GlobalContext carries anything else the Coder should know.
	GlobalContext string `json:"global_context"`
}

// MainObject returns the plan's primary object, empty when the plan
// names no tables.
func (p *QueryPlan) MainObject() string {
	if p == nil || len(p.Tables) == 0 {
		return ""
	}
	return p.Tables[0]
}

// Draft is the Coder's output.
type Draft struct {
	// Text is the raw query draft. Downstream parses and validates it;
	// nothing here is trusted.
	Text string
	// Rationale is the model's explanation, kept for diagnostics.
	Rationale string
}

// Service runs both phases against a completion client.
//
// Thread Safety: Safe for concurrent use after construction.
type Service struct {
	client llm.Client
	logger *slog.Logger
}

// NewService creates the planner service.
func NewService(client llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		logger: logger.With(slog.String("component", "planner")),
	}
}

// -----------------------------------------------------------------------------
// Phase 1: Decomposer
// -----------------------------------------------------------------------------

// Plan produces a QueryPlan for the query.
//
// Description:
//
//	One completion call with the schema context summary and any
//	junction-pattern hints detected in the query text. The model's table
//	list is then post-filtered: a table the schema context cannot confirm
//	is dropped, because an unconfirmed table in the plan poisons every
//	downstream phase.
//
// Outputs:
//
//	*QueryPlan - Never nil on success; Tables contains only confirmed
//	             objects.
func (s *Service) Plan(ctx context.Context, query string, sctx *schema.Context) (*QueryPlan, error) {
	prompt := buildPlanPrompt(query, sctx, junctionHints(query, sctx))
	raw, err := s.client.Complete(ctx, plannerSystemRole, prompt, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("decomposer call failed: %w", err)
	}

	plan, err := parsePlan(raw)
	if err != nil {
		return nil, err
	}

	confirmed := plan.Tables[:0]
	for _, t := range plan.Tables {
		if _, ok := sctx.ObjectByName(t); ok {
			confirmed = append(confirmed, t)
		} else {
			s.logger.Warn("dropping unconfirmed table from plan",
				slog.String("table", t))
		}
	}
	plan.Tables = confirmed
	if len(plan.Tables) == 0 {
		return nil, fmt.Errorf("%w: no planned table exists in the schema context", ErrEmptyPlan)
	}

	s.logger.Debug("plan produced",
		slog.Int("tables", len(plan.Tables)),
		slog.Int("fields", len(plan.TableFields)))
	return plan, nil
}

// parsePlan extracts the JSON plan from model output, tolerating prose
// and markdown fences around the object.
func parsePlan(raw string) (*QueryPlan, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("%w: no JSON object in decomposer output", ErrPlanParse)
	}
	var plan QueryPlan
	if err := json.Unmarshal([]byte(jsonText), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}
	if len(plan.Tables) == 0 {
		return nil, ErrEmptyPlan
	}
	return &plan, nil
}

// extractJSONObject returns the first balanced top-level {...} block.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// junctionPatterns maps linguistic cues to the relationship shape they
// imply. When a cue fires and the context holds a junction object, the
// Decomposer prompt names that object explicitly so the plan includes it.
var junctionPatterns = []string{
	"team", "member of", "members of", "belongs to", "assigned to",
	"part of", "shared with", "collaborat",
}

// junctionHints returns the junction objects the query's phrasing implies.
func junctionHints(query string, sctx *schema.Context) []string {
	lower := strings.ToLower(query)
	cueFired := false
	for _, p := range junctionPatterns {
		if strings.Contains(lower, p) {
			cueFired = true
			break
		}
	}
	if !cueFired || sctx == nil {
		return nil
	}
	var hints []string
	for _, obj := range sctx.Objects {
		if obj.IsJunction() {
			hints = append(hints, obj.APIName)
		}
	}
	return hints
}

// -----------------------------------------------------------------------------
// Phase 2: Coder
// -----------------------------------------------------------------------------

// GenerateDraft produces draft query text from a plan.
//
// Description:
//
//	The Coder sees only a pruned schema (planned tables and their fields),
//	the grounding results, a small worked-example set, and — on
//	regeneration — the accumulated validation feedback. Keeping the
//	schema pruned is deliberate: the model cannot hallucinate a field it
//	was never shown.
//
// Inputs:
//
//	feedback - Validation messages from prior attempts, empty on the
//	           first call.
func (s *Service) GenerateDraft(ctx context.Context, query string, plan *QueryPlan, sctx *schema.Context, grounded []grounding.Result, feedback []string) (*Draft, error) {
	prompt := buildCoderPrompt(query, plan, sctx, grounded, feedback)
	raw, err := s.client.Complete(ctx, coderSystemRole, prompt, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("coder call failed: %w", err)
	}

	text, rationale := splitDraft(raw)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDraft
	}
	return &Draft{Text: text, Rationale: rationale}, nil
}

// splitDraft separates the query text from the rationale. The prompt asks
// for the query inside a fenced block; output without a fence is treated
// as query text wholesale.
func splitDraft(raw string) (text, rationale string) {
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		// Skip an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine != "" && !strings.HasPrefix(strings.ToUpper(firstLine), "SELECT") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
			rationale = strings.TrimSpace(raw[:idx] + rest[end+3:])
			return text, rationale
		}
	}
	return strings.TrimSpace(raw), ""
}
