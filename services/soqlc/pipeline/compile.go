// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates one compilation end to end: context
// assembly, planning, drafting, parsing, validation, and bounded repair.
// The sequence is strictly ordered; only the I/O inside each stage runs
// concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/soqlforge/services/soqlc/assembler"
	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/planner"
	"github.com/AleutianAI/soqlforge/services/soqlc/repair"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
	"github.com/AleutianAI/soqlforge/services/soqlc/validate"
)

// Status is the terminal disposition of a compilation.
type Status string

const (
	// StatusValid means the query passed validation with no errors.
	StatusValid Status = "valid"
	// StatusDegraded means a query was produced but carries unresolved
	// diagnostics, came from the tolerant-extraction fallback, or was cut
	// short by the deadline.
	StatusDegraded Status = "degraded"
	// StatusFailed means no executable query could be produced.
	StatusFailed Status = "failed"
)

// Result is the compilation outcome exposed to callers.
type Result struct {
	CompilationID     string
	SOQL              string
	Plan              *planner.QueryPlan
	Diagnostics       []validate.Message
	Status            Status
	RepairPassesUsed  int
	RegenerationsUsed int
}

// Compiler wires the stages together.
//
// Thread Safety: Safe for concurrent use; per-compilation state is local.
type Compiler struct {
	assembler *assembler.Service
	planner   *planner.Service
	validator *validate.Validator
	engine    *repair.Engine
	cfg       config.SoqlcConfig
	logger    *slog.Logger
}

// NewCompiler creates the compiler from its assembled stages.
func NewCompiler(asm *assembler.Service, plan *planner.Service, cfg config.SoqlcConfig, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		assembler: asm,
		planner:   plan,
		validator: validate.New(cfg.Validate),
		engine:    repair.NewEngine(cfg.Repair, logger),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "compiler")),
	}
}

// Compile turns a natural-language query into a validated SOQL statement.
//
// Description:
//
//	Stages run in strict order: assemble context, plan, draft, parse (with
//	tolerant extraction as fallback), then the repair loop. Regeneration
//	re-invokes the coder with accumulated diagnostics, bounded by the
//	regeneration budget. Past the deadline the best AST reached so far is
//	returned marked degraded; outstanding diagnostics are never dropped.
//
// Outputs:
//
//	*Result - Non-nil whenever any query text could be produced, even
//	          degraded. Alongside ErrNoDraft the result is still non-nil
//	          and carries the plan and the budgets already spent; any
//	          other error returns a nil result.
func (c *Compiler) Compile(ctx context.Context, tenant, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	compilationID := uuid.NewString()
	ctx, span := startCompileSpan(ctx, compilationID, tenant)
	defer span.End()
	start := time.Now()

	result := &Result{CompilationID: compilationID, Status: StatusFailed}
	defer func() {
		recordCompileMetrics(ctx, time.Since(start), result.Status,
			result.RepairPassesUsed, result.RegenerationsUsed)
	}()

	logger := c.logger.With(
		slog.String("compilation_id", compilationID),
		slog.String("tenant", tenant))
	logger.Info("compilation started")

	assembled, err := c.assembler.Assemble(ctx, tenant, query)
	if err != nil {
		logger.Error("context assembly failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrContextAssembly, err)
	}
	sctx := assembled.Context

	plan, err := c.planner.Plan(ctx, query, sctx)
	if err != nil {
		logger.Error("planning failed", slog.String("error", err.Error()))
		return nil, err
	}
	result.Plan = plan

	validateFn := func(q *soql.Query) []validate.Message {
		return c.validator.Validate(q, sctx, assembled.Grounded)
	}

	var (
		best         *repair.Outcome
		bestFallback bool
		feedback     []string
	)
	maxRegens := c.cfg.Repair.MaxRegenerations

	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("deadline reached mid-compilation")
			break
		}

		draft, err := c.planner.GenerateDraft(ctx, query, plan, sctx, assembled.Grounded, feedback)
		if err != nil {
			logger.Error("draft generation failed", slog.String("error", err.Error()))
			if best != nil {
				break
			}
			return nil, err
		}

		ast, usedFallback, err := c.parseDraft(draft.Text, plan, sctx)
		if err != nil {
			logger.Warn("draft unusable", slog.String("error", err.Error()))
			if result.RegenerationsUsed >= maxRegens {
				break
			}
			result.RegenerationsUsed++
			feedback = append(feedback, "previous output could not be parsed as a query: "+err.Error())
			continue
		}

		outcome := c.engine.Run(ast, validateFn)
		result.RepairPassesUsed += outcome.Passes
		if best == nil || validate.ErrorCount(outcome.Messages) < validate.ErrorCount(best.Messages) {
			best, bestFallback = &outcome, usedFallback
		}

		if outcome.State == repair.StateValid {
			break
		}
		// NEEDS_REGENERATION: spend the regeneration budget if any remains.
		if result.RegenerationsUsed >= maxRegens {
			break
		}
		result.RegenerationsUsed++
		feedback = validate.Texts(validate.Errors(outcome.Messages))
		logger.Info("regenerating draft",
			slog.Int("attempt", result.RegenerationsUsed),
			slog.Int("outstanding_errors", validate.ErrorCount(outcome.Messages)))
	}

	if best == nil {
		logger.Error("compilation produced no usable query")
		return result, ErrNoDraft
	}

	result.SOQL = soql.Render(best.Query)
	result.Diagnostics = best.Messages
	switch {
	case best.State == repair.StateValid && !bestFallback:
		result.Status = StatusValid
	case validate.ErrorCount(best.Messages) == 0:
		result.Status = StatusDegraded
	default:
		// Budgets spent with errors remaining: EXHAUSTED terminal state.
		if next, err := c.engine.Machine().Transition(best.State, repair.StateExhausted); err == nil {
			best.State = next
		}
		result.Status = StatusDegraded
	}

	logger.Info("compilation finished",
		slog.String("status", string(result.Status)),
		slog.Int("repair_passes", result.RepairPassesUsed),
		slog.Int("regenerations", result.RegenerationsUsed),
		slog.Int("diagnostics", len(result.Diagnostics)))
	return result, nil
}

// parseDraft parses draft text, falling back to schema-aware token
// extraction so even unparseable output yields a minimally viable query.
func (c *Compiler) parseDraft(text string, plan *planner.QueryPlan, sctx *schema.Context) (*soql.Query, bool, error) {
	ast, err := soql.Parse(text)
	if err == nil {
		return ast, false, nil
	}
	c.logger.Debug("primary parse failed, attempting tolerant extraction",
		slog.String("error", err.Error()))

	ast, exErr := soql.Extract(text, sctx.FieldsOf)
	if exErr != nil {
		if errors.Is(exErr, soql.ErrNoMainObject) && plan.MainObject() != "" {
			// The draft never stated FROM; trust the plan's main object.
			seeded := "SELECT Id FROM " + plan.MainObject() + "\n" + text
			if ast, seedErr := soql.Extract(seeded, sctx.FieldsOf); seedErr == nil {
				return ast, true, nil
			}
		}
		return nil, false, fmt.Errorf("parse failed (%v); extraction failed (%v)", err, exErr)
	}
	return ast, true, nil
}
