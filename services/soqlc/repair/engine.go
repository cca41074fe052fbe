// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repair runs the bounded validate/mutate loop over a parsed
// query. Every mutation is deterministic, applied to a clone, and followed
// by a full re-validation; the engine itself performs no I/O, so the
// pipeline can call it synchronously between model invocations.
package repair

import (
	"log/slog"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
	"github.com/AleutianAI/soqlforge/services/soqlc/validate"
)

// ValidateFunc re-validates a candidate AST. Must be pure.
type ValidateFunc func(*soql.Query) []validate.Message

// Outcome is the result of one engine run.
type Outcome struct {
	// Query is the best AST reached. Never nil; never a partially
	// mutated tree.
	Query *soql.Query
	// Messages is the final validation of Query. Unresolved errors are
	// always still present here, never dropped.
	Messages []validate.Message
	State    State
	// Passes is the number of repair passes consumed.
	Passes int
	// Applied describes the actions taken, in order.
	Applied []string
}

// Engine drives repair passes under the pass budget.
//
// Thread Safety: Safe for concurrent use; per-run state lives on the stack.
type Engine struct {
	cfg     config.RepairConfig
	machine *StateMachine
	logger  *slog.Logger
}

// NewEngine creates the engine.
func NewEngine(cfg config.RepairConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		machine: NewStateMachine(),
		logger:  logger.With(slog.String("component", "repair_engine")),
	}
}

// Run validates and repairs the query until it is valid, needs
// regeneration, or the pass budget is spent.
//
// Description:
//
//	Per pass: map every blocking diagnostic to a deterministic action; if
//	any fails to map, stop with NEEDS_REGENERATION. Otherwise apply all
//	actions atomically to a clone and re-validate. A pass that does not
//	reduce the error count twice in a row also forces regeneration, which
//	guarantees termination independently of the budget. When the errors
//	clear, the advisory LIMIT fix is applied before the final validation.
func (e *Engine) Run(q *soql.Query, validateFn ValidateFunc) Outcome {
	out := Outcome{Query: q, State: StateStart}
	out.Messages = validateFn(q)

	stalls := 0
	prevErrors := validate.ErrorCount(out.Messages)

	for {
		if prevErrors == 0 {
			e.applyAdvisories(&out, validateFn)
			out.State = e.transition(out.State, StateValid)
			return out
		}
		if out.Passes >= e.maxPasses() {
			e.logger.Debug("repair pass budget spent",
				slog.Int("passes", out.Passes),
				slog.Int("remaining_errors", prevErrors))
			out.State = e.transition(out.State, StateNeedsRegeneration)
			return out
		}

		actions, allMapped := e.mapActions(out.Messages)
		if !allMapped {
			out.State = e.transition(out.State, StateNeedsRegeneration)
			return out
		}
		out.State = e.transition(out.State, StateRepairable)

		candidate := out.Query.Clone()
		for _, a := range actions {
			a.Apply(candidate)
			out.Applied = append(out.Applied, a.Description)
			e.logger.Debug("repair action applied",
				slog.String("kind", string(a.Kind)),
				slog.String("action", a.Description))
		}
		out.Passes++

		candidateMsgs := validateFn(candidate)
		newErrors := validate.ErrorCount(candidateMsgs)

		if newErrors <= prevErrors {
			out.Query, out.Messages = candidate, candidateMsgs
		}
		if newErrors >= prevErrors {
			stalls++
			if stalls >= 2 {
				out.State = e.transition(out.State, StateNeedsRegeneration)
				return out
			}
		} else {
			stalls = 0
		}
		if newErrors < prevErrors {
			prevErrors = newErrors
		}
	}
}

// Machine exposes the transition table, for the pipeline's terminal
// EXHAUSTED transition.
func (e *Engine) Machine() *StateMachine { return e.machine }

// applyAdvisories applies warning-level fixes with a known action (the
// recommended LIMIT) and refreshes the outcome's messages.
func (e *Engine) applyAdvisories(out *Outcome, validateFn ValidateFunc) {
	for _, msg := range out.Messages {
		action, ok := limitActionFor(msg)
		if !ok {
			continue
		}
		candidate := out.Query.Clone()
		action.Apply(candidate)
		candidateMsgs := validateFn(candidate)
		if validate.ErrorCount(candidateMsgs) > 0 {
			// An advisory fix must never introduce an error.
			continue
		}
		out.Query, out.Messages = candidate, candidateMsgs
		out.Applied = append(out.Applied, action.Description)
	}
}

// mapActions converts blocking diagnostics to actions, deduplicating
// identical fixes.
func (e *Engine) mapActions(msgs []validate.Message) ([]Action, bool) {
	var actions []Action
	seen := make(map[string]bool)
	for _, msg := range validate.Errors(msgs) {
		action, ok := actionFor(msg)
		if !ok {
			e.logger.Debug("no deterministic fix",
				slog.String("rule", msg.Rule),
				slog.String("finding", msg.Text))
			return nil, false
		}
		if seen[action.Description] {
			continue
		}
		seen[action.Description] = true
		actions = append(actions, action)
	}
	return actions, true
}

func (e *Engine) maxPasses() int {
	if e.cfg.MaxPasses <= 0 {
		return 4
	}
	return e.cfg.MaxPasses
}

// transition moves through the table, logging (not panicking) on a
// programming error.
func (e *Engine) transition(from, to State) State {
	next, err := e.machine.Transition(from, to)
	if err != nil {
		e.logger.Error("repair state transition rejected",
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		return to
	}
	return next
}
