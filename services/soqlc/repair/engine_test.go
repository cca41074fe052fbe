// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
	"github.com/AleutianAI/soqlforge/services/soqlc/validate"
)

func testEngine() *Engine {
	return NewEngine(config.RepairConfig{MaxPasses: 4}, nil)
}

func accountValidator() ValidateFunc {
	sctx := &schema.Context{
		Objects: []*schema.Object{
			{
				APIName:  "Account",
				Label:    "Account",
				Category: schema.CategoryStandard,
				Fields: []schema.Field{
					{APIName: "Id"},
					{APIName: "Name"},
					{APIName: "Industry", PicklistValues: []string{"Technology", "Finance"}},
					{APIName: "CreatedDate", Type: "datetime"},
				},
			},
		},
	}
	sctx.ComputeStats()
	v := validate.New(config.ValidateConfig{
		MaxLimit:              2000,
		SuggestedLimit:        200,
		SuggestionMaxDistance: 2,
	})
	return func(q *soql.Query) []validate.Message {
		return v.Validate(q, sctx, nil)
	}
}

func parse(t *testing.T, text string) *soql.Query {
	t.Helper()
	q, err := soql.Parse(text)
	require.NoError(t, err)
	return q
}

func TestRunCleanQueryIsValid(t *testing.T) {
	out := testEngine().Run(parse(t, "SELECT Id, Name FROM Account LIMIT 10"), accountValidator())

	assert.Equal(t, StateValid, out.State)
	assert.Zero(t, out.Passes)
	assert.Empty(t, out.Applied)
	assert.Zero(t, validate.ErrorCount(out.Messages))
}

func TestRunAppliesAdvisoryLimit(t *testing.T) {
	out := testEngine().Run(parse(t, "SELECT Id FROM Account"), accountValidator())

	assert.Equal(t, StateValid, out.State)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, `set LIMIT 200`, out.Applied[0])
	assert.Contains(t, soql.Render(out.Query), "LIMIT 200")
	assert.Empty(t, out.Messages, "the advisory warning must clear after the fix")
}

func TestRunSwapFieldConverges(t *testing.T) {
	original := parse(t, "SELECT Id, Naame FROM Account LIMIT 10")
	out := testEngine().Run(original, accountValidator())

	assert.Equal(t, StateValid, out.State)
	assert.Equal(t, 1, out.Passes)
	require.NotEmpty(t, out.Applied)
	assert.Contains(t, out.Applied[0], `"Naame"`)
	assert.Contains(t, soql.Render(out.Query), "Name")
	assert.Zero(t, validate.ErrorCount(out.Messages))

	// The caller's AST is never mutated in place.
	assert.Equal(t, "Naame", original.Select[1].Field)
}

func TestRunInsertsGroupBy(t *testing.T) {
	out := testEngine().Run(parse(t, "SELECT Industry, COUNT(Id) FROM Account"), accountValidator())

	assert.Equal(t, StateValid, out.State)
	rendered := soql.Render(out.Query)
	assert.Contains(t, rendered, "GROUP BY Industry")
	assert.Contains(t, rendered, "LIMIT 200", "the advisory limit applies once errors clear")
	assert.Empty(t, out.Messages)
}

func TestRunRepairsDateBucketArgument(t *testing.T) {
	// The misspelled field appears both as a call argument in SELECT and
	// inside the textual GROUP BY entry; one swap must fix both.
	out := testEngine().Run(
		parse(t, "SELECT CALENDAR_YEAR(CreatedDat), COUNT(Id) FROM Account GROUP BY CALENDAR_YEAR(CreatedDat) LIMIT 10"),
		accountValidator())

	assert.Equal(t, StateValid, out.State)
	assert.Equal(t, 1, out.Passes)
	rendered := soql.Render(out.Query)
	assert.Contains(t, rendered, "CALENDAR_YEAR(CreatedDate)")
	assert.Contains(t, rendered, "GROUP BY CALENDAR_YEAR(CreatedDate)")
	assert.Zero(t, validate.ErrorCount(out.Messages))
}

func TestRunUnmappableErrorForcesRegeneration(t *testing.T) {
	// Bind variables have no deterministic fix.
	out := testEngine().Run(parse(t, "SELECT Id FROM Account WHERE Id = :recordId LIMIT 10"), accountValidator())

	assert.Equal(t, StateNeedsRegeneration, out.State)
	assert.Zero(t, out.Passes, "no pass may run when mapping fails")
	assert.NotZero(t, validate.ErrorCount(out.Messages), "unresolved errors must survive in the outcome")
}

func TestRunStallDetectionTerminates(t *testing.T) {
	// A validator that always reports the same mappable error can never
	// converge; the stall counter must stop the loop before the budget.
	stuck := func(q *soql.Query) []validate.Message {
		return []validate.Message{{
			Severity:   validate.SeverityError,
			Rule:       validate.RuleExistence,
			Object:     "Account",
			Field:      "Ghost",
			Suggestion: "Name",
			Text:       "field does not exist",
		}}
	}

	out := testEngine().Run(parse(t, "SELECT Id FROM Account LIMIT 10"), stuck)

	assert.Equal(t, StateNeedsRegeneration, out.State)
	assert.Equal(t, 2, out.Passes)
	assert.LessOrEqual(t, out.Passes, 4)
}

func TestRunOutcomeRevalidationIsStable(t *testing.T) {
	validateFn := accountValidator()
	out := testEngine().Run(parse(t, "SELECT Id, Naame FROM Account LIMIT 10"), validateFn)

	require.Equal(t, StateValid, out.State)
	assert.Equal(t, out.Messages, validateFn(out.Query))
}

func TestStateMachineTable(t *testing.T) {
	sm := NewStateMachine()

	assert.True(t, sm.CanTransition(StateStart, StateValid))
	assert.True(t, sm.CanTransition(StateStart, StateRepairable))
	assert.True(t, sm.CanTransition(StateRepairable, StateExhausted))
	assert.True(t, sm.CanTransition(StateNeedsRegeneration, StateRepairable))

	assert.False(t, sm.CanTransition(StateValid, StateRepairable), "VALID is terminal")
	assert.False(t, sm.CanTransition(StateExhausted, StateValid), "EXHAUSTED is terminal")
	assert.False(t, sm.CanTransition(StateStart, StateExhausted))

	_, err := sm.Transition(StateValid, StateStart)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	next, err := sm.Transition(StateStart, StateRepairable)
	require.NoError(t, err)
	assert.Equal(t, StateRepairable, next)
}

func TestStateTerminality(t *testing.T) {
	assert.True(t, StateValid.IsTerminal())
	assert.True(t, StateExhausted.IsTerminal())
	assert.False(t, StateStart.IsTerminal())
	assert.False(t, StateRepairable.IsTerminal())
	assert.False(t, StateNeedsRegeneration.IsTerminal())
}
