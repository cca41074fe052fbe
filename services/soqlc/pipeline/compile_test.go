// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soqlforge/services/soqlc/assembler"
	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/llm"
	"github.com/AleutianAI/soqlforge/services/soqlc/planner"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/scoring"
)

const accountPlanJSON = `{
  "summary": "List accounts",
  "tables": ["Account"],
  "table_fields": ["Account.Id", "Account.Name"],
  "join_rationale": "single object",
  "global_context": ""
}`

func compileGraph() *schema.StaticClient {
	graph := schema.NewStaticClient()
	graph.AddObject("t1", &schema.Object{
		APIName: "Account",
		Label:   "Account",
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "Name"},
			{APIName: "Industry", PicklistValues: []string{"Technology", "Finance"}},
			{APIName: "AnnualRevenue"},
		},
	})
	return graph
}

// newTestCompiler wires a full pipeline over a static graph and a scripted
// model: response one answers the Decomposer, the rest answer the Coder.
func newTestCompiler(t *testing.T, responses ...string) (*Compiler, *llm.MockClient) {
	t.Helper()
	cfg := config.Defaults()
	graph := compileGraph()

	scorer := scoring.NewHybridScorer(graph, nil, nil, cfg.Scoring, nil)
	asm := assembler.NewService(graph, scorer, nil, nil, cfg.Assembler, nil)

	mock := llm.NewMockClient(responses...)
	plan := planner.NewService(mock, nil)

	return NewCompiler(asm, plan, cfg, nil), mock
}

func TestCompileValidQuery(t *testing.T) {
	compiler, mock := newTestCompiler(t,
		accountPlanJSON,
		"```\nSELECT Id, Name FROM Account LIMIT 10\n```")

	result, err := compiler.Compile(context.Background(), "t1", "ten accounts")
	require.NoError(t, err)

	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, "SELECT Id, Name FROM Account LIMIT 10", result.SOQL)
	assert.NotEmpty(t, result.CompilationID)
	assert.Empty(t, result.Diagnostics)
	assert.Zero(t, result.RepairPassesUsed)
	assert.Zero(t, result.RegenerationsUsed)
	assert.Equal(t, "Account", result.Plan.MainObject())
	assert.Equal(t, 2, mock.CallCount())
}

func TestCompileRepairsMisspelledField(t *testing.T) {
	compiler, _ := newTestCompiler(t,
		accountPlanJSON,
		"```\nSELECT Id, Naame FROM Account LIMIT 10\n```")

	result, err := compiler.Compile(context.Background(), "t1", "accounts by name")
	require.NoError(t, err)

	assert.Equal(t, StatusValid, result.Status)
	assert.Contains(t, result.SOQL, "Name")
	assert.NotContains(t, result.SOQL, "Naame")
	assert.Equal(t, 1, result.RepairPassesUsed)
	assert.Zero(t, result.RegenerationsUsed)
}

func TestCompileRegeneratesOnUnmappableError(t *testing.T) {
	// Bind variables cannot be repaired deterministically; the coder must
	// be re-invoked with the validation feedback.
	compiler, mock := newTestCompiler(t,
		accountPlanJSON,
		"```\nSELECT Id FROM Account WHERE Id = :recordId LIMIT 10\n```",
		"```\nSELECT Id FROM Account LIMIT 10\n```")

	result, err := compiler.Compile(context.Background(), "t1", "one account")
	require.NoError(t, err)

	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, "SELECT Id FROM Account LIMIT 10", result.SOQL)
	assert.Equal(t, 1, result.RegenerationsUsed)
	require.Equal(t, 3, mock.CallCount())
	assert.Contains(t, mock.Prompts[2], "failed validation")
}

func TestCompileTolerantExtractionDegrades(t *testing.T) {
	// Missing comma: the draft never parses, but extraction still yields a
	// usable projection. The result must be marked degraded even with zero
	// remaining diagnostics.
	compiler, _ := newTestCompiler(t,
		accountPlanJSON,
		"SELECT Industry AnnualRevenue FROM Account LIMIT 10")

	result, err := compiler.Compile(context.Background(), "t1", "account industries")
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.SOQL, "Industry")
	assert.Contains(t, result.SOQL, "AnnualRevenue")
	assert.Zero(t, result.RegenerationsUsed)
}

func TestCompileExhaustsRegenerationBudget(t *testing.T) {
	// Every draft carries an unrepairable bind variable. After the initial
	// attempt and two regenerations the compiler must stop and surface the
	// outstanding diagnostics instead of dropping them.
	bindDraft := "```\nSELECT Id FROM Account WHERE Id = :uid LIMIT 10\n```"
	compiler, mock := newTestCompiler(t,
		accountPlanJSON,
		bindDraft, bindDraft, bindDraft)

	result, err := compiler.Compile(context.Background(), "t1", "my account")
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, 2, result.RegenerationsUsed)
	assert.NotEmpty(t, result.SOQL)
	assert.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, 4, mock.CallCount())
}

// cancelAfterClient cancels the compilation context as soon as the first
// completion returns, so drafting can never start.
type cancelAfterClient struct {
	inner  llm.Client
	cancel context.CancelFunc
}

func (c *cancelAfterClient) Complete(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	out, err := c.inner.Complete(ctx, system, prompt, params)
	c.cancel()
	return out, err
}

func TestCompileNoDraftCarriesPartialResult(t *testing.T) {
	// Deadline expiry between planning and drafting: no draft is ever
	// produced, yet the caller still gets the plan and the budgets spent
	// alongside ErrNoDraft.
	cfg := config.Defaults()
	graph := compileGraph()
	scorer := scoring.NewHybridScorer(graph, nil, nil, cfg.Scoring, nil)
	asm := assembler.NewService(graph, scorer, nil, nil, cfg.Assembler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := llm.NewMockClient(accountPlanJSON)
	plan := planner.NewService(&cancelAfterClient{inner: mock, cancel: cancel}, nil)
	compiler := NewCompiler(asm, plan, cfg, nil)

	result, err := compiler.Compile(ctx, "t1", "accounts")
	require.ErrorIs(t, err, ErrNoDraft)
	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "Account", result.Plan.MainObject())
	assert.Empty(t, result.SOQL)
	assert.Zero(t, result.RepairPassesUsed)
}

func TestCompileEmptyQuery(t *testing.T) {
	compiler, _ := newTestCompiler(t)

	result, err := compiler.Compile(context.Background(), "t1", "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Nil(t, result)
}

func TestCompileAssemblyFailure(t *testing.T) {
	compiler, _ := newTestCompiler(t, accountPlanJSON)

	_, err := compiler.Compile(context.Background(), "unknown-tenant", "accounts")
	assert.ErrorIs(t, err, ErrContextAssembly)
}
