// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soqlforge/services/soqlc/llm"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

func planContext() *schema.Context {
	sctx := &schema.Context{
		Objects: []*schema.Object{
			{
				APIName: "Account",
				Label:   "Account",
				Fields:  []schema.Field{{APIName: "Id"}, {APIName: "Name"}},
			},
			{
				APIName: "Opportunity",
				Label:   "Opportunity",
				Fields: []schema.Field{
					{APIName: "Id"},
					{APIName: "Amount"},
					{APIName: "StageName", PicklistValues: []string{"Prospecting", "Closed Won"}},
				},
			},
			{
				APIName:  "AccountTeamMember",
				Label:    "Account Team Member",
				Category: schema.CategoryJunction,
				Fields:   []schema.Field{{APIName: "AccountId"}, {APIName: "UserId"}},
			},
		},
	}
	sctx.ComputeStats()
	return sctx
}

const planJSON = `{
  "summary": "Total opportunity amount by stage",
  "tables": ["Opportunity"],
  "table_fields": ["Opportunity.Amount", "Opportunity.StageName"],
  "join_rationale": "single object",
  "global_context": ""
}`

func TestPlanParsesFencedJSON(t *testing.T) {
	mock := llm.NewMockClient("Here is the plan:\n```json\n" + planJSON + "\n```\nDone.")
	svc := NewService(mock, nil)

	plan, err := svc.Plan(context.Background(), "total opportunity amount by stage", planContext())
	require.NoError(t, err)

	assert.Equal(t, "Opportunity", plan.MainObject())
	assert.Equal(t, []string{"Opportunity.Amount", "Opportunity.StageName"}, plan.TableFields)
	assert.Equal(t, 1, mock.CallCount())
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "total opportunity amount by stage")
}

func TestPlanDropsUnconfirmedTables(t *testing.T) {
	raw := `{"summary":"s","tables":["Opportunity","LegacyDeal__c"],"table_fields":[],"join_rationale":"","global_context":""}`
	mock := llm.NewMockClient(raw)
	svc := NewService(mock, nil)

	plan, err := svc.Plan(context.Background(), "opportunities", planContext())
	require.NoError(t, err)
	assert.Equal(t, []string{"Opportunity"}, plan.Tables)
}

func TestPlanAllTablesUnconfirmed(t *testing.T) {
	raw := `{"summary":"s","tables":["LegacyDeal__c"],"table_fields":[],"join_rationale":"","global_context":""}`
	mock := llm.NewMockClient(raw)
	svc := NewService(mock, nil)

	_, err := svc.Plan(context.Background(), "legacy deals", planContext())
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestPlanRejectsNonJSONOutput(t *testing.T) {
	mock := llm.NewMockClient("I cannot produce a plan for that.")
	svc := NewService(mock, nil)

	_, err := svc.Plan(context.Background(), "anything", planContext())
	assert.ErrorIs(t, err, ErrPlanParse)
}

func TestJunctionHints(t *testing.T) {
	sctx := planContext()

	hints := junctionHints("accounts my team works on", sctx)
	assert.Equal(t, []string{"AccountTeamMember"}, hints)

	assert.Empty(t, junctionHints("top accounts by revenue", sctx))
	assert.Empty(t, junctionHints("accounts my team works on", nil))
}

func TestPlanPromptNamesJunctionObjects(t *testing.T) {
	mock := llm.NewMockClient(planJSON)
	svc := NewService(mock, nil)

	_, err := svc.Plan(context.Background(), "opportunities shared with my team", planContext())
	require.NoError(t, err)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "AccountTeamMember")
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`prose {"a":1} trailing`))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSONObject(`{"a":{"b":2}}`))
	assert.Equal(t, `{"a":"br}ace"}`, extractJSONObject(`{"a":"br}ace"}`), "braces inside strings must not close the object")
	assert.Empty(t, extractJSONObject("no json here"))
	assert.Empty(t, extractJSONObject(`{"unterminated":`))
}

func TestGenerateDraftFencedBlock(t *testing.T) {
	mock := llm.NewMockClient("I used a simple filter.\n```sql\nSELECT Id, Name\nFROM Account\nLIMIT 10\n```")
	svc := NewService(mock, nil)

	plan := &QueryPlan{Tables: []string{"Account"}}
	draft, err := svc.GenerateDraft(context.Background(), "ten accounts", plan, planContext(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "SELECT Id, Name\nFROM Account\nLIMIT 10", draft.Text)
	assert.Contains(t, draft.Rationale, "simple filter")
}

func TestGenerateDraftWithoutFence(t *testing.T) {
	mock := llm.NewMockClient("SELECT Id FROM Account")
	svc := NewService(mock, nil)

	plan := &QueryPlan{Tables: []string{"Account"}}
	draft, err := svc.GenerateDraft(context.Background(), "accounts", plan, planContext(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id FROM Account", draft.Text)
	assert.Empty(t, draft.Rationale)
}

func TestGenerateDraftEmptyOutput(t *testing.T) {
	mock := llm.NewMockClient("   \n")
	svc := NewService(mock, nil)

	plan := &QueryPlan{Tables: []string{"Account"}}
	_, err := svc.GenerateDraft(context.Background(), "accounts", plan, planContext(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyDraft)
}

func TestGenerateDraftCarriesFeedback(t *testing.T) {
	mock := llm.NewMockClient("```\nSELECT Id FROM Account\n```")
	svc := NewService(mock, nil)

	plan := &QueryPlan{Tables: []string{"Account"}}
	feedback := []string{`field "Naame" does not exist on Account`}
	_, err := svc.GenerateDraft(context.Background(), "accounts", plan, planContext(), nil, feedback)
	require.NoError(t, err)

	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], `field "Naame" does not exist on Account`)
}

func TestSplitDraft(t *testing.T) {
	text, rationale := splitDraft("```\nSELECT Id FROM Account\n```")
	assert.Equal(t, "SELECT Id FROM Account", text)
	assert.Empty(t, rationale)

	// A fence opened directly with SELECT (no language tag, no newline
	// before the query).
	text, _ = splitDraft("```SELECT Id FROM Account\n```")
	assert.Equal(t, "SELECT Id FROM Account", text)
}
