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
	"fmt"
	"strings"

	"github.com/AleutianAI/soqlforge/services/soqlc/grounding"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
)

const plannerSystemRole = `You are a query planner for a Salesforce-style data model.
Given a user request and the available schema, decide which objects and fields are needed.
Respond with a single JSON object and nothing else:
{"summary": "...", "tables": ["MainObject", ...], "table_fields": ["Object.Field", ...], "join_rationale": "...", "global_context": "..."}
Rules:
- tables[0] must be the main object the query runs FROM.
- Only name objects and fields that appear in the provided schema.
- Junction objects are reached with IN (SELECT ... ) semi-joins, never dot navigation.`

const coderSystemRole = `You write SOQL queries for a Salesforce-style data model.
Follow the plan and use only the schema provided. SOQL has no JOIN, no UNION, no AS aliasing, and no bind variables.
Child records are selected with a nested (SELECT ... FROM RelationshipName) subquery, one level deep.
Respond with the query inside a fenced code block, then a one-paragraph rationale.`

// buildPlanPrompt renders the Decomposer input.
func buildPlanPrompt(query string, sctx *schema.Context, junctions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n\n", query)

	b.WriteString("Available schema:\n")
	if sctx != nil {
		for _, obj := range sctx.Objects {
			fmt.Fprintf(&b, "- %s (%s)", obj.APIName, obj.Label)
			if obj.IsJunction() {
				b.WriteString(" [junction]")
			}
			b.WriteString(": ")
			b.WriteString(strings.Join(obj.FieldNames(), ", "))
			b.WriteString("\n")
		}
	}

	if len(junctions) > 0 {
		fmt.Fprintf(&b, "\nThe request's phrasing implies membership/association; consider these junction objects: %s\n",
			strings.Join(junctions, ", "))
	}
	return b.String()
}

// buildCoderPrompt renders the Coder input: pruned schema, grounding
// hints, worked examples, and any accumulated validation feedback.
func buildCoderPrompt(query string, plan *QueryPlan, sctx *schema.Context, grounded []grounding.Result, feedback []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n\n", query)
	fmt.Fprintf(&b, "Plan summary: %s\n", plan.Summary)
	if plan.JoinRationale != "" {
		fmt.Fprintf(&b, "Join rationale: %s\n", plan.JoinRationale)
	}
	if plan.GlobalContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", plan.GlobalContext)
	}

	b.WriteString("\nSchema (only these objects and fields exist):\n")
	for _, table := range plan.Tables {
		obj, ok := sctx.ObjectByName(table)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s:\n", obj.APIName)
		for _, f := range obj.Fields {
			fmt.Fprintf(&b, "    %s (%s)", f.APIName, f.Type)
			if len(f.PicklistValues) > 0 {
				fmt.Fprintf(&b, " values: %s", strings.Join(f.PicklistValues, " | "))
			}
			if len(f.ReferenceTo) > 0 {
				fmt.Fprintf(&b, " -> %s", strings.Join(f.ReferenceTo, ", "))
			}
			b.WriteString("\n")
		}
		for _, r := range obj.ChildRelationships {
			fmt.Fprintf(&b, "    child relationship %s -> %s (via %s)\n",
				r.RelationshipName, r.ChildObject, r.FieldOnChild)
		}
	}

	if hints := groundingHints(grounded); hints != "" {
		b.WriteString("\nVerified filter values (use these exact strings):\n")
		b.WriteString(hints)
	}

	b.WriteString("\nWorked examples:\n")
	b.WriteString(workedExamples)

	if len(feedback) > 0 {
		b.WriteString("\nYour previous attempt failed validation. Fix every issue below:\n")
		for _, f := range feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

// groundingHints renders grounded results for the Coder; ungrounded terms
// are called out so the model does not invent a value for them.
func groundingHints(grounded []grounding.Result) string {
	var b strings.Builder
	for _, g := range grounded {
		if g.Grounded {
			fmt.Fprintf(&b, "- %q resolved to %q", g.Candidate, g.Resolved)
			if g.ObjectType != "" {
				fmt.Fprintf(&b, " (%s)", g.ObjectType)
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "- %q could not be verified; do not guess a filter value for it\n", g.Candidate)
		}
	}
	return b.String()
}

const workedExamples = `Request: accounts in the technology industry
` + "```" + `
SELECT Id, Name FROM Account WHERE Industry = 'Technology' LIMIT 200
` + "```" + `
Request: opportunities with their line items
` + "```" + `
SELECT Id, Name, (SELECT Id, Quantity FROM OpportunityLineItems) FROM Opportunity LIMIT 200
` + "```" + `
Request: accounts my team members work on
` + "```" + `
SELECT Id, Name FROM Account WHERE Id IN (SELECT AccountId FROM AccountTeamMember WHERE UserId = '005000000000001') LIMIT 200
` + "```" + `
Request: total won amount per stage
` + "```" + `
SELECT StageName, SUM(Amount) FROM Opportunity WHERE IsClosed = true GROUP BY StageName
` + "```" + `
`
