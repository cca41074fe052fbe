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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
	"github.com/AleutianAI/soqlforge/services/soqlc/validate"
)

// ActionKind identifies a deterministic repair.
type ActionKind string

const (
	// ActionSwapField replaces a field reference everywhere it appears.
	ActionSwapField ActionKind = "swap_field"
	// ActionSwapObject replaces the main FROM object.
	ActionSwapObject ActionKind = "swap_object"
	// ActionFixParentPath replaces a dotted parent path.
	ActionFixParentPath ActionKind = "fix_parent_path"
	// ActionFixSubquery replaces a subquery relationship or field.
	ActionFixSubquery ActionKind = "fix_subquery"
	// ActionInsertGroupBy appends a field to GROUP BY.
	ActionInsertGroupBy ActionKind = "insert_group_by"
	// ActionApplyLimit sets the recommended LIMIT.
	ActionApplyLimit ActionKind = "apply_limit"
)

// Action is one deterministic AST mutation. Apply works on the query it
// is given; the engine always hands it a clone, never the caller's AST.
type Action struct {
	Kind        ActionKind
	Description string
	Apply       func(q *soql.Query)
}

// actionFor maps a blocking diagnostic to a deterministic action. The
// second return is false when no deterministic fix exists, which forces
// regeneration.
func actionFor(msg validate.Message) (Action, bool) {
	switch msg.Rule {
	case validate.RuleExistence:
		if msg.Suggestion == "" {
			return Action{}, false
		}
		if msg.Field == "" {
			// Object-level finding: either the main object or a semi-join
			// object was misspelled.
			object, suggestion := msg.Object, msg.Suggestion
			return Action{
				Kind:        ActionSwapObject,
				Description: fmt.Sprintf("replace object %q with %q", object, suggestion),
				Apply: func(q *soql.Query) {
					if strings.EqualFold(q.From, object) {
						q.From = suggestion
					}
					q.Where.Walk(func(c *soql.Condition) bool {
						if c.Kind == soql.CondInSubquery && c.Subquery != nil &&
							strings.EqualFold(c.Subquery.From, object) {
							c.Subquery.From = suggestion
						}
						return true
					})
				},
			}, true
		}
		field, suggestion := msg.Field, msg.Suggestion
		return Action{
			Kind:        ActionSwapField,
			Description: fmt.Sprintf("replace field %q with %q", field, suggestion),
			Apply:       func(q *soql.Query) { swapField(q, field, suggestion) },
		}, true

	case validate.RuleRelationship:
		if msg.Suggestion == "" {
			return Action{}, false
		}
		field, suggestion := msg.Field, msg.Suggestion
		if strings.Contains(field, ".") {
			return Action{
				Kind:        ActionFixParentPath,
				Description: fmt.Sprintf("replace path %q with %q", field, suggestion),
				Apply:       func(q *soql.Query) { swapField(q, field, suggestion) },
			}, true
		}
		return Action{
			Kind:        ActionFixSubquery,
			Description: fmt.Sprintf("replace subquery reference %q with %q", field, suggestion),
			Apply: func(q *soql.Query) {
				for _, sub := range q.Subqueries() {
					if strings.EqualFold(sub.From, field) {
						sub.From = suggestion
					}
					swapField(sub, field, suggestion)
				}
				q.Where.Walk(func(c *soql.Condition) bool {
					if c.Kind == soql.CondInSubquery && c.Subquery != nil {
						swapField(c.Subquery, field, suggestion)
					}
					return true
				})
			},
		}, true

	case validate.RuleAggregateGroupBy:
		if msg.Suggestion == "" {
			// Polymorphic-with-aggregate has no mechanical fix.
			return Action{}, false
		}
		field := msg.Suggestion
		return Action{
			Kind:        ActionInsertGroupBy,
			Description: fmt.Sprintf("add %q to GROUP BY", field),
			Apply: func(q *soql.Query) {
				for _, g := range q.GroupBy {
					if strings.EqualFold(g, field) {
						return
					}
				}
				q.GroupBy = append(q.GroupBy, field)
			},
		}, true

	default:
		return Action{}, false
	}
}

// limitActionFor maps the governor warning to its advisory fix. Applied
// opportunistically once errors are cleared; warnings never block.
func limitActionFor(msg validate.Message) (Action, bool) {
	if msg.Rule != validate.RuleGovernorLimit || msg.Suggestion == "" {
		return Action{}, false
	}
	limit, err := strconv.Atoi(msg.Suggestion)
	if err != nil || limit <= 0 {
		return Action{}, false
	}
	return Action{
		Kind:        ActionApplyLimit,
		Description: fmt.Sprintf("set LIMIT %d", limit),
		Apply:       func(q *soql.Query) { q.Limit = limit },
	}, true
}

// swapField replaces a field reference case-insensitively everywhere it
// can appear: select list, function arguments, predicates, GROUP BY and
// ORDER BY.
func swapField(q *soql.Query, from, to string) {
	eq := func(s string) bool { return strings.EqualFold(s, from) }
	for i := range q.Select {
		switch q.Select[i].Kind {
		case soql.SelectField:
			if eq(q.Select[i].Field) {
				q.Select[i].Field = to
			}
		case soql.SelectFunction:
			if eq(q.Select[i].FuncArg) {
				q.Select[i].FuncArg = to
			}
		}
	}
	for _, cond := range []*soql.Condition{q.Where, q.Having} {
		cond.Walk(func(c *soql.Condition) bool {
			if eq(c.Field) {
				c.Field = to
			}
			return true
		})
	}
	for i := range q.GroupBy {
		if eq(q.GroupBy[i]) {
			q.GroupBy[i] = to
			continue
		}
		// Date-bucketing entries carry the field as a call argument.
		if fn, arg, ok := soql.SplitFunctionCall(q.GroupBy[i]); ok && eq(arg) {
			q.GroupBy[i] = fn + "(" + to + ")"
		}
	}
	for i := range q.OrderBy {
		if eq(q.OrderBy[i].Field) {
			q.OrderBy[i].Field = to
		}
	}
}
