// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks a parsed query against the schema context with a
// fixed ordered rule set. The validator is pure: given the same AST,
// context, and grounding results it always yields the same messages, and
// it performs no I/O. That purity is what lets the repair loop call it
// repeatedly without synchronization.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/grounding"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
)

// Validator evaluates the rule set.
//
// Thread Safety: Safe for concurrent use; the validator holds only
// configuration.
type Validator struct {
	cfg config.ValidateConfig
}

// New creates a validator.
func New(cfg config.ValidateConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs every rule in order and returns the accumulated messages.
//
// Inputs:
//
//	q - The parsed query. Never mutated.
//	sctx - The schema context the query must resolve against.
//	grounded - Grounding results for the compilation; verified values
//	           exempt matching literals from the sanity rule.
func (v *Validator) Validate(q *soql.Query, sctx *schema.Context, grounded []grounding.Result) []Message {
	var msgs []Message
	main, mainOK := sctx.ObjectByName(q.From)

	msgs = append(msgs, v.ruleFromObject(q, sctx)...)
	if mainOK {
		msgs = append(msgs, v.ruleAggregateGroupBy(q, main)...)
		msgs = append(msgs, v.ruleRelationships(q, main, sctx)...)
		msgs = append(msgs, v.ruleJunctionSemiJoin(q, main, sctx)...)
		msgs = append(msgs, v.ruleExistence(q, main)...)
		msgs = append(msgs, v.ruleLiteralSanity(q, main, sctx, grounded)...)
	}
	msgs = append(msgs, v.rulePlatformSyntax(q)...)
	msgs = append(msgs, v.ruleGovernorLimit(q)...)
	return msgs
}

// -----------------------------------------------------------------------------
// FROM object
// -----------------------------------------------------------------------------

func (v *Validator) ruleFromObject(q *soql.Query, sctx *schema.Context) []Message {
	if q.From == "" {
		return []Message{{
			Severity: SeverityError,
			Rule:     RuleExistence,
			Text:     "query has no FROM object",
		}}
	}
	if _, ok := sctx.ObjectByName(q.From); ok {
		return nil
	}
	msg := Message{
		Severity: SeverityError,
		Rule:     RuleExistence,
		Object:   q.From,
		Text:     fmt.Sprintf("object %q does not exist in the schema", q.From),
	}
	if best := closestName(q.From, sctx.ObjectNames(), v.cfg.SuggestionMaxDistance); best != "" {
		msg.Suggestion = best
		msg.Text += fmt.Sprintf("; did you mean %q", best)
	}
	return []Message{msg}
}

// -----------------------------------------------------------------------------
// Aggregate / GROUP BY coverage
// -----------------------------------------------------------------------------

func (v *Validator) ruleAggregateGroupBy(q *soql.Query, main *schema.Object) []Message {
	if !q.HasAggregate() {
		return nil
	}

	grouped := make(map[string]bool, len(q.GroupBy))
	for _, g := range q.GroupBy {
		grouped[strings.ToLower(g)] = true
	}

	var msgs []Message
	for _, item := range q.Select {
		switch item.Kind {
		case soql.SelectField:
			if f, ok := main.FieldByName(item.Field); ok && f.IsPolymorphic() {
				msgs = append(msgs, Message{
					Severity: SeverityError,
					Rule:     RuleAggregateGroupBy,
					Object:   main.APIName,
					Field:    item.Field,
					Text:     fmt.Sprintf("polymorphic field %q cannot be used in an aggregate query", item.Field),
				})
				continue
			}
			if !grouped[item.Signature()] {
				msgs = append(msgs, Message{
					Severity:   SeverityError,
					Rule:       RuleAggregateGroupBy,
					Object:     main.APIName,
					Field:      item.Field,
					Suggestion: item.Field,
					Text:       fmt.Sprintf("field %q must appear in GROUP BY when aggregates are present", item.Field),
				})
			}
		case soql.SelectFunction:
			if item.IsAggregate() {
				continue
			}
			// Scalar calls (date bucketing) must be grouped by the same
			// expression, argument included.
			if !grouped[item.Signature()] {
				call := item.Func + "(" + item.FuncArg + ")"
				msgs = append(msgs, Message{
					Severity:   SeverityError,
					Rule:       RuleAggregateGroupBy,
					Object:     main.APIName,
					Field:      item.FuncArg,
					Suggestion: call,
					Text:       fmt.Sprintf("expression %q must appear in GROUP BY when aggregates are present", call),
				})
			}
		case soql.SelectTypeOf:
			msgs = append(msgs, Message{
				Severity: SeverityError,
				Rule:     RuleAggregateGroupBy,
				Object:   main.APIName,
				Field:    item.TypeOf.Field,
				Text:     fmt.Sprintf("polymorphic TYPEOF on %q cannot be combined with aggregates", item.TypeOf.Field),
			})
		}
	}
	return msgs
}

// -----------------------------------------------------------------------------
// Relationship validity
// -----------------------------------------------------------------------------

func (v *Validator) ruleRelationships(q *soql.Query, main *schema.Object, sctx *schema.Context) []Message {
	var msgs []Message

	check := func(path string) {
		if !strings.Contains(path, ".") {
			return
		}
		if msg, bad := v.checkParentPath(path, main, sctx); bad {
			msgs = append(msgs, msg)
		}
	}
	for _, item := range q.Select {
		switch item.Kind {
		case soql.SelectField:
			check(item.Field)
		case soql.SelectFunction:
			check(item.FuncArg)
		}
	}
	q.Where.Walk(func(c *soql.Condition) bool {
		if c.Field != "" {
			check(c.Field)
		}
		return true
	})
	for _, o := range q.OrderBy {
		check(o.Field)
	}
	for _, g := range q.GroupBy {
		check(groupByField(g))
	}

	// Child subqueries must name a relationship that exists on the main
	// object, and their fields must exist on the child object.
	for _, sub := range q.Subqueries() {
		rel, ok := main.ChildRelationshipByName(sub.From)
		if !ok {
			msg := Message{
				Severity: SeverityError,
				Rule:     RuleRelationship,
				Object:   main.APIName,
				Field:    sub.From,
				Text:     fmt.Sprintf("%q is not a child relationship of %s", sub.From, main.APIName),
			}
			var relNames []string
			for _, r := range main.ChildRelationships {
				relNames = append(relNames, r.RelationshipName)
			}
			if best := closestName(sub.From, relNames, v.cfg.SuggestionMaxDistance); best != "" {
				msg.Suggestion = best
				msg.Text += fmt.Sprintf("; did you mean %q", best)
			}
			msgs = append(msgs, msg)
			continue
		}
		if child, ok := sctx.ObjectByName(rel.ChildObject); ok {
			msgs = append(msgs, v.checkSubqueryFields(sub, child)...)
		}
	}

	// Semi-join subqueries select from a real object by API name; verify
	// the object and its referenced fields.
	q.Where.Walk(func(c *soql.Condition) bool {
		if c.Kind != soql.CondInSubquery || c.Subquery == nil {
			return true
		}
		inner, ok := sctx.ObjectByName(c.Subquery.From)
		if !ok {
			msg := Message{
				Severity: SeverityError,
				Rule:     RuleExistence,
				Object:   c.Subquery.From,
				Text:     fmt.Sprintf("semi-join object %q does not exist in the schema", c.Subquery.From),
			}
			if best := closestName(c.Subquery.From, sctx.ObjectNames(), v.cfg.SuggestionMaxDistance); best != "" {
				msg.Suggestion = best
				msg.Text += fmt.Sprintf("; did you mean %q", best)
			}
			msgs = append(msgs, msg)
			return true
		}
		msgs = append(msgs, v.checkSubqueryFields(c.Subquery, inner)...)
		return true
	})
	return msgs
}

// checkParentPath walks a dotted parent-lookup path segment by segment.
func (v *Validator) checkParentPath(path string, main *schema.Object, sctx *schema.Context) (Message, bool) {
	segments := strings.Split(path, ".")
	current := main
	for i := 0; i < len(segments)-1; i++ {
		f, ok := current.FieldByRelationshipName(segments[i])
		if !ok || !f.IsReference() {
			return Message{
				Severity: SeverityError,
				Rule:     RuleRelationship,
				Object:   current.APIName,
				Field:    path,
				Text:     fmt.Sprintf("path %q: %q is not a parent relationship of %s", path, segments[i], current.APIName),
			}, true
		}
		if f.IsPolymorphic() {
			// Traversal past a polymorphic lookup needs a TYPEOF branch;
			// flag the plain path.
			return Message{
				Severity: SeverityError,
				Rule:     RuleRelationship,
				Object:   current.APIName,
				Field:    path,
				Text:     fmt.Sprintf("path %q traverses polymorphic lookup %q; use a TYPEOF clause", path, segments[i]),
			}, true
		}
		target, ok := sctx.ObjectByName(f.ReferenceTo[0])
		if !ok {
			// Target object outside the context: cannot verify further.
			return Message{}, false
		}
		current = target
	}
	terminal := segments[len(segments)-1]
	if _, ok := current.FieldByName(terminal); !ok {
		msg := Message{
			Severity: SeverityError,
			Rule:     RuleRelationship,
			Object:   current.APIName,
			Field:    path,
			Text:     fmt.Sprintf("path %q: field %q does not exist on %s", path, terminal, current.APIName),
		}
		if best := closestName(terminal, current.FieldNames(), v.cfg.SuggestionMaxDistance); best != "" {
			prefix := strings.Join(segments[:len(segments)-1], ".")
			msg.Suggestion = prefix + "." + best
			msg.Text += fmt.Sprintf("; did you mean %q", best)
		}
		return msg, true
	}
	return Message{}, false
}

func (v *Validator) checkSubqueryFields(sub *soql.Query, child *schema.Object) []Message {
	var msgs []Message
	for _, item := range sub.Select {
		if item.Kind != soql.SelectField || strings.Contains(item.Field, ".") {
			continue
		}
		if _, ok := child.FieldByName(item.Field); !ok {
			msg := Message{
				Severity: SeverityError,
				Rule:     RuleRelationship,
				Object:   child.APIName,
				Field:    item.Field,
				Text:     fmt.Sprintf("subquery field %q does not exist on %s", item.Field, child.APIName),
			}
			if best := closestName(item.Field, child.FieldNames(), v.cfg.SuggestionMaxDistance); best != "" {
				msg.Suggestion = best
				msg.Text += fmt.Sprintf("; did you mean %q", best)
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// -----------------------------------------------------------------------------
// Junction semi-join shape
// -----------------------------------------------------------------------------

func (v *Validator) ruleJunctionSemiJoin(q *soql.Query, main *schema.Object, sctx *schema.Context) []Message {
	junctions := make(map[string]string) // lower name -> APIName
	for _, obj := range sctx.Objects {
		if obj.IsJunction() {
			junctions[strings.ToLower(obj.APIName)] = obj.APIName
		}
	}
	if len(junctions) == 0 {
		return nil
	}

	var msgs []Message
	flag := func(path string) {
		first, _, found := strings.Cut(path, ".")
		if !found {
			return
		}
		if apiName, ok := junctions[strings.ToLower(first)]; ok {
			msgs = append(msgs, Message{
				Severity: SeverityError,
				Rule:     RuleJunctionSemiJoin,
				Object:   apiName,
				Field:    path,
				Text: fmt.Sprintf("junction object %s must be reached with IN (SELECT ... FROM %s ...), not dot navigation in %q",
					apiName, apiName, path),
			})
		}
	}
	for _, item := range q.Select {
		if item.Kind == soql.SelectField {
			flag(item.Field)
		}
	}
	q.Where.Walk(func(c *soql.Condition) bool {
		if c.Field != "" {
			flag(c.Field)
		}
		return true
	})
	return msgs
}

// -----------------------------------------------------------------------------
// Existence
// -----------------------------------------------------------------------------

func (v *Validator) ruleExistence(q *soql.Query, main *schema.Object) []Message {
	var msgs []Message
	seen := make(map[string]bool)

	check := func(field string) {
		if field == "" || strings.Contains(field, ".") {
			return
		}
		key := strings.ToLower(field)
		if seen[key] {
			return
		}
		seen[key] = true
		if _, ok := main.FieldByName(field); ok {
			return
		}
		msg := Message{
			Severity: SeverityError,
			Rule:     RuleExistence,
			Object:   main.APIName,
			Field:    field,
			Text:     fmt.Sprintf("field %q does not exist on %s", field, main.APIName),
		}
		if best := closestName(field, main.FieldNames(), v.cfg.SuggestionMaxDistance); best != "" {
			msg.Suggestion = best
			msg.Text += fmt.Sprintf("; did you mean %q", best)
		}
		msgs = append(msgs, msg)
	}

	for _, item := range q.Select {
		switch item.Kind {
		case soql.SelectField:
			check(item.Field)
		case soql.SelectFunction:
			check(item.FuncArg)
		case soql.SelectTypeOf:
			check(item.TypeOf.Field)
		}
	}
	q.Where.Walk(func(c *soql.Condition) bool {
		if c.Field != "" {
			check(c.Field)
		}
		return true
	})
	for _, g := range q.GroupBy {
		check(groupByField(g))
	}
	for _, o := range q.OrderBy {
		check(o.Field)
	}
	return msgs
}

// groupByField resolves a GROUP BY entry to the field it references: the
// argument for date-bucketing calls, the entry itself otherwise.
func groupByField(entry string) string {
	if fn, arg, ok := soql.SplitFunctionCall(entry); ok && soql.IsScalarFunction(fn) {
		return arg
	}
	return entry
}

// -----------------------------------------------------------------------------
// Literal sanity
// -----------------------------------------------------------------------------

var identifierLikeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (v *Validator) ruleLiteralSanity(q *soql.Query, main *schema.Object, sctx *schema.Context, grounded []grounding.Result) []Message {
	verified := make(map[string]bool)
	for _, g := range grounded {
		if g.Grounded {
			verified[strings.ToLower(g.Resolved)] = true
		}
	}

	var msgs []Message
	q.Where.Walk(func(c *soql.Condition) bool {
		switch c.Kind {
		case soql.CondCompare:
			if m, bad := v.checkLiteral(c.Field, c.Value, main, sctx, verified); bad {
				msgs = append(msgs, m)
			}
		case soql.CondIn:
			for _, lit := range c.Values {
				if m, bad := v.checkLiteral(c.Field, lit, main, sctx, verified); bad {
					msgs = append(msgs, m)
				}
			}
		}
		return true
	})
	return msgs
}

func (v *Validator) checkLiteral(field string, lit soql.Literal, main *schema.Object, sctx *schema.Context, verified map[string]bool) (Message, bool) {
	if lit.Kind != soql.LitToken && lit.Kind != soql.LitString {
		return Message{}, false
	}
	raw := lit.Raw
	lower := strings.ToLower(raw)
	if verified[lower] {
		return Message{}, false
	}

	// Picklist fields get strict value checking.
	if values, ok := picklistFor(field, main, sctx); ok {
		for _, val := range values {
			if strings.EqualFold(val, raw) {
				return Message{}, false
			}
		}
		return Message{
			Severity: SeverityWarning,
			Rule:     RuleLiteralSanity,
			Object:   main.APIName,
			Field:    field,
			Text:     fmt.Sprintf("%q is not a known value of %s.%s", raw, main.APIName, field),
		}, true
	}

	// Bare identifier-shaped tokens outside picklist context are almost
	// always an unquoted string the model forgot to quote.
	if lit.Kind == soql.LitToken && identifierLikeRe.MatchString(raw) &&
		lower != "true" && lower != "false" && lower != "null" && !isDateMacro(raw) {
		return Message{
			Severity: SeverityWarning,
			Rule:     RuleLiteralSanity,
			Object:   main.APIName,
			Field:    field,
			Text:     fmt.Sprintf("filter value %q for %s looks like an identifier; it is not a verified value", raw, field),
		}, true
	}
	return Message{}, false
}

func picklistFor(field string, main *schema.Object, sctx *schema.Context) ([]string, bool) {
	if sctx.PicklistHints != nil {
		if values, ok := sctx.PicklistHints[main.APIName+"."+field]; ok {
			return values, true
		}
	}
	if f, ok := main.FieldByName(field); ok && len(f.PicklistValues) > 0 {
		return f.PicklistValues, true
	}
	return nil, false
}

func isDateMacro(raw string) bool {
	upper := strings.ToUpper(raw)
	for _, m := range []string{"TODAY", "YESTERDAY", "TOMORROW", "THIS_WEEK", "LAST_WEEK",
		"THIS_MONTH", "LAST_MONTH", "THIS_QUARTER", "LAST_QUARTER", "THIS_YEAR", "LAST_YEAR"} {
		if upper == m {
			return true
		}
	}
	return strings.HasPrefix(upper, "LAST_N_") || strings.HasPrefix(upper, "NEXT_N_")
}

// -----------------------------------------------------------------------------
// Platform syntax
// -----------------------------------------------------------------------------

func (v *Validator) rulePlatformSyntax(q *soql.Query) []Message {
	var msgs []Message
	for _, issue := range q.RawIssues {
		msgs = append(msgs, Message{
			Severity: SeverityError,
			Rule:     RulePlatformSyntax,
			Text:     issue,
		})
	}
	q.Where.Walk(func(c *soql.Condition) bool {
		if c.Kind == soql.CondCompare && c.Value.Kind == soql.LitBind {
			msgs = append(msgs, Message{
				Severity: SeverityError,
				Rule:     RulePlatformSyntax,
				Field:    c.Field,
				Text:     fmt.Sprintf("bind variable %q is not allowed; inline the value", ":"+c.Value.Raw),
			})
		}
		return true
	})
	return msgs
}

// -----------------------------------------------------------------------------
// Governor limit
// -----------------------------------------------------------------------------

func (v *Validator) ruleGovernorLimit(q *soql.Query) []Message {
	suggested := strconv.Itoa(v.cfg.SuggestedLimit)
	switch {
	case !q.HasLimit():
		return []Message{{
			Severity:   SeverityWarning,
			Rule:       RuleGovernorLimit,
			Suggestion: suggested,
			Text:       fmt.Sprintf("query has no LIMIT; add LIMIT %s to bound row consumption", suggested),
		}}
	case q.HasLimit() && q.Limit > v.cfg.MaxLimit:
		return []Message{{
			Severity:   SeverityWarning,
			Rule:       RuleGovernorLimit,
			Suggestion: suggested,
			Text:       fmt.Sprintf("LIMIT %d exceeds the ceiling of %d; LIMIT %s is recommended", q.Limit, v.cfg.MaxLimit, suggested),
		}}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// closestName returns the candidate within maxDistance edits, preferring
// the smallest distance. Empty when nothing qualifies.
func closestName(name string, candidates []string, maxDistance int) string {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	lower := strings.ToLower(name)
	best := ""
	bestDist := maxDistance + 1
	for _, c := range candidates {
		d := grounding.Levenshtein(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist > maxDistance {
		return ""
	}
	return best
}
