// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package soql

import (
	"strconv"
	"strings"
)

// Render recomposes canonical SOQL text from the AST.
//
// Description:
//
//	Emits upper-case keywords, inline literals, no bind variables and no
//	aliasing keywords, matching the wire grammar exactly. Render of a
//	parsed query followed by Parse of the result yields an equivalent AST.
//
// Outputs:
//
//	string - The SOQL text. Empty for a nil query.
func Render(q *Query) string {
	if q == nil {
		return ""
	}
	var sb strings.Builder
	renderInto(&sb, q)
	return sb.String()
}

func renderInto(sb *strings.Builder, q *Query) {
	sb.WriteString("SELECT ")
	for i, item := range q.Select {
		if i > 0 {
			sb.WriteString(", ")
		}
		renderSelectItem(sb, item)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(q.From)

	if q.Where != nil {
		sb.WriteString(" WHERE ")
		renderCondition(sb, q.Where, false)
	}
	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(q.GroupBy, ", "))
	}
	if q.Having != nil {
		sb.WriteString(" HAVING ")
		renderCondition(sb, q.Having, false)
	}
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.Field)
			if o.Desc {
				sb.WriteString(" DESC")
			}
			if o.NullsLast {
				sb.WriteString(" NULLS LAST")
			}
		}
	}
	if q.Limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}
	if q.Offset >= 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(q.Offset))
	}
}

func renderSelectItem(sb *strings.Builder, item SelectItem) {
	switch item.Kind {
	case SelectField:
		sb.WriteString(item.Field)
	case SelectFunction:
		sb.WriteString(strings.ToUpper(item.Func))
		sb.WriteString("(")
		sb.WriteString(item.FuncArg)
		sb.WriteString(")")
	case SelectSubquery:
		sb.WriteString("(")
		renderInto(sb, item.Subquery)
		sb.WriteString(")")
	case SelectTypeOf:
		sb.WriteString("TYPEOF ")
		sb.WriteString(item.TypeOf.Field)
		for _, b := range item.TypeOf.Branches {
			sb.WriteString(" WHEN ")
			sb.WriteString(b.Object)
			sb.WriteString(" THEN ")
			sb.WriteString(strings.Join(b.Fields, ", "))
		}
		if len(item.TypeOf.Else) > 0 {
			sb.WriteString(" ELSE ")
			sb.WriteString(strings.Join(item.TypeOf.Else, ", "))
		}
		sb.WriteString(" END")
	}
}

// renderCondition emits a predicate. Mixed AND/OR children are
// parenthesized so operator precedence survives the round trip.
func renderCondition(sb *strings.Builder, c *Condition, parenthesize bool) {
	if c == nil {
		return
	}
	switch c.Kind {
	case CondAnd, CondOr:
		op := " AND "
		if c.Kind == CondOr {
			op = " OR "
		}
		if parenthesize {
			sb.WriteString("(")
		}
		renderCondition(sb, c.Left, c.Left != nil && c.Left.Kind != c.Kind && isBoolean(c.Left.Kind))
		sb.WriteString(op)
		renderCondition(sb, c.Right, c.Right != nil && c.Right.Kind != c.Kind && isBoolean(c.Right.Kind))
		if parenthesize {
			sb.WriteString(")")
		}
	case CondNot:
		sb.WriteString("NOT ")
		renderCondition(sb, c.Inner, isBoolean(c.Inner.Kind))
	case CondCompare:
		sb.WriteString(c.Field)
		sb.WriteString(" ")
		sb.WriteString(c.Op)
		sb.WriteString(" ")
		sb.WriteString(renderLiteral(c.Value))
	case CondIn:
		sb.WriteString(c.Field)
		sb.WriteString(inOp(c))
		sb.WriteString("(")
		for i, v := range c.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(renderLiteral(v))
		}
		sb.WriteString(")")
	case CondInSubquery:
		sb.WriteString(c.Field)
		if c.Negated {
			sb.WriteString(" NOT IN (")
		} else {
			sb.WriteString(" IN (")
		}
		renderInto(sb, c.Subquery)
		sb.WriteString(")")
	}
}

func inOp(c *Condition) string {
	switch {
	case c.Op == "INCLUDES":
		return " INCLUDES "
	case c.Op == "EXCLUDES":
		return " EXCLUDES "
	case c.Negated:
		return " NOT IN "
	default:
		return " IN "
	}
}

func isBoolean(k CondKind) bool { return k == CondAnd || k == CondOr }

func renderLiteral(lit Literal) string {
	switch lit.Kind {
	case LitString:
		return "'" + strings.ReplaceAll(lit.Raw, "'", `\'`) + "'"
	case LitNull:
		return "null"
	default:
		return lit.Raw
	}
}
