// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package soql provides the SOQL abstract syntax tree, a recursive-descent
// parser, a canonical renderer, and a schema-aware tolerant token extractor.
//
// The AST uses closed tagged variants (a Kind discriminator per node family)
// rather than open interface hierarchies so that the validator can match
// exhaustively over node kinds. All query values are treated as immutable:
// repair operations work on deep copies obtained via Query.Clone.
//
// Thread Safety:
//
//	AST values are plain data. They are safe for concurrent reads; callers
//	must not mutate a shared Query.
package soql


// -----------------------------------------------------------------------------
// Select list
// -----------------------------------------------------------------------------

// SelectKind discriminates select-list item variants.
type SelectKind int

const (
	// SelectField is a plain (possibly dotted) field reference.
	SelectField SelectKind = iota
	// SelectFunction is an aggregate or scalar function call.
	SelectFunction
	// SelectSubquery is a nested child-relationship query.
	SelectSubquery
	// SelectTypeOf is a polymorphic TYPEOF type-branch clause.
	SelectTypeOf
)

// String returns the variant name.
func (k SelectKind) String() string {
	switch k {
	case SelectField:
		return "field"
	case SelectFunction:
		return "function"
	case SelectSubquery:
		return "subquery"
	case SelectTypeOf:
		return "typeof"
	default:
		return "unknown"
	}
}

// SelectItem is one entry of the SELECT list.
//
// Exactly the fields matching Kind are populated:
//
//	SelectField    - Field
//	SelectFunction - Func, FuncArg (empty for COUNT())
//	SelectSubquery - Subquery
//	SelectTypeOf   - TypeOf
type SelectItem struct {
	Kind     SelectKind
	Field    string
	Func     string
	FuncArg  string
	Subquery *Query
	TypeOf   *TypeOfExpr
}

// IsAggregate reports whether the item is an aggregate function call.
func (s SelectItem) IsAggregate() bool {
	return s.Kind == SelectFunction && aggregateFunctions[normalizeKeyword(s.Func)]
}

// Signature returns the normalized (lower-cased) identity of the item used
// for GROUP BY coverage comparison. Function items include the argument so
// that COUNT(Id) and COUNT(Name) differ.
func (s SelectItem) Signature() string {
	switch s.Kind {
	case SelectField:
		return normalizeKeyword(s.Field)
	case SelectFunction:
		return normalizeKeyword(s.Func) + "(" + normalizeKeyword(s.FuncArg) + ")"
	default:
		return ""
	}
}

// TypeOfExpr is a polymorphic type-branch clause:
//
//	TYPEOF What WHEN Account THEN Phone WHEN User THEN Email ELSE Name END
type TypeOfExpr struct {
	Field    string
	Branches []TypeOfBranch
	Else     []string
}

// TypeOfBranch is one WHEN arm of a TYPEOF clause.
type TypeOfBranch struct {
	Object string
	Fields []string
}

// -----------------------------------------------------------------------------
// Conditions
// -----------------------------------------------------------------------------

// CondKind discriminates predicate-tree node variants.
type CondKind int

const (
	// CondCompare is `field op literal`.
	CondCompare CondKind = iota
	// CondIn is `field IN (literal, ...)` or `field NOT IN (...)`.
	CondIn
	// CondInSubquery is a semi-join `field IN (SELECT ... FROM ...)`.
	CondInSubquery
	// CondAnd joins two predicates with AND.
	CondAnd
	// CondOr joins two predicates with OR.
	CondOr
	// CondNot negates an inner predicate.
	CondNot
)

// String returns the variant name.
func (k CondKind) String() string {
	switch k {
	case CondCompare:
		return "compare"
	case CondIn:
		return "in"
	case CondInSubquery:
		return "in_subquery"
	case CondAnd:
		return "and"
	case CondOr:
		return "or"
	case CondNot:
		return "not"
	default:
		return "unknown"
	}
}

// LiteralKind classifies a filter literal.
type LiteralKind int

const (
	// LitString is a single-quoted string.
	LitString LiteralKind = iota
	// LitNumber is an integer or decimal.
	LitNumber
	// LitBool is true/false.
	LitBool
	// LitNull is the null keyword.
	LitNull
	// LitToken is an unquoted bare token: date literals (2024-01-01,
	// LAST_N_DAYS:30) and anything identifier-like the coder emitted
	// without quotes. The literal-sanity rule inspects these.
	LitToken
	// LitBind is a bind-variable reference (:name), forbidden on the wire.
	// The parser keeps it so the platform rule can report it precisely.
	LitBind
)

// Literal is a filter literal with its source classification.
type Literal struct {
	Kind LiteralKind
	// Raw is the literal text without quoting.
	Raw string
}

// Condition is one node of the filter predicate tree.
//
// Populated fields by Kind:
//
//	CondCompare    - Field, Op, Value
//	CondIn         - Field, Negated, Values
//	CondInSubquery - Field, Negated, Subquery
//	CondAnd/CondOr - Left, Right
//	CondNot        - Inner
type Condition struct {
	Kind     CondKind
	Field    string
	Op       string
	Value    Literal
	Values   []Literal
	Negated  bool
	Subquery *Query
	Left     *Condition
	Right    *Condition
	Inner    *Condition
}

// Walk visits the condition and every descendant in depth-first order.
// The visit function returning false stops descent below that node.
func (c *Condition) Walk(visit func(*Condition) bool) {
	if c == nil || !visit(c) {
		return
	}
	c.Left.Walk(visit)
	c.Right.Walk(visit)
	c.Inner.Walk(visit)
}

// -----------------------------------------------------------------------------
// Query
// -----------------------------------------------------------------------------

// OrderByItem is one ORDER BY entry.
type OrderByItem struct {
	Field     string
	Desc      bool
	NullsLast bool
}

// Query is the root AST node for one SOQL statement. Nested child
// subqueries recurse exactly one level per child relationship.
//
// Limit and Offset use -1 for "absent": LIMIT 0 is a legal SOQL query.
type Query struct {
	Select  []SelectItem
	From    string
	Where   *Condition
	GroupBy []string
	Having  *Condition
	OrderBy []OrderByItem
	Limit   int
	Offset  int

	// RawIssues records platform-forbidden constructs the parser consumed
	// leniently (bind variables, AS aliasing, JOIN/UNION). The renderer
	// never re-emits them; the platform-syntax rule reports them.
	RawIssues []string
}

// NewQuery returns an empty query with absent limit/offset markers.
func NewQuery() *Query {
	return &Query{Limit: -1, Offset: -1}
}

// HasLimit reports whether an explicit LIMIT is present.
func (q *Query) HasLimit() bool { return q.Limit >= 0 }

// HasAggregate reports whether any select item is an aggregate call.
func (q *Query) HasAggregate() bool {
	for _, item := range q.Select {
		if item.IsAggregate() {
			return true
		}
	}
	return false
}

// Subqueries returns the nested child-relationship queries in select order.
func (q *Query) Subqueries() []*Query {
	var subs []*Query
	for _, item := range q.Select {
		if item.Kind == SelectSubquery && item.Subquery != nil {
			subs = append(subs, item.Subquery)
		}
	}
	return subs
}

// Clone returns a deep copy of the query. Repair actions mutate clones so
// that no caller ever observes a partially edited AST.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := &Query{
		From:   q.From,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	out.Select = make([]SelectItem, len(q.Select))
	for i, item := range q.Select {
		out.Select[i] = item
		out.Select[i].Subquery = item.Subquery.Clone()
		if item.TypeOf != nil {
			t := &TypeOfExpr{Field: item.TypeOf.Field}
			t.Else = append([]string(nil), item.TypeOf.Else...)
			t.Branches = make([]TypeOfBranch, len(item.TypeOf.Branches))
			for j, b := range item.TypeOf.Branches {
				t.Branches[j] = TypeOfBranch{
					Object: b.Object,
					Fields: append([]string(nil), b.Fields...),
				}
			}
			out.Select[i].TypeOf = t
		}
	}
	out.Where = q.Where.clone()
	out.Having = q.Having.clone()
	out.GroupBy = append([]string(nil), q.GroupBy...)
	out.OrderBy = append([]OrderByItem(nil), q.OrderBy...)
	out.RawIssues = append([]string(nil), q.RawIssues...)
	return out
}

func (c *Condition) clone() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{
		Kind:    c.Kind,
		Field:   c.Field,
		Op:      c.Op,
		Value:   c.Value,
		Negated: c.Negated,
	}
	out.Values = append([]Literal(nil), c.Values...)
	out.Subquery = c.Subquery.Clone()
	out.Left = c.Left.clone()
	out.Right = c.Right.clone()
	out.Inner = c.Inner.clone()
	return out
}
