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
	"fmt"
	"strconv"
	"strings"
)

// disallowedFromConstructs are SQL join/set operators that SOQL forbids.
// The parser consumes them leniently and records a raw issue so the
// platform-syntax rule can report them instead of aborting the parse.
var disallowedFromConstructs = buildSet(
	"join", "inner", "outer", "left", "right", "union", "intersect", "minus",
)

// Parse turns draft SOQL text into a Query AST.
//
// Description:
//
//	Recursive-descent parse of the SOQL grammar: SELECT list (fields,
//	functions, one level of child subqueries, TYPEOF branches), FROM,
//	WHERE predicate tree, GROUP BY, HAVING, ORDER BY, LIMIT and OFFSET.
//
//	Constructs that are lexically recognizable but forbidden on the
//	platform (bind variables, AS aliasing, JOIN/UNION) are consumed
//	leniently and surface in Query.RawIssues so validation can flag them;
//	everything else unparseable returns ErrParse and callers fall back to
//	tolerant extraction.
//
// Inputs:
//
//	text - The draft SOQL text.
//
// Outputs:
//
//	*Query - The parsed AST.
//	error - ErrEmptyQuery, ErrParse or ErrSubqueryDepth wrapped with detail.
func Parse(text string) (*Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	toks, err := newLexer(text).lexAll()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q, err := p.parseQuery(0)
	if err != nil {
		return nil, err
	}
	if p.peek().typ != tokEOF {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrParse, p.peek().pos)
	}
	q.RawIssues = append(q.RawIssues, p.rawIssues...)
	return q, nil
}

type parser struct {
	toks      []token
	pos       int
	rawIssues []string
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) backup()     { p.pos-- }

func (p *parser) expectKeyword(kw string) error {
	t := p.next()
	if !t.isKeyword(kw) {
		return fmt.Errorf("%w: expected %s at offset %d, got %q", ErrParse, strings.ToUpper(kw), t.pos, t.text)
	}
	return nil
}

func (p *parser) expect(typ tokenType, what string) (token, error) {
	t := p.next()
	if t.typ != typ {
		return t, fmt.Errorf("%w: expected %s at offset %d, got %q", ErrParse, what, t.pos, t.text)
	}
	return t, nil
}

// parseQuery parses SELECT ... [clauses]. depth counts subquery nesting.
func (p *parser) parseQuery(depth int) (*Query, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	q := NewQuery()

	items, err := p.parseSelectList(depth)
	if err != nil {
		return nil, err
	}
	q.Select = items

	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	from, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	q.From = from

	if err := p.parseFromTail(); err != nil {
		return nil, err
	}

	if p.peek().isKeyword("using") {
		p.next()
		if err := p.expectKeyword("scope"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokIdent, "scope name"); err != nil {
			return nil, err
		}
	}

	if p.peek().isKeyword("where") {
		p.next()
		cond, err := p.parseOr(depth)
		if err != nil {
			return nil, err
		}
		q.Where = cond
	}

	if p.peek().isKeyword("group") {
		p.next()
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		groups, err := p.parseGroupList()
		if err != nil {
			return nil, err
		}
		q.GroupBy = groups
	}

	if p.peek().isKeyword("having") {
		p.next()
		cond, err := p.parseOr(depth)
		if err != nil {
			return nil, err
		}
		q.Having = cond
	}

	if p.peek().isKeyword("order") {
		p.next()
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		orders, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		q.OrderBy = orders
	}

	if p.peek().isKeyword("limit") {
		p.next()
		n, err := p.parseInt("LIMIT")
		if err != nil {
			return nil, err
		}
		q.Limit = n
	}

	if p.peek().isKeyword("offset") {
		p.next()
		n, err := p.parseInt("OFFSET")
		if err != nil {
			return nil, err
		}
		q.Offset = n
	}

	if p.peek().isKeyword("for") {
		p.next()
		if _, err := p.expect(tokIdent, "FOR clause"); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// parseFromTail handles what may follow the FROM object: a silent bare
// alias (legal), an AS alias (flagged), or a forbidden join/set construct
// (flagged and skipped through to the next clause keyword).
func (p *parser) parseFromTail() error {
	t := p.peek()
	if t.typ != tokIdent {
		return nil
	}
	word := normalizeKeyword(t.text)
	switch {
	case word == "as":
		p.next()
		if _, err := p.expect(tokIdent, "alias"); err != nil {
			return err
		}
		p.rawIssues = append(p.rawIssues, "aliasing keyword AS")
	case disallowedFromConstructs[word]:
		p.rawIssues = append(p.rawIssues, fmt.Sprintf("disallowed construct %s", strings.ToUpper(word)))
		p.skipToClause()
	case !keywords[word]:
		// Bare alias, legal.
		p.next()
	}
	return nil
}

// skipToClause advances past tokens until a clause keyword or EOF. Used to
// recover after a disallowed FROM construct.
func (p *parser) skipToClause() {
	for {
		t := p.peek()
		if t.typ == tokEOF {
			return
		}
		if t.typ == tokIdent {
			switch normalizeKeyword(t.text) {
			case "where", "group", "having", "order", "limit", "offset", "for":
				return
			}
		}
		p.next()
	}
}

func (p *parser) parseSelectList(depth int) ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem(depth)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		return items, nil
	}
}

func (p *parser) parseSelectItem(depth int) (SelectItem, error) {
	t := p.peek()

	if t.typ == tokLParen {
		if depth >= 1 {
			return SelectItem{}, fmt.Errorf("%w: at offset %d", ErrSubqueryDepth, t.pos)
		}
		p.next()
		sub, err := p.parseQuery(depth + 1)
		if err != nil {
			return SelectItem{}, err
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Kind: SelectSubquery, Subquery: sub}, nil
	}

	if t.isKeyword("typeof") {
		p.next()
		expr, err := p.parseTypeOf()
		if err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Kind: SelectTypeOf, TypeOf: expr}, nil
	}

	if t.typ != tokIdent {
		return SelectItem{}, fmt.Errorf("%w: expected select item at offset %d, got %q", ErrParse, t.pos, t.text)
	}

	name := p.next()
	if p.peek().typ == tokLParen {
		p.next()
		item := SelectItem{Kind: SelectFunction, Func: name.text}
		if p.peek().typ != tokRParen {
			arg, err := p.parsePath()
			if err != nil {
				return SelectItem{}, err
			}
			item.FuncArg = arg
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return SelectItem{}, err
		}
		return item, nil
	}

	p.backup()
	path, err := p.parsePath()
	if err != nil {
		return SelectItem{}, err
	}
	return SelectItem{Kind: SelectField, Field: path}, nil
}

func (p *parser) parseTypeOf() (*TypeOfExpr, error) {
	field, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	expr := &TypeOfExpr{Field: field}
	for p.peek().isKeyword("when") {
		p.next()
		obj, err := p.expect(tokIdent, "object name")
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		fields, err := p.parsePathList()
		if err != nil {
			return nil, err
		}
		expr.Branches = append(expr.Branches, TypeOfBranch{Object: obj.text, Fields: fields})
	}
	if len(expr.Branches) == 0 {
		return nil, fmt.Errorf("%w: TYPEOF requires at least one WHEN branch", ErrParse)
	}
	if p.peek().isKeyword("else") {
		p.next()
		fields, err := p.parsePathList()
		if err != nil {
			return nil, err
		}
		expr.Else = fields
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return expr, nil
}

// parsePath parses a dotted identifier path. Reserved clause keywords
// terminate the path so "Name FROM" does not swallow FROM.
func (p *parser) parsePath() (string, error) {
	t := p.next()
	if t.typ != tokIdent || keywords[normalizeKeyword(t.text)] {
		return "", fmt.Errorf("%w: expected identifier at offset %d, got %q", ErrParse, t.pos, t.text)
	}
	parts := []string{t.text}
	for p.peek().typ == tokDot {
		p.next()
		seg, err := p.expect(tokIdent, "path segment")
		if err != nil {
			return "", err
		}
		parts = append(parts, seg.text)
	}
	return strings.Join(parts, "."), nil
}

func (p *parser) parsePathList() ([]string, error) {
	var out []string
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		out = append(out, path)
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		return out, nil
	}
}

// parseGroupList parses GROUP BY entries: dotted paths or date-bucketing
// function calls, stored textually for signature comparison.
func (p *parser) parseGroupList() ([]string, error) {
	var out []string
	for {
		t := p.next()
		if t.typ != tokIdent {
			return nil, fmt.Errorf("%w: expected GROUP BY field at offset %d", ErrParse, t.pos)
		}
		if p.peek().typ == tokLParen {
			p.next()
			arg, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprintf("%s(%s)", t.text, arg))
		} else {
			p.backup()
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			out = append(out, path)
		}
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		return out, nil
	}
}

func (p *parser) parseOrderList() ([]OrderByItem, error) {
	var out []OrderByItem
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		item := OrderByItem{Field: path}
		if p.peek().isKeyword("asc") {
			p.next()
		} else if p.peek().isKeyword("desc") {
			p.next()
			item.Desc = true
		}
		if p.peek().isKeyword("nulls") {
			p.next()
			t := p.next()
			switch {
			case t.isKeyword("first"):
			case t.isKeyword("last"):
				item.NullsLast = true
			default:
				return nil, fmt.Errorf("%w: expected FIRST or LAST after NULLS at offset %d", ErrParse, t.pos)
			}
		}
		out = append(out, item)
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		return out, nil
	}
}

func (p *parser) parseInt(clause string) (int, error) {
	t, err := p.expect(tokNumber, clause+" value")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s value %q", ErrParse, clause, t.text)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Conditions
// -----------------------------------------------------------------------------

func (p *parser) parseOr(depth int) (*Condition, error) {
	left, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("or") {
		p.next()
		right, err := p.parseAnd(depth)
		if err != nil {
			return nil, err
		}
		left = &Condition{Kind: CondOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd(depth int) (*Condition, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("and") {
		p.next()
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = &Condition{Kind: CondAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary(depth int) (*Condition, error) {
	t := p.peek()
	if t.isKeyword("not") {
		p.next()
		inner, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		return &Condition{Kind: CondNot, Inner: inner}, nil
	}
	if t.typ == tokLParen {
		p.next()
		cond, err := p.parseOr(depth)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return cond, nil
	}
	return p.parseComparison(depth)
}

// parseComparison parses `path op literal`, `path [NOT] IN (...)`,
// `path LIKE 'pattern'` and `path INCLUDES/EXCLUDES (...)`.
func (p *parser) parseComparison(depth int) (*Condition, error) {
	// HAVING conditions may compare an aggregate call.
	field, err := p.parseConditionField()
	if err != nil {
		return nil, err
	}

	t := p.next()
	switch {
	case t.typ == tokOp && comparisonOps[t.text]:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Condition{Kind: CondCompare, Field: field, Op: t.text, Value: lit}, nil

	case t.isKeyword("like"):
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Condition{Kind: CondCompare, Field: field, Op: "LIKE", Value: lit}, nil

	case t.isKeyword("includes") || t.isKeyword("excludes"):
		op := strings.ToUpper(t.text)
		values, err := p.parseLiteralList()
		if err != nil {
			return nil, err
		}
		return &Condition{Kind: CondIn, Field: field, Op: op, Values: values}, nil

	case t.isKeyword("not"):
		if err := p.expectKeyword("in"); err != nil {
			return nil, err
		}
		return p.parseInTail(depth, field, true)

	case t.isKeyword("in"):
		return p.parseInTail(depth, field, false)

	default:
		return nil, fmt.Errorf("%w: expected operator at offset %d, got %q", ErrParse, t.pos, t.text)
	}
}

// parseConditionField parses the left side of a comparison: a dotted path
// or an aggregate call such as COUNT(Id) in HAVING.
func (p *parser) parseConditionField() (string, error) {
	t := p.next()
	if t.typ != tokIdent || keywords[normalizeKeyword(t.text)] {
		return "", fmt.Errorf("%w: expected field at offset %d, got %q", ErrParse, t.pos, t.text)
	}
	if p.peek().typ == tokLParen {
		p.next()
		arg := ""
		if p.peek().typ != tokRParen {
			path, err := p.parsePath()
			if err != nil {
				return "", err
			}
			arg = path
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", t.text, arg), nil
	}
	p.backup()
	return p.parsePath()
}

func (p *parser) parseInTail(depth int, field string, negated bool) (*Condition, error) {
	if _, err := p.expect(tokLParen, "opening parenthesis"); err != nil {
		return nil, err
	}
	if p.peek().isKeyword("select") {
		if depth >= 1 {
			return nil, fmt.Errorf("%w: semi-join inside subquery", ErrSubqueryDepth)
		}
		sub, err := p.parseQuery(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return &Condition{Kind: CondInSubquery, Field: field, Negated: negated, Subquery: sub}, nil
	}
	var values []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
		return nil, err
	}
	return &Condition{Kind: CondIn, Field: field, Negated: negated, Values: values}, nil
}

func (p *parser) parseLiteralList() ([]Literal, error) {
	if _, err := p.expect(tokLParen, "opening parenthesis"); err != nil {
		return nil, err
	}
	var values []Literal
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		if p.peek().typ == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "closing parenthesis"); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	t := p.next()
	switch t.typ {
	case tokString:
		return Literal{Kind: LitString, Raw: t.text}, nil
	case tokNumber:
		return Literal{Kind: LitNumber, Raw: t.text}, nil
	case tokBare:
		return Literal{Kind: LitToken, Raw: t.text}, nil
	case tokBind:
		p.rawIssues = append(p.rawIssues, fmt.Sprintf("bind variable %s", t.text))
		return Literal{Kind: LitBind, Raw: strings.TrimPrefix(t.text, ":")}, nil
	case tokIdent:
		switch normalizeKeyword(t.text) {
		case "true", "false":
			return Literal{Kind: LitBool, Raw: normalizeKeyword(t.text)}, nil
		case "null":
			return Literal{Kind: LitNull, Raw: "null"}, nil
		default:
			// Bare identifier where a value belongs: date macros
			// (TODAY) and unquoted names the coder failed to quote.
			return Literal{Kind: LitToken, Raw: t.text}, nil
		}
	default:
		return Literal{}, fmt.Errorf("%w: expected literal at offset %d, got %q", ErrParse, t.pos, t.text)
	}
}
