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
	"strings"
	"unicode"
)

// tokenType classifies lexer output.
type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokNumber
	tokString
	// tokBare covers unquoted date/datetime literals and date macros with
	// a numeric suffix (2024-01-31, LAST_N_DAYS:30).
	tokBare
	// tokBind is a bind-variable reference (:name). SOQL-over-the-wire
	// forbids these; the lexer keeps them so the platform rule can report
	// them instead of failing the parse.
	tokBind
	tokComma
	tokDot
	tokLParen
	tokRParen
	tokOp
)

type token struct {
	typ tokenType
	// text is the token content; for tokString the surrounding quotes are
	// stripped and escapes resolved.
	text string
	pos  int
}

// isKeyword reports whether the token is the given keyword (case-insensitive).
func (t token) isKeyword(kw string) bool {
	return t.typ == tokIdent && normalizeKeyword(t.text) == kw
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

// lexAll tokenizes the whole input.
func (l *lexer) lexAll() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.typ == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{typ: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.src[l.pos]

	switch {
	case ch == ',':
		l.pos++
		return token{typ: tokComma, text: ",", pos: start}, nil
	case ch == '.':
		l.pos++
		return token{typ: tokDot, text: ".", pos: start}, nil
	case ch == '(':
		l.pos++
		return token{typ: tokLParen, text: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{typ: tokRParen, text: ")", pos: start}, nil
	case ch == '\'':
		return l.lexString()
	case ch == ':':
		return l.lexBind()
	case ch == '=' || ch == '<' || ch == '>' || ch == '!':
		return l.lexOperator()
	case unicode.IsDigit(ch) || (ch == '-' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1])):
		return l.lexNumberOrDate()
	case unicode.IsLetter(ch) || ch == '_':
		return l.lexIdent()
	default:
		return token{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrParse, string(ch), start)
	}
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '\\' && l.pos+1 < len(l.src) {
			sb.WriteRune(l.src[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == '\'' {
			l.pos++
			return token{typ: tokString, text: sb.String(), pos: start}, nil
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return token{}, fmt.Errorf("%w: unterminated string literal at offset %d", ErrParse, start)
}

func (l *lexer) lexBind() (token, error) {
	start := l.pos
	l.pos++ // colon
	for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos == start+1 {
		return token{}, fmt.Errorf("%w: stray ':' at offset %d", ErrParse, start)
	}
	return token{typ: tokBind, text: string(l.src[start:l.pos]), pos: start}, nil
}

func (l *lexer) lexOperator() (token, error) {
	start := l.pos
	one := string(l.src[l.pos])
	if l.pos+1 < len(l.src) {
		two := one + string(l.src[l.pos+1])
		if two == "!=" || two == "<>" || two == "<=" || two == ">=" {
			l.pos += 2
			return token{typ: tokOp, text: two, pos: start}, nil
		}
	}
	if one == "!" {
		return token{}, fmt.Errorf("%w: stray '!' at offset %d", ErrParse, start)
	}
	l.pos++
	return token{typ: tokOp, text: one, pos: start}, nil
}

// lexNumberOrDate consumes a numeric literal, extending greedily through
// date and datetime shapes (2024-01-31, 2024-01-31T10:00:00Z, 10:30).
func (l *lexer) lexNumberOrDate() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	isDate := false
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if unicode.IsDigit(ch) || ch == '.' {
			l.pos++
			continue
		}
		if ch == '-' || ch == ':' || ch == '+' || ch == 'T' || ch == 'Z' {
			isDate = true
			l.pos++
			continue
		}
		break
	}
	text := string(l.src[start:l.pos])
	if isDate {
		return token{typ: tokBare, text: text, pos: start}, nil
	}
	return token{typ: tokNumber, text: text, pos: start}, nil
}

// lexIdent consumes an identifier, extending through a trailing ":<digits>"
// so date macros like LAST_N_DAYS:30 arrive as a single bare token.
func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == ':' && unicode.IsDigit(l.src[l.pos+1]) {
		l.pos++ // colon
		for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			l.pos++
		}
		return token{typ: tokBare, text: string(l.src[start:l.pos]), pos: start}, nil
	}
	return token{typ: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil
}
