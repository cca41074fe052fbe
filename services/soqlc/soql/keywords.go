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

import "strings"

// Fixed keyword and function tables. Loaded once at init, never mutated.

// keywords is every reserved word the lexer classifies as a keyword.
var keywords = buildSet(
	"select", "from", "where", "group", "by", "having", "order",
	"limit", "offset", "and", "or", "not", "in", "like", "includes",
	"excludes", "asc", "desc", "nulls", "first", "last", "typeof",
	"when", "then", "else", "end", "true", "false", "null",
	"with", "for", "update", "view", "reference", "using", "scope",
)

// aggregateFunctions are the aggregate calls relevant to GROUP BY rules.
var aggregateFunctions = buildSet(
	"count", "count_distinct", "sum", "avg", "min", "max",
)

// scalarFunctions are non-aggregate calls that may appear in SELECT or
// GROUP BY (date bucketing and locale conversion).
var scalarFunctions = buildSet(
	"calendar_month", "calendar_quarter", "calendar_year",
	"day_in_month", "day_in_week", "day_in_year", "day_only",
	"fiscal_month", "fiscal_quarter", "fiscal_year",
	"hour_in_day", "week_in_month", "week_in_year",
	"tolabel", "convertcurrency", "converttimezone", "format",
	"grouping",
)

// extractionStopWords are discarded outright by the tolerant token
// extractor: keywords, function names, and common literal tokens that must
// never be mistaken for field references.
var extractionStopWords = func() map[string]bool {
	s := make(map[string]bool, len(keywords)+len(aggregateFunctions)+len(scalarFunctions))
	for k := range keywords {
		s[k] = true
	}
	for k := range aggregateFunctions {
		s[k] = true
	}
	for k := range scalarFunctions {
		s[k] = true
	}
	for _, w := range []string{"today", "yesterday", "tomorrow", "this_week",
		"last_week", "next_week", "this_month", "last_month", "next_month",
		"this_quarter", "last_quarter", "this_year", "last_year", "next_year"} {
		s[w] = true
	}
	return s
}()

// coreFields are always projected by the tolerant extractor when the main
// object defines them, guaranteeing a minimally viable SELECT list.
var coreFields = []string{"Id", "Name", "CreatedDate", "LastModifiedDate"}

// comparisonOps are the binary comparison operators accepted after a field
// path in a WHERE clause. Multi-word operators (NOT IN) are handled by the
// parser directly.
var comparisonOps = buildSet("=", "!=", "<>", "<", "<=", ">", ">=")

func buildSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

// normalizeKeyword lower-cases an identifier for case-insensitive matching.
func normalizeKeyword(s string) string { return strings.ToLower(s) }

// IsAggregateFunction reports whether name is a known aggregate function.
func IsAggregateFunction(name string) bool {
	return aggregateFunctions[normalizeKeyword(name)]
}

// IsScalarFunction reports whether name is a known scalar function (date
// bucketing or conversion).
func IsScalarFunction(name string) bool {
	return scalarFunctions[normalizeKeyword(name)]
}

// SplitFunctionCall splits a textual entry of the form FN(arg), as stored
// in GROUP BY lists, into its parts. ok is false for plain field paths.
func SplitFunctionCall(entry string) (fn, arg string, ok bool) {
	open := strings.IndexByte(entry, '(')
	if open <= 0 || !strings.HasSuffix(entry, ")") {
		return "", "", false
	}
	return entry[:open], entry[open+1 : len(entry)-1], true
}
