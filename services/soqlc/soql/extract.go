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
	"regexp"
	"strings"
)

var (
	stringLiteralRe = regexp.MustCompile(`'(?:\\.|[^'])*'`)
	fromObjectRe    = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z_][A-Za-z0-9_]*)`)
	identifierRe    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)
)

// Extract performs schema-aware token extraction from unparseable draft text.
//
// Description:
//
//	The degraded path behind Parse. Strips string literals, infers the
//	main object from the first FROM clause, tokenizes identifiers (dotted
//	paths keep their last segment), discards keywords and function names,
//	and keeps only tokens that match a known field of the main object.
//	Core fields (Id, Name, CreatedDate, LastModifiedDate) are always
//	projected when the schema defines them, so the result is a minimally
//	viable query even from badly malformed input.
//
// Inputs:
//
//	text - The malformed draft text.
//	fieldsOf - Lookup returning the known field API names of an object,
//	           nil/empty when the object is unknown. Matching is
//	           case-insensitive; returned names are used verbatim.
//
// Outputs:
//
//	*Query - A well-formed query over the recovered projection.
//	error - ErrNoMainObject when no FROM object is recoverable, making
//	        the input fatal.
func Extract(text string, fieldsOf func(object string) []string) (*Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}

	stripped := stringLiteralRe.ReplaceAllString(text, " ")

	m := fromObjectRe.FindStringSubmatch(stripped)
	if m == nil {
		return nil, ErrNoMainObject
	}
	mainObject := m[1]

	known := make(map[string]string) // lower-cased -> canonical API name
	for _, f := range fieldsOf(mainObject) {
		known[normalizeKeyword(f)] = f
	}
	if len(known) == 0 {
		return nil, ErrNoMainObject
	}

	q := NewQuery()
	q.From = mainObject

	seen := make(map[string]bool)
	add := func(apiName string) {
		key := normalizeKeyword(apiName)
		if !seen[key] {
			seen[key] = true
			q.Select = append(q.Select, SelectItem{Kind: SelectField, Field: apiName})
		}
	}

	for _, tok := range identifierRe.FindAllString(stripped, -1) {
		// Dotted paths keep the last segment only; the parent chain is
		// not trustworthy in malformed input.
		if i := strings.LastIndex(tok, "."); i >= 0 {
			tok = tok[i+1:]
		}
		lower := normalizeKeyword(tok)
		if extractionStopWords[lower] || lower == normalizeKeyword(mainObject) {
			continue
		}
		if canonical, ok := known[lower]; ok {
			add(canonical)
		}
	}

	for _, core := range coreFields {
		if canonical, ok := known[normalizeKeyword(core)]; ok {
			add(canonical)
		}
	}

	if len(q.Select) == 0 {
		// Schema had no core fields and nothing matched. Project the
		// first known field rather than emit an empty SELECT.
		for _, f := range fieldsOf(mainObject) {
			add(f)
			break
		}
	}

	return q, nil
}
