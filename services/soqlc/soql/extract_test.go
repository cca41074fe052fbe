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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountFields(object string) []string {
	if object != "Account" && object != "account" {
		return nil
	}
	return []string{"Id", "Name", "Industry", "AnnualRevenue", "CreatedDate", "LastModifiedDate"}
}

func selectedFields(q *Query) []string {
	var out []string
	for _, item := range q.Select {
		out = append(out, item.Field)
	}
	return out
}

func TestExtractMissingComma(t *testing.T) {
	// A missing comma between two valid fields breaks the parser but not
	// the extractor: both fields survive, plus the core projection.
	_, err := Parse("SELECT Industry AnnualRevenue FROM Account")
	require.Error(t, err)

	q, err := Extract("SELECT Industry AnnualRevenue FROM Account", accountFields)
	require.NoError(t, err)

	assert.Equal(t, "Account", q.From)
	fields := selectedFields(q)
	assert.Contains(t, fields, "Industry")
	assert.Contains(t, fields, "AnnualRevenue")
	assert.Contains(t, fields, "Id")
	assert.Contains(t, fields, "Name")
	assert.Contains(t, fields, "CreatedDate")
	assert.Contains(t, fields, "LastModifiedDate")
}

func TestExtractDeduplicates(t *testing.T) {
	q, err := Extract("SELECT Id, Id, name, NAME FROM Account", accountFields)
	require.NoError(t, err)

	fields := selectedFields(q)
	count := 0
	for _, f := range fields {
		if f == "Id" || f == "Name" {
			count++
		}
	}
	assert.Equal(t, 2, count, "Id and Name must appear exactly once each")
}

func TestExtractDottedPathKeepsLastSegment(t *testing.T) {
	q, err := Extract("SELECT Owner.Industry FROM Account WHERE garbage !!", accountFields)
	require.NoError(t, err)
	assert.Contains(t, selectedFields(q), "Industry")
}

func TestExtractStripsStringLiterals(t *testing.T) {
	// "Industry" inside a literal must not count as a field reference,
	// but core fields still project.
	q, err := Extract("SELECT Id FROM Account WHERE Name = 'Industry Leaders'", accountFields)
	require.NoError(t, err)

	fields := selectedFields(q)
	assert.Contains(t, fields, "Id")
	assert.NotContains(t, fields, "Industry")
}

func TestExtractCanonicalCase(t *testing.T) {
	q, err := Extract("select industry from Account", accountFields)
	require.NoError(t, err)
	assert.Contains(t, selectedFields(q), "Industry")
}

func TestExtractNoMainObject(t *testing.T) {
	_, err := Extract("SELECT Id WHERE x = 1", accountFields)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMainObject))
}

func TestExtractUnknownObject(t *testing.T) {
	_, err := Extract("SELECT Id FROM Nonexistent", accountFields)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMainObject))
}

func TestExtractResultIsParseable(t *testing.T) {
	q, err := Extract("SELECT Industry AnnualRevenue FROM Account", accountFields)
	require.NoError(t, err)

	_, err = Parse(Render(q))
	require.NoError(t, err, "extracted query must always render to parseable text")
}
