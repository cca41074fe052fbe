// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soqlforge/services/soqlc/config"
	"github.com/AleutianAI/soqlforge/services/soqlc/grounding"
	"github.com/AleutianAI/soqlforge/services/soqlc/schema"
	"github.com/AleutianAI/soqlforge/services/soqlc/soql"
)

func testValidator() *Validator {
	return New(config.ValidateConfig{
		MaxLimit:              2000,
		SuggestedLimit:        200,
		SuggestionMaxDistance: 2,
	})
}

func crmContext() *schema.Context {
	account := &schema.Object{
		APIName:  "Account",
		Label:    "Account",
		Category: schema.CategoryStandard,
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "Name"},
			{APIName: "Industry", PicklistValues: []string{"Technology", "Finance"}},
			{APIName: "AnnualRevenue"},
			{APIName: "CreatedDate", Type: "datetime"},
		},
		ChildRelationships: []schema.ChildRelationship{
			{RelationshipName: "Contacts", ChildObject: "Contact", FieldOnChild: "AccountId"},
			{RelationshipName: "Opportunities", ChildObject: "Opportunity", FieldOnChild: "AccountId"},
		},
	}
	contact := &schema.Object{
		APIName:  "Contact",
		Label:    "Contact",
		Category: schema.CategoryStandard,
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "Email"},
			{APIName: "AccountId", ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
		},
	}
	opportunity := &schema.Object{
		APIName:  "Opportunity",
		Label:    "Opportunity",
		Category: schema.CategoryStandard,
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "Amount"},
			{APIName: "StageName", PicklistValues: []string{"Prospecting", "Closed Won"}},
			{APIName: "AccountId", ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
		},
	}
	event := &schema.Object{
		APIName:  "Event",
		Label:    "Event",
		Category: schema.CategoryStandard,
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "WhatId", ReferenceTo: []string{"Account", "Opportunity"}, RelationshipName: "What"},
		},
	}
	teamMember := &schema.Object{
		APIName:  "AccountTeamMember",
		Label:    "Account Team Member",
		Category: schema.CategoryJunction,
		Fields: []schema.Field{
			{APIName: "Id"},
			{APIName: "AccountId", ReferenceTo: []string{"Account"}, RelationshipName: "Account"},
			{APIName: "UserId", ReferenceTo: []string{"User"}, RelationshipName: "User"},
		},
	}

	sctx := &schema.Context{
		Objects: []*schema.Object{account, contact, opportunity, event, teamMember},
		PicklistHints: map[string][]string{
			"Account.Industry":      {"Technology", "Finance"},
			"Opportunity.StageName": {"Prospecting", "Closed Won"},
		},
		GroundingScope: []string{"Account", "Contact", "Opportunity"},
	}
	sctx.ComputeStats()
	return sctx
}

func validateText(t *testing.T, text string) []Message {
	t.Helper()
	q, err := soql.Parse(text)
	require.NoError(t, err)
	return testValidator().Validate(q, crmContext(), nil)
}

func byRule(msgs []Message, rule string) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Rule == rule {
			out = append(out, m)
		}
	}
	return out
}

func TestValidQueryYieldsNoErrors(t *testing.T) {
	msgs := validateText(t, "SELECT Id, Name FROM Account WHERE Industry = 'Technology' LIMIT 200")
	assert.Zero(t, ErrorCount(msgs), "got: %+v", msgs)
}

func TestAggregateMissingGroupBy(t *testing.T) {
	// Industry is selected alongside an aggregate without GROUP BY:
	// exactly one error, naming Industry.
	msgs := validateText(t, "SELECT Industry, COUNT(Id) FROM Account LIMIT 10")

	errs := Errors(msgs)
	require.Len(t, errs, 1)
	assert.Equal(t, RuleAggregateGroupBy, errs[0].Rule)
	assert.Equal(t, "Industry", errs[0].Field)
	assert.Equal(t, "Industry", errs[0].Suggestion)
}

func TestAggregateWithGroupByPasses(t *testing.T) {
	msgs := validateText(t, "SELECT Industry, COUNT(Id) FROM Account GROUP BY Industry")
	assert.Zero(t, ErrorCount(msgs))
}

func TestDateBucketGroupByPasses(t *testing.T) {
	// Date-bucketing calls in GROUP BY reference a field through their
	// argument; the entry itself is not a field name.
	msgs := validateText(t, "SELECT CALENDAR_YEAR(CreatedDate), COUNT(Id) FROM Account GROUP BY CALENDAR_YEAR(CreatedDate) LIMIT 10")
	assert.Zero(t, ErrorCount(msgs), "got: %+v", msgs)
}

func TestDateBucketMissingFromGroupBy(t *testing.T) {
	msgs := validateText(t, "SELECT CALENDAR_YEAR(CreatedDate), COUNT(Id) FROM Account LIMIT 10")

	errs := Errors(msgs)
	require.Len(t, errs, 1)
	assert.Equal(t, RuleAggregateGroupBy, errs[0].Rule)
	assert.Equal(t, "CALENDAR_YEAR(CreatedDate)", errs[0].Suggestion)
}

func TestDateBucketArgumentChecked(t *testing.T) {
	msgs := validateText(t, "SELECT CALENDAR_YEAR(CreatedDat), COUNT(Id) FROM Account GROUP BY CALENDAR_YEAR(CreatedDat) LIMIT 10")

	errs := byRule(Errors(msgs), RuleExistence)
	require.Len(t, errs, 1)
	assert.Equal(t, "CreatedDat", errs[0].Field)
	assert.Equal(t, "CreatedDate", errs[0].Suggestion)
}

func TestPolymorphicFieldWithAggregate(t *testing.T) {
	q, err := soql.Parse("SELECT WhatId, COUNT(Id) FROM Event GROUP BY WhatId")
	require.NoError(t, err)
	msgs := testValidator().Validate(q, crmContext(), nil)

	errs := byRule(Errors(msgs), RuleAggregateGroupBy)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Text, "polymorphic")
}

func TestParentPathResolution(t *testing.T) {
	msgs := validateText(t, "SELECT Id, Account.Name FROM Contact LIMIT 10")
	assert.Zero(t, ErrorCount(msgs), "valid parent path must pass: %+v", msgs)

	msgs = validateText(t, "SELECT Id, Account.Namee FROM Contact LIMIT 10")
	errs := byRule(Errors(msgs), RuleRelationship)
	require.Len(t, errs, 1)
	assert.Equal(t, "Account.Name", errs[0].Suggestion)
}

func TestPolymorphicTraversalFlagged(t *testing.T) {
	msgs := validateText(t, "SELECT Id, What.Name FROM Event LIMIT 10")
	errs := byRule(Errors(msgs), RuleRelationship)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "TYPEOF")
}

func TestChildRelationshipMustExist(t *testing.T) {
	msgs := validateText(t, "SELECT Id, (SELECT Email FROM Contact) FROM Account LIMIT 10")
	errs := byRule(Errors(msgs), RuleRelationship)
	require.Len(t, errs, 1)
	assert.Equal(t, "Contacts", errs[0].Suggestion)
}

func TestChildSubqueryFieldsChecked(t *testing.T) {
	msgs := validateText(t, "SELECT Id, (SELECT Emial FROM Contacts) FROM Account LIMIT 10")
	errs := byRule(Errors(msgs), RuleRelationship)
	require.Len(t, errs, 1)
	assert.Equal(t, "Email", errs[0].Suggestion)
}

func TestJunctionSemiJoinPasses(t *testing.T) {
	msgs := validateText(t, "SELECT Id, Name FROM Account WHERE Id IN (SELECT AccountId FROM AccountTeamMember WHERE UserId = '005x') LIMIT 10")
	assert.Zero(t, ErrorCount(msgs), "legal semi-join must pass: %+v", msgs)
}

func TestJunctionDotNavigationRejected(t *testing.T) {
	msgs := validateText(t, "SELECT Id, AccountTeamMember.UserId FROM Account LIMIT 10")
	errs := byRule(Errors(msgs), RuleJunctionSemiJoin)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Text, "IN (SELECT")
}

func TestUnknownFieldSuggestion(t *testing.T) {
	msgs := validateText(t, "SELECT Id, Naame FROM Account LIMIT 10")
	errs := byRule(Errors(msgs), RuleExistence)
	require.Len(t, errs, 1)
	assert.Equal(t, "Naame", errs[0].Field)
	assert.Equal(t, "Name", errs[0].Suggestion)
}

func TestUnknownFieldNoCloseMatch(t *testing.T) {
	msgs := validateText(t, "SELECT Id, Frobnicator FROM Account LIMIT 10")
	errs := byRule(Errors(msgs), RuleExistence)
	require.Len(t, errs, 1)
	assert.Empty(t, errs[0].Suggestion)
}

func TestUnknownObjectSuggestion(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Acount LIMIT 10")
	errs := Errors(msgs)
	require.NotEmpty(t, errs)
	assert.Equal(t, RuleExistence, errs[0].Rule)
	assert.Equal(t, "Account", errs[0].Suggestion)
}

func TestPicklistValueChecked(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account WHERE Industry = 'Tech' LIMIT 10")
	warns := byRule(msgs, RuleLiteralSanity)
	require.Len(t, warns, 1)
	assert.Equal(t, SeverityWarning, warns[0].Severity)

	// Grounded values are exempt.
	q, err := soql.Parse("SELECT Id FROM Account WHERE Industry = 'Tech' LIMIT 10")
	require.NoError(t, err)
	grounded := []grounding.Result{{Candidate: "Tech", Resolved: "Tech", Grounded: true}}
	msgs = testValidator().Validate(q, crmContext(), grounded)
	assert.Empty(t, byRule(msgs, RuleLiteralSanity))
}

func TestUnquotedIdentifierLiteralFlagged(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account WHERE Name = Acme LIMIT 10")
	warns := byRule(msgs, RuleLiteralSanity)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Text, "identifier")
}

func TestDateMacroNotFlagged(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account WHERE Industry = 'Technology' AND Name != null LIMIT 10")
	assert.Empty(t, byRule(msgs, RuleLiteralSanity))
}

func TestBindVariableFlagged(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account WHERE Id = :recordId LIMIT 10")
	errs := byRule(Errors(msgs), RulePlatformSyntax)
	require.NotEmpty(t, errs)
}

func TestAliasFlagged(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account AS a LIMIT 10")
	errs := byRule(Errors(msgs), RulePlatformSyntax)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "AS")
}

func TestGovernorWarningNoLimit(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account")
	warns := byRule(msgs, RuleGovernorLimit)
	require.Len(t, warns, 1)
	assert.Equal(t, SeverityWarning, warns[0].Severity)
	assert.Equal(t, "200", warns[0].Suggestion)
}

func TestGovernorWarningExcessiveLimit(t *testing.T) {
	msgs := validateText(t, "SELECT Id FROM Account LIMIT 50000")
	warns := byRule(msgs, RuleGovernorLimit)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Text, "2000")
}

func TestGovernorWarnsOnAggregateWithoutLimit(t *testing.T) {
	// The rule fires on any missing LIMIT, aggregates included.
	msgs := validateText(t, "SELECT COUNT(Id) FROM Account")
	warns := byRule(msgs, RuleGovernorLimit)
	require.Len(t, warns, 1)
	assert.Equal(t, "200", warns[0].Suggestion)
}

func TestValidatorIsPure(t *testing.T) {
	q, err := soql.Parse("SELECT Id, Naame FROM Account")
	require.NoError(t, err)
	v := testValidator()
	sctx := crmContext()

	first := v.Validate(q, sctx, nil)
	second := v.Validate(q, sctx, nil)
	assert.Equal(t, first, second)
}
