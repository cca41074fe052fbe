// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grounding resolves literal values mentioned in a query against
// authoritative data, replacing a language model's unverified guess with a
// verified one.
//
// Resolution is tiered. Tier 1 consults a static synonym table plus the
// picklist values and labels already in the schema context: instant, no
// network. Tier 2, attempted only when Tier 1 has no confident match,
// issues a sanitized full-text search against live instance data scoped to
// the context objects. A term that exhausts both tiers is reported as
// ungrounded; callers treat that as a hint and never invent a filter value.
package grounding

// Type classifies how a candidate was matched.
type Type string

const (
	// TypeExact is a case-insensitive exact match.
	TypeExact Type = "exact"
	// TypeSynonym matched through the static synonym table.
	TypeSynonym Type = "synonym"
	// TypeFuzzy matched within the edit-distance threshold.
	TypeFuzzy Type = "fuzzy"
	// TypeInstanceVerified matched a live instance record's name.
	TypeInstanceVerified Type = "instance_verified"
)

// Source identifies the tier that produced a result.
type Source string

const (
	// SourceMetadata is Tier 1: schema context metadata and synonyms.
	SourceMetadata Source = "metadata"
	// SourceInstanceSearch is Tier 2: live instance search.
	SourceInstanceSearch Source = "instance_search"
)

// Result is one grounding outcome. Never mutated after creation; the
// planner and coder consume it read-only.
type Result struct {
	// Candidate is the raw term from the query.
	Candidate string
	// Resolved is the verified canonical value. Empty when ungrounded.
	Resolved string
	// ObjectType is the object the value belongs to, when known
	// (picklist owner or matched record's type).
	ObjectType string
	// Grounded is false when both tiers were exhausted.
	Grounded bool
	Type     Type
	Source   Source
	// Confidence in [0,1]: 1.0 exact/synonym, relative similarity for
	// fuzzy and instance matches.
	Confidence float64
	// Evidence is the trail of steps taken, oldest first.
	Evidence []string
}

// Ungrounded builds the terminal miss result for a candidate.
func Ungrounded(candidate string, evidence ...string) Result {
	return Result{Candidate: candidate, Evidence: evidence}
}
