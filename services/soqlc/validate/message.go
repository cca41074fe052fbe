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

// Severity of a validation message.
type Severity string

const (
	// SeverityError blocks acceptance; the repair engine must resolve it.
	SeverityError Severity = "error"
	// SeverityWarning is advisory and survives into the final result.
	SeverityWarning Severity = "warning"
)

// Rule names, in evaluation order.
const (
	RuleAggregateGroupBy = "aggregate_groupby"
	RuleRelationship     = "relationship"
	RuleJunctionSemiJoin = "junction_semijoin"
	RuleExistence        = "existence"
	RuleLiteralSanity    = "literal_sanity"
	RulePlatformSyntax   = "platform_syntax"
	RuleGovernorLimit    = "governor_limit"
)

// Message is one validator finding.
//
// The structured fields exist for the repair engine: a message carrying a
// Suggestion can be mapped to a deterministic repair action without
// re-parsing the text.
type Message struct {
	Severity Severity
	Rule     string
	// Text is the human-readable finding.
	Text string
	// Object names the schema object involved, when known.
	Object string
	// Field names the offending identifier, when the finding concerns one.
	Field string
	// Suggestion is the concrete replacement value: a closest-match field
	// name, a corrected parent path, or a recommended LIMIT value.
	Suggestion string
}

// IsError reports whether the message blocks acceptance.
func (m Message) IsError() bool { return m.Severity == SeverityError }

// ErrorCount counts blocking messages.
func ErrorCount(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsError() {
			n++
		}
	}
	return n
}

// Errors returns only the blocking messages, preserving order.
func Errors(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

// Texts flattens messages for coder feedback.
func Texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
