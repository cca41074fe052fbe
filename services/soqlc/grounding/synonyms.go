// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import "strings"

// Static synonym/abbreviation table for common CRM vocabulary. Loaded once
// at init, never mutated at runtime.
//
// Keys are lower-cased query-side terms, values are the canonical form
// found in platform metadata.
var synonymTable = map[string]string{
	// Stage / status abbreviations
	"won":        "Closed Won",
	"closed won": "Closed Won",
	"lost":       "Closed Lost",
	"open":       "Open",
	"new":        "New",
	"qualified":  "Qualified",

	// Common org abbreviations
	"acct":  "Account",
	"oppty": "Opportunity",
	"opp":   "Opportunity",
	"mgr":   "Manager",

	// Industry shorthand
	"tech":       "Technology",
	"fin":        "Finance",
	"finserv":    "Financial Services",
	"healthcare": "Healthcare",
	"mfg":        "Manufacturing",

	// Geography shorthand
	"us":   "United States",
	"usa":  "United States",
	"uk":   "United Kingdom",
	"emea": "EMEA",
	"apac": "APAC",
}

// lookupSynonym returns the canonical form for a term, if the static table
// knows one.
func lookupSynonym(term string) (string, bool) {
	canonical, ok := synonymTable[strings.ToLower(strings.TrimSpace(term))]
	return canonical, ok
}
