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

import "errors"

var (
	// ErrTermRejected indicates the candidate was rejected by sanitization
	// before any search ran.
	ErrTermRejected = errors.New("grounding term rejected by sanitizer")

	// ErrSearchBudget indicates the rate limiter denied a Tier-2 search
	// within the call's deadline.
	ErrSearchBudget = errors.New("instance search rate budget exhausted")
)
