// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import "errors"

var (
	// ErrPlanParse indicates the decomposer output held no parseable plan.
	ErrPlanParse = errors.New("decomposer output is not a valid plan")

	// ErrEmptyPlan indicates the plan named no usable tables.
	ErrEmptyPlan = errors.New("plan names no tables")

	// ErrEmptyDraft indicates the coder returned no query text.
	ErrEmptyDraft = errors.New("coder returned an empty draft")
)
