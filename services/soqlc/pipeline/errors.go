// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "errors"

var (
	// ErrEmptyQuery indicates the caller supplied no query text.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrContextAssembly indicates the schema context could not be built;
	// nothing downstream can run without it.
	ErrContextAssembly = errors.New("schema context assembly failed")

	// ErrNoDraft indicates no usable draft was produced before the
	// deadline or budgets ran out.
	ErrNoDraft = errors.New("no usable draft produced")
)
