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

import "errors"

// Sentinel errors for the soql package.
var (
	// ErrParse indicates the draft text could not be parsed as SOQL.
	ErrParse = errors.New("soql parse error")

	// ErrEmptyQuery indicates the draft text is empty.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrNoMainObject indicates no FROM object could be recovered, even by
	// tolerant extraction. Callers surface this as a fatal input error.
	ErrNoMainObject = errors.New("no main object recoverable from query text")

	// ErrSubqueryDepth indicates child subqueries nested beyond one level.
	ErrSubqueryDepth = errors.New("child subqueries may only nest one level")
)
