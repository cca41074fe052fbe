// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import "errors"

var (
	// ErrNoObjects indicates the tenant has no schema objects ingested.
	ErrNoObjects = errors.New("tenant has no schema objects")

	// ErrWatcherClosed is returned when a closed drift watcher is reused.
	ErrWatcherClosed = errors.New("drift watcher is closed")
)
