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

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantFromSnapshot(t *testing.T) {
	assert.Equal(t, "t1", tenantFromSnapshot("/snapshots/t1.json"))
	assert.Equal(t, "acme-prod", tenantFromSnapshot("acme-prod.json"))
	assert.Empty(t, tenantFromSnapshot("/snapshots/t1.json.tmp"))
	assert.Empty(t, tenantFromSnapshot("/snapshots/readme.txt"))
}

func TestDriftWatcherInvalidatesTenant(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(seedGraph())

	watcher, err := NewDriftWatcher(dir, svc, nil)
	require.NoError(t, err)
	watcher.Start()
	defer watcher.Close()

	_, err = svc.Assemble(context.Background(), "t1", "accounts")
	require.NoError(t, err)
	require.Equal(t, 1, svc.cache.len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "t1.json"), []byte("{}"), 0640))

	assert.Eventually(t, func() bool {
		return svc.cache.len() == 0
	}, 3*time.Second, 20*time.Millisecond, "snapshot write must invalidate the tenant's cache")
}

func TestDriftWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(seedGraph())

	watcher, err := NewDriftWatcher(dir, svc, nil)
	require.NoError(t, err)
	watcher.Start()
	defer watcher.Close()

	_, err = svc.Assemble(context.Background(), "t1", "accounts")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0640))

	// Give the event loop time to (not) react.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, svc.cache.len())
}

func TestDriftWatcherMissingDirectory(t *testing.T) {
	svc := newTestService(seedGraph())
	_, err := NewDriftWatcher(filepath.Join(t.TempDir(), "does-not-exist"), svc, nil)
	assert.Error(t, err)
}
