// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "soqlc-test",
	})
	defer logger.Close()

	logger.Info("hello", "key", "value")
	require.NoError(t, logger.Close())

	name := "soqlc-test_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"service":"soqlc-test"`)
}

func TestFileLoggingBadDirDegrades(t *testing.T) {
	// A file sitting where the directory should be makes MkdirAll fail;
	// construction must still succeed with stderr only.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	logger := New(Config{LogDir: filepath.Join(blocker, "logs")})
	require.NotNil(t, logger)
	logger.Info("still works")
	assert.NoError(t, logger.Close())
}

func TestCloseIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir()})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestServiceDefault(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir})
	logger.Info("x")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "soqlc_"))
}
