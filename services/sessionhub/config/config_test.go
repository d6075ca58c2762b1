// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8396", cfg.Addr)
	assert.Equal(t, "English", cfg.Summarizer.OutputLanguage)
	assert.Equal(t, 60, cfg.Summarizer.TimeoutSeconds)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: "127.0.0.1:9000"
codex_root: ""
summarizer:
  model: gpt-4o
  output_language: Japanese
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "gpt-4o", cfg.Summarizer.Model)
	assert.Equal(t, "Japanese", cfg.Summarizer.OutputLanguage)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.CodexRoot)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`addr: "127.0.0.1:9000"`), 0o644))

	t.Setenv("QRAFTBOX_ADDR", "127.0.0.1:9999")
	t.Setenv("QRAFTBOX_OUTPUT_LANGUAGE", "German")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, "German", cfg.Summarizer.OutputLanguage)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/qb"
	assert.Equal(t, "/tmp/qb/sessions.db", cfg.SQLitePath())
	assert.Equal(t, "/tmp/qb/mappings", cfg.MappingPath())
}
