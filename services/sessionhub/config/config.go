// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads sessionhub configuration from YAML with environment
// overrides. All paths support ~ expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tacogips/QraftBox-sub000/pkg/logging"
)

// Config is the full sessionhub configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// ClaudeRoot is the Claude Code data directory containing
	// projects/<munged-path>/<session-id>.jsonl transcripts.
	ClaudeRoot string `yaml:"claude_root"`

	// CodexRoot is the Codex CLI data directory containing rollout logs.
	// Empty disables Codex scanning.
	CodexRoot string `yaml:"codex_root"`

	// DataDir holds sessionhub-owned state (SQLite database, mapping store).
	DataDir string `yaml:"data_dir"`

	// Summarizer configures the LLM purpose summarizer.
	Summarizer SummarizerConfig `yaml:"summarizer"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// SummarizerConfig configures the purpose summarization backend.
type SummarizerConfig struct {
	// Model is the chat model used for purpose summaries.
	Model string `yaml:"model"`

	// TimeoutSeconds bounds a single summarization call.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// OutputLanguage is the language hint for generated purposes.
	OutputLanguage string `yaml:"output_language"`

	// RatePerMinute limits summarizer invocations client-side.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Addr:       "127.0.0.1:8396",
		ClaudeRoot: "~/.claude",
		CodexRoot:  "~/.codex",
		DataDir:    "~/.qraftbox",
		Summarizer: SummarizerConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			OutputLanguage: "English",
			RatePerMinute:  20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, or the default location
// (~/.qraftbox/config.yaml) when path is empty. A missing file yields
// Default(); a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "~/.qraftbox/config.yaml"
	}
	path = logging.ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg.expand(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg.expand(), nil
}

// applyEnv overlays QRAFTBOX_* environment variables over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("QRAFTBOX_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("QRAFTBOX_CLAUDE_ROOT"); v != "" {
		c.ClaudeRoot = v
	}
	if v := os.Getenv("QRAFTBOX_CODEX_ROOT"); v != "" {
		c.CodexRoot = v
	}
	if v := os.Getenv("QRAFTBOX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("QRAFTBOX_OUTPUT_LANGUAGE"); v != "" {
		c.Summarizer.OutputLanguage = v
	}
	if v := os.Getenv("QRAFTBOX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c Config) expand() Config {
	c.ClaudeRoot = logging.ExpandPath(c.ClaudeRoot)
	c.CodexRoot = logging.ExpandPath(c.CodexRoot)
	c.DataDir = logging.ExpandPath(c.DataDir)
	c.Log.Dir = logging.ExpandPath(c.Log.Dir)
	return c
}

// SQLitePath returns the runtime session database location.
func (c Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// MappingPath returns the badger mapping store directory.
func (c Config) MappingPath() string {
	return filepath.Join(c.DataDir, "mappings")
}
