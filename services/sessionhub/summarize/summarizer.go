// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summarize turns a session's user intents into a short purpose line
// via an LLM, with a deterministic fallback when no model is reachable.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Summarizer produces a one-line purpose from ordered user intents.
// projectPath is context only; it may be empty.
type Summarizer interface {
	Summarize(ctx context.Context, projectPath string, intents []string) (string, error)
}

const systemPrompt = "You summarize AI coding sessions. Given the user's " +
	"prompts from one session, reply with a single short line (under 15 " +
	"words) describing what the session is trying to accomplish. Reply with " +
	"the line only, no quotes and no trailing period."

// OpenAISummarizer calls the chat completion API with a per-call timeout and
// a client-side rate limit so a burst of uncached sessions cannot flood the
// provider.
type OpenAISummarizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	lang    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Config for the OpenAI-backed summarizer. APIKey falls back to the
// OPENAI_API_KEY environment variable.
type Config struct {
	APIKey         string
	Model          string
	Timeout        time.Duration
	OutputLanguage string
	RatePerMinute  int
	Logger         *slog.Logger
}

// NewOpenAISummarizer builds a summarizer, or an error when no API key is
// available.
func NewOpenAISummarizer(cfg Config) (*OpenAISummarizer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no OpenAI API key configured")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAISummarizer{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		lang:    cfg.OutputLanguage,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		logger:  logger,
	}, nil
}

// Summarize sends the intents to the model and returns its one-line answer.
// An empty model answer is an error so callers fall back rather than cache a
// blank purpose.
func (s *OpenAISummarizer) Summarize(ctx context.Context, projectPath string, intents []string) (string, error) {
	if len(intents) == 0 {
		return "", fmt.Errorf("no intents to summarize")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("summarizer rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sb strings.Builder
	for i, intent := range intents {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, intent)
	}
	userPrompt := "User prompts from the session:\n" + sb.String()
	if projectPath != "" {
		userPrompt += "\nProject: " + projectPath
	}
	if s.lang != "" {
		userPrompt += "\nAnswer in " + s.lang + "."
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	out = strings.Trim(out, `"`)
	if out == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	s.logger.Debug("session purpose summarized", "model", s.model, "intents", len(intents))
	return out, nil
}

// fallbackMaxLen bounds the fallback purpose line.
const fallbackMaxLen = 100

// FallbackPurpose derives a purpose from the first intent when no summarizer
// is available or the model call failed. Returns "" when there is nothing to
// derive from.
func FallbackPurpose(intents []string) string {
	for _, intent := range intents {
		line := strings.TrimSpace(intent)
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if runes := []rune(line); len(runes) > fallbackMaxLen {
			line = string(runes[:fallbackMaxLen]) + "…"
		}
		return line
	}
	return ""
}
