// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package purpose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/observability"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/summarize"
)

// ErrUnknownSession is returned when the transcript source has no session
// with the requested id.
var ErrUnknownSession = errors.New("unknown session")

// transcriptSource is the slice of the transcript reader the cache needs.
type transcriptSource interface {
	GetSession(ctx context.Context, id string) (*datatypes.SessionEntry, error)
	ReadTranscript(ctx context.Context, id string, offset, limit int) (*datatypes.TranscriptPage, error)
}

type entry struct {
	purpose     string
	source      datatypes.PurposeSource
	intentCount int
	signature   string
	updatedAt   time.Time
}

// Cache is a request-coalescing purpose cache.
//
// # Description
//
// Concurrent requests for the same session share one summarization: the
// first caller becomes the leader and runs the model call, later callers
// wait on the leader's in-flight channel and then read the cached result.
// A cached entry stays valid until the session's intent count changes.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	source     transcriptSource
	summarizer summarize.Summarizer // nil means fallback-only
	logger     *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]chan struct{}
}

// NewCache builds a purpose cache. summarizer may be nil; the cache then
// serves fallback purposes only.
func NewCache(source transcriptSource, summarizer summarize.Summarizer, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:     source,
		summarizer: summarizer,
		logger:     logger,
		entries:    make(map[string]*entry),
		inflight:   make(map[string]chan struct{}),
	}
}

// Get returns the session's purpose, summarizing on a miss. Summarizer
// failures degrade to the fallback purpose rather than erroring, so a flaky
// model never breaks the listing path.
func (c *Cache) Get(ctx context.Context, sessionID string) (*datatypes.PurposeResult, error) {
	session, err := c.source.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session for purpose: %w", err)
	}
	if session == nil {
		return nil, ErrUnknownSession
	}

	page, err := c.source.ReadTranscript(ctx, sessionID, 0, maxEventsScanned)
	if err != nil {
		return nil, fmt.Errorf("read transcript for purpose: %w", err)
	}
	if page == nil {
		return nil, ErrUnknownSession
	}

	intents := ExtractIntents(page.Events)

	for {
		c.mu.Lock()
		if e, ok := c.entries[sessionID]; ok && e.intentCount == len(intents) {
			result := e.result()
			c.mu.Unlock()
			return result, nil
		}
		if ch, ok := c.inflight[sessionID]; ok {
			c.mu.Unlock()
			select {
			case <-ch:
				// Leader finished; loop to read its entry. The entry may
				// already be stale again if the session moved on, in which
				// case this caller becomes the next leader.
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ch := make(chan struct{})
		c.inflight[sessionID] = ch
		c.mu.Unlock()

		e := c.refresh(session, intents)

		c.mu.Lock()
		c.entries[sessionID] = e
		delete(c.inflight, sessionID)
		close(ch)
		result := e.result()
		c.mu.Unlock()
		return result, nil
	}
}

// Invalidate drops the cached purpose for a session.
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.entries, sessionID)
	c.mu.Unlock()
}

// refresh runs the summarizer for one session. The model call uses a
// background context: the result is shared with coalesced waiters, so one
// caller disconnecting must not abort it.
func (c *Cache) refresh(session *datatypes.SessionEntry, intents []string) *entry {
	e := &entry{
		intentCount: len(intents),
		signature:   Signature(intents),
		updatedAt:   time.Now(),
	}
	defer func() { observability.CountPurposeResult(string(e.source)) }()

	if len(intents) == 0 {
		e.purpose = fallbackFromEntry(session)
		e.source = datatypes.PurposeSourceFallback
		return e
	}

	if c.summarizer != nil {
		start := time.Now()
		purpose, err := c.summarizer.Summarize(context.Background(), session.ProjectPath, intents)
		observability.ObserveSummarizer(time.Since(start))
		if err == nil {
			e.purpose = purpose
			e.source = datatypes.PurposeSourceLLM
			return e
		}
		c.logger.Warn("purpose summarization failed, using fallback",
			"session_id", session.SessionID, "error", err)
	}

	e.purpose = summarize.FallbackPurpose(intents)
	e.source = datatypes.PurposeSourceFallback
	return e
}

// fallbackFromEntry derives a purpose for transcripts that carry no usable
// user turns. The agent-written summary beats the raw first prompt.
func fallbackFromEntry(session *datatypes.SessionEntry) string {
	if session.Summary != "" {
		return session.Summary
	}
	return summarize.FallbackPurpose([]string{session.FirstPrompt})
}

func (e *entry) result() *datatypes.PurposeResult {
	return &datatypes.PurposeResult{
		Purpose:   e.purpose,
		UpdatedAt: e.updatedAt,
		Source:    e.source,
	}
}
