// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transcript is a read-only adapter over the per-project session
// indexes written by external CLI agents (Claude Code, Codex). It never
// writes to the agent directories.
//
// Listing is served from an in-memory index rebuilt lazily: a rebuild
// happens when the index is older than a short TTL or when the fsnotify
// watcher flagged a change under one of the roots. Transcript reads always
// go to disk so event pagination sees the latest lines.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

// indexTTL is how long a built index is trusted without an fsnotify signal.
const indexTTL = 30 * time.Second

// sessionRecord pairs an index entry with its parsed event stream.
type sessionRecord struct {
	Entry  datatypes.SessionEntry
	Events []datatypes.TranscriptEvent
}

// Reader implements the transcript session source over on-disk JSONL logs.
type Reader struct {
	claudeRoot string
	codexRoot  string
	logger     *slog.Logger

	mu      sync.Mutex
	index   []*sessionRecord
	byID    map[string]*sessionRecord
	builtAt time.Time

	dirty   atomic.Bool
	watcher *Watcher
}

// NewReader creates a Reader over the given agent data roots. Either root may
// be empty to disable that agent. Call Close to stop the change watcher.
func NewReader(claudeRoot, codexRoot string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		claudeRoot: claudeRoot,
		codexRoot:  codexRoot,
		logger:     logger,
	}

	var watchRoots []string
	if claudeRoot != "" {
		watchRoots = append(watchRoots, filepath.Join(claudeRoot, "projects"))
	}
	if codexRoot != "" {
		watchRoots = append(watchRoots, filepath.Join(codexRoot, "sessions"))
	}
	w, err := NewWatcher(watchRoots, func() { r.dirty.Store(true) }, logger)
	if err != nil {
		// Watcher is an optimization; without it the TTL still bounds staleness.
		logger.Warn("transcript change watcher unavailable", "error", err)
	} else {
		r.watcher = w
	}
	return r
}

// Close stops the filesystem watcher.
func (r *Reader) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Invalidate forces the next list call to rescan the roots.
func (r *Reader) Invalidate() {
	r.dirty.Store(true)
}

// refresh rebuilds the in-memory index when stale.
func (r *Reader) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty.Load() && time.Since(r.builtAt) < indexTTL && r.index != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	var records []*sessionRecord

	if r.claudeRoot != "" {
		recs, err := scanClaudeRoot(r.claudeRoot)
		if err != nil {
			return fmt.Errorf("scan claude root %s: %w", r.claudeRoot, err)
		}
		records = append(records, recs...)
	}
	if r.codexRoot != "" {
		recs, err := scanCodexRoot(r.codexRoot)
		if err != nil {
			return fmt.Errorf("scan codex root %s: %w", r.codexRoot, err)
		}
		records = append(records, recs...)
	}

	byID := make(map[string]*sessionRecord, len(records))
	for _, rec := range records {
		byID[rec.Entry.SessionID] = rec
	}

	r.index = records
	r.byID = byID
	r.builtAt = time.Now()
	r.dirty.Store(false)

	r.logger.Debug("transcript index rebuilt",
		"sessions", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func scanClaudeRoot(root string) ([]*sessionRecord, error) {
	projectsDir := filepath.Join(root, "projects")
	var records []*sessionRecord
	err := filepath.Walk(projectsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if filepath.Base(path) == "subagents" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		if strings.Contains(filepath.Base(path), "sessions-index") {
			return nil
		}
		rec, perr := parseClaudeSession(path)
		if perr != nil {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return records, nil
}

func scanCodexRoot(root string) ([]*sessionRecord, error) {
	sessionsDir := filepath.Join(root, "sessions")
	var records []*sessionRecord
	err := filepath.Walk(sessionsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		rec, perr := parseCodexSession(path)
		if perr != nil {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return records, nil
}

// ListProjects returns the distinct project paths known to the index.
func (r *Reader) ListProjects(ctx context.Context) ([]datatypes.ProjectInfo, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byPath := make(map[string]*datatypes.ProjectInfo)
	for _, rec := range r.index {
		if rec.Entry.ProjectPath == "" {
			continue
		}
		info, ok := byPath[rec.Entry.ProjectPath]
		if !ok {
			info = &datatypes.ProjectInfo{ProjectPath: rec.Entry.ProjectPath}
			byPath[rec.Entry.ProjectPath] = info
		}
		info.SessionCount++
		if rec.Entry.Modified.After(info.LastModified) {
			info.LastModified = rec.Entry.Modified
		}
	}

	out := make([]datatypes.ProjectInfo, 0, len(byPath))
	for _, info := range byPath {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// ListSessions returns one filtered, sorted page of session entries.
// Returned entries are copies; callers may relabel them freely.
func (r *Reader) ListSessions(ctx context.Context, filter datatypes.SessionFilter, page datatypes.PageRequest, sortBy datatypes.SortField, order datatypes.SortOrder) (*datatypes.SessionPage, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	matched := make([]datatypes.SessionEntry, 0, len(r.index))
	for _, rec := range r.index {
		if matchesFilter(&rec.Entry, filter) {
			matched = append(matched, rec.Entry)
		}
	}
	r.mu.Unlock()

	sortEntries(matched, sortBy, order)

	total := len(matched)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}

	sessions := make([]*datatypes.SessionEntry, 0, end-start)
	for i := start; i < end; i++ {
		e := matched[i]
		sessions = append(sessions, &e)
	}

	return &datatypes.SessionPage{
		Sessions: sessions,
		Total:    total,
		Offset:   page.Offset,
		Limit:    page.Limit,
	}, nil
}

func matchesFilter(e *datatypes.SessionEntry, f datatypes.SessionFilter) bool {
	if f.WorkingDirectoryPrefix != "" && !strings.HasPrefix(e.ProjectPath, f.WorkingDirectoryPrefix) {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.GitBranch != "" && e.GitBranch != f.GitBranch {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.FirstPrompt), needle) &&
			!strings.Contains(strings.ToLower(e.Summary), needle) {
			return false
		}
	}
	if !f.From.IsZero() && e.Modified.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Modified.After(f.To) {
		return false
	}
	return true
}

func sortEntries(entries []datatypes.SessionEntry, sortBy datatypes.SortField, order datatypes.SortOrder) {
	key := func(e *datatypes.SessionEntry) time.Time {
		if sortBy == datatypes.SortByCreated {
			return e.Created
		}
		return e.Modified
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == datatypes.SortAsc {
			return key(&entries[i]).Before(key(&entries[j]))
		}
		return key(&entries[i]).After(key(&entries[j]))
	})
}

// GetSession returns the index entry for id, or nil when unknown.
func (r *Reader) GetSession(ctx context.Context, id string) (*datatypes.SessionEntry, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[datatypes.NormalizeProviderID(id)]
	if !ok {
		return nil, nil
	}
	entry := rec.Entry
	return &entry, nil
}

// ReadTranscript returns a window of the session's events, or nil when the
// session is unknown.
func (r *Reader) ReadTranscript(ctx context.Context, id string, offset, limit int) (*datatypes.TranscriptPage, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	rec, ok := r.byID[datatypes.NormalizeProviderID(id)]
	var fullPath string
	var agent datatypes.AIAgent
	if ok {
		fullPath = rec.Entry.FullPath
		agent = rec.Entry.AIAgent
	}
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}

	// Re-parse from disk so a still-streaming session shows its newest events.
	var parsed *sessionRecord
	var err error
	if agent == datatypes.AgentCodex {
		parsed, err = parseCodexSession(fullPath)
	} else {
		parsed, err = parseClaudeSession(fullPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", id, err)
	}

	events := parsed.Events
	total := len(events)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return &datatypes.TranscriptPage{Events: events[offset:end], Total: total}, nil
}

// GetSessionSummary returns the agent-written summary for id, or nil when
// the session is unknown or has no summary record.
func (r *Reader) GetSessionSummary(ctx context.Context, id string) (*datatypes.SessionSummary, error) {
	entry, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Summary == "" {
		return nil, nil
	}
	return &datatypes.SessionSummary{SessionID: entry.SessionID, Summary: entry.Summary}, nil
}
