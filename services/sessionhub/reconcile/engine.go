// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reconcile merges the transcript index with the runtime session
// store into one unified session list.
//
// # Description
//
// CLI agents write transcripts on their own; sessions launched through this
// tool also leave a row in the runtime store. The engine correlates the two
// views per request: it relabels transcript entries that belong to a local
// session group, binds still-pending rows to their transcripts by prompt and
// time proximity, and appends runtime-only sessions the index has never seen.
//
// Correlation writes are best effort. A mapping upsert that fails costs one
// label this request and is retried implicitly on the next list call. A
// runtime store failure degrades the page to transcript-only; a transcript
// failure is fatal.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/observability"
)

// bindWindow is the maximum gap between a runtime row's completion and a
// transcript's last activity for a fuzzy prompt match to bind them.
const bindWindow = 2 * time.Minute

// TranscriptSource is the slice of the transcript reader the engine needs.
type TranscriptSource interface {
	ListSessions(ctx context.Context, filter datatypes.SessionFilter, page datatypes.PageRequest, sortBy datatypes.SortField, order datatypes.SortOrder) (*datatypes.SessionPage, error)
}

// RuntimeSource is the slice of the runtime session store the engine needs.
type RuntimeSource interface {
	ListSessions(ctx context.Context) ([]datatypes.SessionRow, error)
	ListCompletedRows(ctx context.Context) ([]datatypes.SessionRow, error)
	GetSessionPurpose(ctx context.Context, clientSessionID string) (string, error)
}

// MappingStore is the durable provider-id to session-group correlation store.
type MappingStore interface {
	Upsert(providerSessionID, projectPath, worktreeID string, source datatypes.SessionSource, clientSessionID string) error
	IsQraftBoxOrigin(providerSessionID string) (bool, error)
	FindClientSessionID(providerSessionID string) (string, error)
}

// Engine reconciles transcript entries with runtime session rows.
type Engine struct {
	transcripts TranscriptSource
	runtime     RuntimeSource
	mappings    MappingStore
	logger      *slog.Logger
}

// NewEngine wires a reconciliation engine.
func NewEngine(transcripts TranscriptSource, runtime RuntimeSource, mappings MappingStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		transcripts: transcripts,
		runtime:     runtime,
		mappings:    mappings,
		logger:      logger,
	}
}

// ListUnifiedSessions returns one page of the merged session list. Only the
// first page is augmented with runtime rows; later pages come straight from
// the transcript index, trading pagination consistency for a complete first
// page.
func (e *Engine) ListUnifiedSessions(ctx context.Context, filter datatypes.SessionFilter, page datatypes.PageRequest, sortBy datatypes.SortField, order datatypes.SortOrder) (*datatypes.SessionPage, error) {
	if page.Offset != 0 {
		return e.transcripts.ListSessions(ctx, filter, page, sortBy, order)
	}

	var (
		transcriptPage *datatypes.SessionPage
		completedRows  []datatypes.SessionRow
		allRows        []datatypes.SessionRow
		runtimeErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transcriptPage, err = e.transcripts.ListSessions(gctx, filter, page, sortBy, order)
		if err != nil {
			return fmt.Errorf("list transcript sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if completedRows, err = e.runtime.ListCompletedRows(gctx); err != nil {
			runtimeErr = err
			return nil
		}
		if allRows, err = e.runtime.ListSessions(gctx); err != nil {
			runtimeErr = err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if runtimeErr != nil {
		e.logger.Warn("runtime store unavailable, serving transcript-only page", "error", runtimeErr)
		transcriptPage.Degraded = true
		transcriptPage.DegradedReason = "runtime session store unavailable"
		observability.CountDegradedPage()
		return transcriptPage, nil
	}

	e.correlateKnownMappings(completedRows)
	e.labelKnownSessions(transcriptPage.Sessions)

	claimed := e.fuzzyBindPendingRows(transcriptPage.Sessions, completedRows)
	e.bindActiveSessions(transcriptPage.Sessions, allRows, claimed)

	added := e.mergeRuntimeOnlyRows(transcriptPage, completedRows, claimed, filter)
	observability.CountMergedRows(added)

	// The merged list is always re-sorted modified desc, ignoring the
	// requested sort. Known inconsistency, kept deliberately; see DESIGN.md.
	sort.SliceStable(transcriptPage.Sessions, func(i, j int) bool {
		return transcriptPage.Sessions[i].Modified.After(transcriptPage.Sessions[j].Modified)
	})
	if page.Limit > 0 && len(transcriptPage.Sessions) > page.Limit {
		transcriptPage.Sessions = transcriptPage.Sessions[:page.Limit]
	}
	transcriptPage.Total += added
	transcriptPage.Offset = 0

	e.applyPurposeOverride(ctx, transcriptPage.Sessions)
	e.attachModelMetadata(transcriptPage.Sessions, allRows)

	return transcriptPage, nil
}

// correlateKnownMappings re-derives mappings from completed rows that carry a
// concrete provider id. Running this every list call keeps the mapping store
// self-healing: a lost write is repaired on the next request.
func (e *Engine) correlateKnownMappings(completedRows []datatypes.SessionRow) {
	for i := range completedRows {
		row := &completedRows[i]
		if datatypes.IsPlaceholderSessionID(row.CurrentClaudeSessionID) {
			continue
		}
		providerID := datatypes.NormalizeProviderID(row.CurrentClaudeSessionID)
		err := e.mappings.Upsert(providerID, row.ProjectPath, row.WorktreeID, datatypes.SourceQraftBox, row.GroupID())
		if err != nil {
			e.logger.Warn("mapping upsert failed", "provider_session_id", providerID, "error", err)
		}
	}
}

// labelKnownSessions marks transcript entries already present in the mapping
// store. Both the raw and the normalized id are checked: mappings written by
// the launch path may carry the agent-wrapped form.
func (e *Engine) labelKnownSessions(entries []*datatypes.SessionEntry) {
	for _, entry := range entries {
		for _, id := range []string{entry.SessionID, datatypes.NormalizeProviderID(entry.SessionID)} {
			origin, err := e.mappings.IsQraftBoxOrigin(id)
			if err != nil {
				e.logger.Warn("mapping lookup failed", "provider_session_id", id, "error", err)
				continue
			}
			if !origin {
				continue
			}
			entry.Source = datatypes.SourceQraftBox
			if clientID, err := e.mappings.FindClientSessionID(id); err == nil && clientID != "" {
				entry.QraftAISessionID = clientID
			}
			break
		}
	}
}

// fuzzyBindPendingRows binds completed rows whose agent never reported a
// concrete session id. Only Claude Code needs this: its id arrives via a
// hook that can be missed, while Codex ids are captured at launch. Matching
// is greedy, at most one entry per row, ties broken by smallest time delta.
func (e *Engine) fuzzyBindPendingRows(entries []*datatypes.SessionEntry, completedRows []datatypes.SessionRow) map[string]bool {
	claimed := make(map[string]bool)
	bound := make(map[*datatypes.SessionEntry]bool)

	for i := range completedRows {
		row := &completedRows[i]
		if !datatypes.IsPlaceholderSessionID(row.CurrentClaudeSessionID) {
			continue
		}
		if row.AIAgent != datatypes.AgentClaudeCode {
			continue
		}
		rowPrompt := normalizePrompt(row.Message)
		if rowPrompt == "" {
			continue
		}

		var best *datatypes.SessionEntry
		var bestDelta time.Duration
		for _, entry := range entries {
			if bound[entry] || entry.Source == datatypes.SourceQraftBox {
				continue
			}
			if normalizePrompt(entry.FirstPrompt) != rowPrompt {
				continue
			}
			delta := row.CompletedAt.Sub(entry.Modified)
			if delta < 0 {
				delta = -delta
			}
			if delta > bindWindow {
				continue
			}
			if best == nil || delta < bestDelta {
				best = entry
				bestDelta = delta
			}
		}
		if best == nil {
			continue
		}

		best.Source = datatypes.SourceQraftBox
		best.QraftAISessionID = row.GroupID()
		bound[best] = true
		claimed[row.GroupID()] = true

		providerID := datatypes.NormalizeProviderID(best.SessionID)
		err := e.mappings.Upsert(providerID, row.ProjectPath, row.WorktreeID, datatypes.SourceQraftBox, row.GroupID())
		if err != nil {
			e.logger.Warn("fuzzy-bind mapping upsert failed", "provider_session_id", providerID, "error", err)
		}
	}
	return claimed
}

// bindActiveSessions relabels entries whose id matches a still-running
// runtime row, so streaming sessions are attributed without waiting for
// completion.
func (e *Engine) bindActiveSessions(entries []*datatypes.SessionEntry, allRows []datatypes.SessionRow, claimed map[string]bool) {
	active := make(map[string]*datatypes.SessionRow)
	for i := range allRows {
		row := &allRows[i]
		if row.Completed() || datatypes.IsPlaceholderSessionID(row.CurrentClaudeSessionID) {
			continue
		}
		active[datatypes.NormalizeProviderID(row.CurrentClaudeSessionID)] = row
	}
	if len(active) == 0 {
		return
	}

	for _, entry := range entries {
		row, ok := active[datatypes.NormalizeProviderID(entry.SessionID)]
		if !ok {
			continue
		}
		entry.Source = datatypes.SourceQraftBox
		entry.QraftAISessionID = row.GroupID()
		claimed[row.GroupID()] = true
	}
}

// mergeRuntimeOnlyRows appends sessions that exist only in the runtime store,
// one synthesized entry per session group. Returns the number of entries
// added.
func (e *Engine) mergeRuntimeOnlyRows(page *datatypes.SessionPage, completedRows []datatypes.SessionRow, claimed map[string]bool, filter datatypes.SessionFilter) int {
	presentGroups := make(map[string]bool)
	presentIDs := make(map[string]bool)
	for _, entry := range page.Sessions {
		if entry.QraftAISessionID != "" {
			presentGroups[entry.QraftAISessionID] = true
		}
		presentIDs[datatypes.NormalizeProviderID(entry.SessionID)] = true
	}

	// Most recent completed row per group wins.
	latest := make(map[string]*datatypes.SessionRow)
	for i := range completedRows {
		row := &completedRows[i]
		group := row.GroupID()
		if cur, ok := latest[group]; !ok || row.CompletedAt.After(cur.CompletedAt) {
			latest[group] = row
		}
	}

	added := 0
	for group, row := range latest {
		if claimed[group] || presentGroups[group] {
			continue
		}
		if !datatypes.IsPlaceholderSessionID(row.CurrentClaudeSessionID) &&
			presentIDs[datatypes.NormalizeProviderID(row.CurrentClaudeSessionID)] {
			continue
		}
		if filter.WorkingDirectoryPrefix != "" && !strings.HasPrefix(row.ProjectPath, filter.WorkingDirectoryPrefix) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(row.Message), strings.ToLower(filter.Search)) {
			continue
		}

		page.Sessions = append(page.Sessions, synthesizeEntry(row))
		added++
	}
	return added
}

// synthesizeEntry builds a list entry from a runtime row for sessions the
// transcript index has never seen. Message counts stay zero: without a
// transcript there is nothing to count.
func synthesizeEntry(row *datatypes.SessionRow) *datatypes.SessionEntry {
	modified := row.CompletedAt
	if modified.IsZero() {
		modified = row.CreatedAt
	}
	return &datatypes.SessionEntry{
		SessionID:        datatypes.NormalizeProviderID(row.CurrentClaudeSessionID),
		ProjectPath:      row.ProjectPath,
		FirstPrompt:      row.Message,
		Created:          row.CreatedAt,
		Modified:         modified,
		Source:           datatypes.SourceQraftBox,
		AIAgent:          row.AIAgent,
		QraftAISessionID: row.GroupID(),
		ModelProfileID:   row.ModelProfileID,
		ModelVendor:      row.ModelVendor,
		ModelName:        row.ModelName,
	}
}

// applyPurposeOverride swaps the literal first prompt for the stored purpose
// on locally-launched sessions. CLI-native sessions keep their raw prompt.
func (e *Engine) applyPurposeOverride(ctx context.Context, entries []*datatypes.SessionEntry) {
	for _, entry := range entries {
		if entry.Source != datatypes.SourceQraftBox || entry.QraftAISessionID == "" {
			continue
		}
		purpose, err := e.runtime.GetSessionPurpose(ctx, entry.QraftAISessionID)
		if err != nil {
			e.logger.Warn("purpose lookup failed", "client_session_id", entry.QraftAISessionID, "error", err)
			continue
		}
		if purpose != "" {
			entry.FirstPrompt = purpose
		}
	}
}

// attachModelMetadata copies model identity from the newest runtime row of
// each entry's session group.
func (e *Engine) attachModelMetadata(entries []*datatypes.SessionEntry, allRows []datatypes.SessionRow) {
	latest := make(map[string]*datatypes.SessionRow)
	for i := range allRows {
		row := &allRows[i]
		group := row.GroupID()
		if cur, ok := latest[group]; !ok || row.CreatedAt.After(cur.CreatedAt) {
			latest[group] = row
		}
	}

	for _, entry := range entries {
		if entry.QraftAISessionID == "" {
			continue
		}
		row, ok := latest[entry.QraftAISessionID]
		if !ok {
			continue
		}
		if row.ModelProfileID != "" {
			entry.ModelProfileID = row.ModelProfileID
		}
		if row.ModelVendor != "" {
			entry.ModelVendor = row.ModelVendor
		}
		if row.ModelName != "" {
			entry.ModelName = row.ModelName
		}
	}
}

// Launch-path tags injected into stored prompts; stripped before comparison.
var (
	promptTagRE   = regexp.MustCompile(`(?s)<qb-[a-zA-Z0-9_-]+[^>]*>.*?</qb-[a-zA-Z0-9_-]+>|</?qb-[a-zA-Z0-9_-]+[^>]*>`)
	promptSpaceRE = regexp.MustCompile(`\s+`)
)

// normalizePrompt reduces a prompt to a comparable form: tags stripped,
// whitespace collapsed, lowercased.
func normalizePrompt(s string) string {
	s = promptTagRE.ReplaceAllString(s, "")
	s = promptSpaceRE.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
