// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

type fakeTranscripts struct {
	entries []datatypes.SessionEntry
	err     error
}

// ListSessions hands out fresh copies, as the real reader does; the engine
// relabels entries in place.
func (f *fakeTranscripts) ListSessions(_ context.Context, _ datatypes.SessionFilter, page datatypes.PageRequest, _ datatypes.SortField, _ datatypes.SortOrder) (*datatypes.SessionPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	sessions := make([]*datatypes.SessionEntry, 0, len(f.entries))
	for _, e := range f.entries {
		e := e
		sessions = append(sessions, &e)
	}
	return &datatypes.SessionPage{
		Sessions: sessions,
		Total:    len(sessions),
		Offset:   page.Offset,
		Limit:    page.Limit,
	}, nil
}

type fakeRuntime struct {
	completed []datatypes.SessionRow
	all       []datatypes.SessionRow
	purposes  map[string]string
	err       error
}

func (f *fakeRuntime) ListSessions(_ context.Context) ([]datatypes.SessionRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.all, nil
}

func (f *fakeRuntime) ListCompletedRows(_ context.Context) ([]datatypes.SessionRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.completed, nil
}

func (f *fakeRuntime) GetSessionPurpose(_ context.Context, clientSessionID string) (string, error) {
	return f.purposes[clientSessionID], nil
}

type fakeMappings struct {
	mu       sync.Mutex
	byID     map[string]datatypes.Mapping
	upserts  int
	writeErr error
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{byID: make(map[string]datatypes.Mapping)}
}

func (f *fakeMappings) Upsert(providerSessionID, projectPath, worktreeID string, source datatypes.SessionSource, clientSessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.byID[providerSessionID] = datatypes.Mapping{
		ProviderSessionID: providerSessionID,
		ProjectPath:       projectPath,
		WorktreeID:        worktreeID,
		Source:            source,
		ClientSessionID:   clientSessionID,
	}
	return nil
}

func (f *fakeMappings) IsQraftBoxOrigin(providerSessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[providerSessionID]
	return ok && m.Source == datatypes.SourceQraftBox, nil
}

func (f *fakeMappings) FindClientSessionID(providerSessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[providerSessionID]
	if !ok {
		return "", errors.New("not found")
	}
	return m.ClientSessionID, nil
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func listFirstPage(t *testing.T, e *Engine) *datatypes.SessionPage {
	t.Helper()
	page, err := e.ListUnifiedSessions(context.Background(), datatypes.SessionFilter{},
		datatypes.PageRequest{Limit: 50}, datatypes.SortByModified, datatypes.SortDesc)
	require.NoError(t, err)
	return page
}

func TestDedupMergeByConcreteID(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID:   "abc",
		ProjectPath: "/home/u/proj",
		FirstPrompt: "fix bug",
		Modified:    ts("2026-01-01T10:02:00Z"),
		Source:      datatypes.SourceClaudeCLI,
		AIAgent:     datatypes.AgentClaudeCode,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID:                     "row-1",
		ClientSessionID:        "grp-1",
		CurrentClaudeSessionID: "abc",
		ProjectPath:            "/home/u/proj",
		Message:                "fix bug",
		AIAgent:                datatypes.AgentClaudeCode,
		CreatedAt:              ts("2026-01-01T10:00:00Z"),
		CompletedAt:            ts("2026-01-01T10:02:00Z"),
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)

	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "abc", page.Sessions[0].SessionID)
	assert.Equal(t, datatypes.SourceQraftBox, page.Sessions[0].Source)
	assert.Equal(t, "grp-1", page.Sessions[0].QraftAISessionID)
}

func TestIdempotentCorrelation(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "abc", FirstPrompt: "fix bug", Modified: ts("2026-01-01T10:02:00Z"),
		Source: datatypes.SourceClaudeCLI,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "abc",
		ProjectPath: "/p", CompletedAt: ts("2026-01-01T10:02:00Z"),
	}}}
	mappings := newFakeMappings()
	engine := NewEngine(transcripts, runtime, mappings, nil)

	listFirstPage(t, engine)
	first := mappings.byID["abc"]
	listFirstPage(t, engine)

	assert.Equal(t, first, mappings.byID["abc"])
	assert.Equal(t, 2, mappings.upserts)
}

func TestFuzzyBindWithinWindow(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID:   "abc",
		ProjectPath: "/home/u/proj",
		FirstPrompt: "fix bug",
		Modified:    ts("2026-01-01T10:02:00Z"),
		Source:      datatypes.SourceClaudeCLI,
		AIAgent:     datatypes.AgentClaudeCode,
	}}}
	// Completed 90 seconds before the transcript's last activity.
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID:                     "row-1",
		ClientSessionID:        "grp-1",
		CurrentClaudeSessionID: "pending-xyz",
		ProjectPath:            "/home/u/proj",
		Message:                "fix bug",
		AIAgent:                datatypes.AgentClaudeCode,
		CompletedAt:            ts("2026-01-01T10:00:30Z"),
	}}}
	mappings := newFakeMappings()
	engine := NewEngine(transcripts, runtime, mappings, nil)

	page := listFirstPage(t, engine)

	require.Len(t, page.Sessions, 1)
	entry := page.Sessions[0]
	assert.Equal(t, datatypes.SourceQraftBox, entry.Source)
	assert.Equal(t, "grp-1", entry.QraftAISessionID)

	// The bind is persisted against the transcript's id.
	m, ok := mappings.byID["abc"]
	require.True(t, ok)
	assert.Equal(t, "grp-1", m.ClientSessionID)
}

func TestFuzzyBindOutsideWindow(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID:   "abc",
		ProjectPath: "/home/u/proj",
		FirstPrompt: "fix bug",
		Modified:    ts("2026-01-01T10:02:30Z"),
		Source:      datatypes.SourceClaudeCLI,
		AIAgent:     datatypes.AgentClaudeCode,
	}}}
	// Completed 150 seconds before: beyond the two-minute window.
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID:                     "row-1",
		ClientSessionID:        "grp-1",
		CurrentClaudeSessionID: "pending-xyz",
		ProjectPath:            "/home/u/proj",
		Message:                "fix bug",
		AIAgent:                datatypes.AgentClaudeCode,
		CompletedAt:            ts("2026-01-01T10:00:00Z"),
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)

	// No bind: the transcript entry stays CLI-native and the runtime row is
	// synthesized as its own qraftbox entry.
	require.Len(t, page.Sessions, 2)
	var cli, qb *datatypes.SessionEntry
	for _, e := range page.Sessions {
		if e.Source == datatypes.SourceQraftBox {
			qb = e
		} else {
			cli = e
		}
	}
	require.NotNil(t, cli)
	require.NotNil(t, qb)
	assert.Equal(t, "abc", cli.SessionID)
	assert.Empty(t, cli.QraftAISessionID)
	assert.Equal(t, "grp-1", qb.QraftAISessionID)
}

func TestFuzzyBindNormalizesPrompts(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID:   "abc",
		FirstPrompt: "Fix   Bug",
		Modified:    ts("2026-01-01T10:02:00Z"),
		Source:      datatypes.SourceClaudeCLI,
		AIAgent:     datatypes.AgentClaudeCode,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-xyz",
		Message:     "<qb-context path=\"/p\">noise</qb-context>fix bug",
		AIAgent:     datatypes.AgentClaudeCode,
		CompletedAt: ts("2026-01-01T10:01:00Z"),
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "grp-1", page.Sessions[0].QraftAISessionID)
}

func TestActiveSessionBinding(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "codex-live", FirstPrompt: "add metrics",
		Modified: ts("2026-01-01T10:02:00Z"),
		Source:   datatypes.SourceCodexCLI, AIAgent: datatypes.AgentCodex,
	}}}
	runtime := &fakeRuntime{all: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-live",
		CurrentClaudeSessionID: "codex:codex-live",
		AIAgent:                datatypes.AgentCodex,
		CreatedAt:              ts("2026-01-01T10:00:00Z"),
		// Not completed: still streaming.
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, datatypes.SourceQraftBox, page.Sessions[0].Source)
	assert.Equal(t, "grp-live", page.Sessions[0].QraftAISessionID)
}

func TestMergeRuntimeOnlyRowsGroupedAndFiltered(t *testing.T) {
	transcripts := &fakeTranscripts{}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{
		{
			ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-a",
			ProjectPath: "/home/u/alpha", Message: "first run",
			CompletedAt: ts("2026-01-01T10:00:00Z"),
		},
		{
			ID: "row-2", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-b",
			ProjectPath: "/home/u/alpha", Message: "resumed run",
			CompletedAt: ts("2026-01-01T11:00:00Z"),
		},
		{
			ID: "row-3", ClientSessionID: "grp-2", CurrentClaudeSessionID: "pending-c",
			ProjectPath: "/home/u/beta", Message: "other project",
			CompletedAt: ts("2026-01-01T12:00:00Z"),
		},
	}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page, err := engine.ListUnifiedSessions(context.Background(),
		datatypes.SessionFilter{WorkingDirectoryPrefix: "/home/u/alpha"},
		datatypes.PageRequest{Limit: 50}, datatypes.SortByModified, datatypes.SortDesc)
	require.NoError(t, err)

	// One entry per group, newest row wins, beta filtered out.
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "grp-1", page.Sessions[0].QraftAISessionID)
	assert.Equal(t, "resumed run", page.Sessions[0].FirstPrompt)
	assert.Equal(t, 1, page.Total)
}

func TestPendingRowScenario(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID:   "abc",
		FirstPrompt: "fix bug",
		Modified:    ts("2026-01-01T10:02:00Z"),
		Source:      datatypes.SourceClaudeCLI,
		AIAgent:     datatypes.AgentClaudeCode,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-xyz",
		Message: "fix bug", AIAgent: datatypes.AgentClaudeCode,
		CompletedAt: ts("2026-01-01T10:00:30Z"),
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)

	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "abc", page.Sessions[0].SessionID)
	assert.Equal(t, datatypes.SourceQraftBox, page.Sessions[0].Source)
	assert.Equal(t, "grp-1", page.Sessions[0].QraftAISessionID)
	assert.Equal(t, 1, page.Total)
}

func TestPurposeOverride(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{
		{
			SessionID: "abc", FirstPrompt: "fix bug",
			Modified: ts("2026-01-01T10:02:00Z"),
			Source:   datatypes.SourceClaudeCLI, AIAgent: datatypes.AgentClaudeCode,
		},
		{
			SessionID: "native", FirstPrompt: "untouched prompt",
			Modified: ts("2026-01-01T09:00:00Z"),
			Source:   datatypes.SourceClaudeCLI, AIAgent: datatypes.AgentClaudeCode,
		},
	}}
	runtime := &fakeRuntime{
		completed: []datatypes.SessionRow{{
			ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "abc",
			CompletedAt: ts("2026-01-01T10:02:00Z"),
		}},
		purposes: map[string]string{"grp-1": "Fixing the login bug"},
	}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)

	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "Fixing the login bug", page.Sessions[0].FirstPrompt)
	assert.Equal(t, "untouched prompt", page.Sessions[1].FirstPrompt)
}

func TestModelMetadataAttached(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "abc", FirstPrompt: "fix bug",
		Modified: ts("2026-01-01T10:02:00Z"),
		Source:   datatypes.SourceClaudeCLI, AIAgent: datatypes.AgentClaudeCode,
	}}}
	runtime := &fakeRuntime{
		completed: []datatypes.SessionRow{{
			ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "abc",
			CompletedAt: ts("2026-01-01T10:02:00Z"),
		}},
		all: []datatypes.SessionRow{{
			ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "abc",
			ModelProfileID: "prof-1", ModelVendor: "anthropic", ModelName: "claude-sonnet",
			CreatedAt:   ts("2026-01-01T10:00:00Z"),
			CompletedAt: ts("2026-01-01T10:02:00Z"),
		}},
	}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "prof-1", page.Sessions[0].ModelProfileID)
	assert.Equal(t, "anthropic", page.Sessions[0].ModelVendor)
	assert.Equal(t, "claude-sonnet", page.Sessions[0].ModelName)
}

func TestMergedListSortedModifiedDesc(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "old", FirstPrompt: "old work",
		Modified: ts("2026-01-01T09:00:00Z"),
		Source:   datatypes.SourceClaudeCLI,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-a",
		Message: "newer work", CompletedAt: ts("2026-01-01T10:00:00Z"),
	}}}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	// Even when asc is requested, the merged page comes back modified desc.
	page, err := engine.ListUnifiedSessions(context.Background(), datatypes.SessionFilter{},
		datatypes.PageRequest{Limit: 50}, datatypes.SortByModified, datatypes.SortAsc)
	require.NoError(t, err)

	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "grp-1", page.Sessions[0].QraftAISessionID)
	assert.Equal(t, "old", page.Sessions[1].SessionID)
}

func TestRuntimeFailureDegrades(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "abc", FirstPrompt: "fix bug",
		Modified: ts("2026-01-01T10:02:00Z"),
		Source:   datatypes.SourceClaudeCLI,
	}}}
	runtime := &fakeRuntime{err: errors.New("db locked")}
	engine := NewEngine(transcripts, runtime, newFakeMappings(), nil)

	page := listFirstPage(t, engine)

	assert.True(t, page.Degraded)
	assert.NotEmpty(t, page.DegradedReason)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, datatypes.SourceClaudeCLI, page.Sessions[0].Source)
}

func TestTranscriptFailureIsFatal(t *testing.T) {
	transcripts := &fakeTranscripts{err: errors.New("index unreadable")}
	engine := NewEngine(transcripts, &fakeRuntime{}, newFakeMappings(), nil)

	_, err := engine.ListUnifiedSessions(context.Background(), datatypes.SessionFilter{},
		datatypes.PageRequest{Limit: 50}, datatypes.SortByModified, datatypes.SortDesc)
	assert.Error(t, err)
}

func TestLaterPagesServedFromTranscriptsAlone(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "abc", FirstPrompt: "fix bug",
		Modified: ts("2026-01-01T10:02:00Z"),
		Source:   datatypes.SourceClaudeCLI,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "pending-a",
		Message: "merged only on page one", CompletedAt: ts("2026-01-01T11:00:00Z"),
	}}}
	mappings := newFakeMappings()
	engine := NewEngine(transcripts, runtime, mappings, nil)

	page, err := engine.ListUnifiedSessions(context.Background(), datatypes.SessionFilter{},
		datatypes.PageRequest{Offset: 50, Limit: 50}, datatypes.SortByModified, datatypes.SortDesc)
	require.NoError(t, err)

	require.Len(t, page.Sessions, 1)
	assert.Equal(t, datatypes.SourceClaudeCLI, page.Sessions[0].Source)
	assert.Equal(t, 0, mappings.upserts)
}

func TestMappingWriteFailureIsSwallowed(t *testing.T) {
	transcripts := &fakeTranscripts{entries: []datatypes.SessionEntry{{
		SessionID: "abc", FirstPrompt: "fix bug",
		Modified: ts("2026-01-01T10:02:00Z"),
		Source:   datatypes.SourceClaudeCLI,
	}}}
	runtime := &fakeRuntime{completed: []datatypes.SessionRow{{
		ID: "row-1", ClientSessionID: "grp-1", CurrentClaudeSessionID: "abc",
		CompletedAt: ts("2026-01-01T10:02:00Z"),
	}}}
	mappings := newFakeMappings()
	mappings.writeErr = errors.New("disk full")
	engine := NewEngine(transcripts, runtime, mappings, nil)

	page := listFirstPage(t, engine)
	require.Len(t, page.Sessions, 1)
	// The entry keeps its old label this round; the request itself succeeds.
	assert.Equal(t, datatypes.SourceClaudeCLI, page.Sessions[0].Source)
}

func TestNormalizePrompt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fix   Bug", "fix bug"},
		{"<qb-context p=\"x\">noise</qb-context>Fix Bug", "fix bug"},
		{"  FIX\nBUG  ", "fix bug"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePrompt(tt.in))
	}
}
