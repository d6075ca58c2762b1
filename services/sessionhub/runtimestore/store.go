// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runtimestore owns the SQLite-backed table of AI sessions launched
// by this tool, plus the workspace tabs the companion UI persists.
//
// The reconciliation engine only reads snapshots from this store; all row
// mutation happens through the launch/complete glue routes.
package runtimestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

// ErrNotFound is returned when no row matches the queried id.
var ErrNotFound = errors.New("runtime session not found")

// Store implements the runtime session source over SQLite in WAL mode.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates and initializes the runtime session database.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ai_sessions (
		id                 TEXT PRIMARY KEY,
		client_session_id  TEXT NOT NULL DEFAULT '',
		claude_session_id  TEXT NOT NULL DEFAULT '',
		project_path       TEXT NOT NULL DEFAULT '',
		worktree_id        TEXT NOT NULL DEFAULT '',
		message            TEXT NOT NULL DEFAULT '',
		last_assistant_msg TEXT NOT NULL DEFAULT '',
		purpose            TEXT NOT NULL DEFAULT '',
		ai_agent           TEXT NOT NULL DEFAULT 'claude-code',
		model_profile_id   TEXT NOT NULL DEFAULT '',
		model_vendor       TEXT NOT NULL DEFAULT '',
		model_name         TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL,
		started_at         TEXT NOT NULL DEFAULT '',
		completed_at       TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_ai_sessions_client ON ai_sessions(client_session_id);
	CREATE INDEX IF NOT EXISTS idx_ai_sessions_completed ON ai_sessions(completed_at);

	CREATE TABLE IF NOT EXISTS workspace_tabs (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		project_path TEXT NOT NULL DEFAULT '',
		kind         TEXT NOT NULL DEFAULT 'session',
		created_at   TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateParams holds the fields recorded when a session is launched.
type CreateParams struct {
	ClientSessionID string
	ProjectPath     string
	WorktreeID      string
	Message         string
	AIAgent         datatypes.AIAgent
	ModelProfileID  string
	ModelVendor     string
	ModelName       string
}

// CreateSession inserts a new in-flight row. The provider session id starts
// as a pending placeholder until the external agent reports a concrete one.
// An empty ClientSessionID gets a fresh group id.
func (s *Store) CreateSession(ctx context.Context, p CreateParams) (datatypes.SessionRow, error) {
	if p.Message == "" {
		return datatypes.SessionRow{}, errors.New("message is empty")
	}
	if p.AIAgent == "" {
		p.AIAgent = datatypes.AgentClaudeCode
	}
	if p.ClientSessionID == "" {
		p.ClientSessionID = uuid.NewString()
	}

	row := datatypes.SessionRow{
		ID:                     uuid.NewString(),
		ClientSessionID:        p.ClientSessionID,
		CurrentClaudeSessionID: datatypes.PlaceholderIDPrefix + uuid.NewString(),
		ProjectPath:            p.ProjectPath,
		WorktreeID:             p.WorktreeID,
		Message:                p.Message,
		AIAgent:                p.AIAgent,
		ModelProfileID:         p.ModelProfileID,
		ModelVendor:            p.ModelVendor,
		ModelName:              p.ModelName,
		CreatedAt:              time.Now().UTC(),
		StartedAt:              time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_sessions (
			id, client_session_id, claude_session_id, project_path, worktree_id,
			message, ai_agent, model_profile_id, model_vendor, model_name,
			created_at, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.ClientSessionID, row.CurrentClaudeSessionID, row.ProjectPath,
		row.WorktreeID, row.Message, string(row.AIAgent), row.ModelProfileID,
		row.ModelVendor, row.ModelName, formatTime(row.CreatedAt), formatTime(row.StartedAt))
	if err != nil {
		return datatypes.SessionRow{}, fmt.Errorf("insert session row: %w", err)
	}
	return row, nil
}

// CompleteSession marks a row completed and records the final assistant
// message. When the external agent reported a concrete session id it replaces
// the pending placeholder.
func (s *Store) CompleteSession(ctx context.Context, rowID, claudeSessionID, lastAssistantMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_sessions SET
			claude_session_id = CASE WHEN ? != '' THEN ? ELSE claude_session_id END,
			last_assistant_msg = ?,
			completed_at = ?
		WHERE id = ?`,
		claudeSessionID, claudeSessionID, lastAssistantMessage,
		formatTime(time.Now().UTC()), rowID)
	if err != nil {
		return fmt.Errorf("complete session row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSessionPurpose stores the resolved purpose on every row of a session
// group so the list path can surface it without recomputation.
func (s *Store) SetSessionPurpose(ctx context.Context, clientSessionID, purpose string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_sessions SET purpose = ? WHERE client_session_id = ?`,
		purpose, clientSessionID)
	if err != nil {
		return fmt.Errorf("set session purpose: %w", err)
	}
	return nil
}

// ListSessions returns all rows, in-flight included, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]datatypes.SessionRow, error) {
	return s.queryRows(ctx, `SELECT `+rowColumns+` FROM ai_sessions ORDER BY created_at DESC`)
}

// ListCompletedRows returns only rows that have finished, newest first.
func (s *Store) ListCompletedRows(ctx context.Context) ([]datatypes.SessionRow, error) {
	return s.queryRows(ctx,
		`SELECT `+rowColumns+` FROM ai_sessions WHERE completed_at != '' ORDER BY completed_at DESC`)
}

// GetSession returns the most recent row of a session group.
func (s *Store) GetSession(ctx context.Context, clientSessionID string) (datatypes.SessionRow, error) {
	rows, err := s.queryRows(ctx,
		`SELECT `+rowColumns+` FROM ai_sessions WHERE client_session_id = ? ORDER BY created_at DESC LIMIT 1`,
		clientSessionID)
	if err != nil {
		return datatypes.SessionRow{}, err
	}
	if len(rows) == 0 {
		return datatypes.SessionRow{}, ErrNotFound
	}
	return rows[0], nil
}

// GetSessionPurpose returns the stored purpose for a session group, or ""
// when none has been recorded.
func (s *Store) GetSessionPurpose(ctx context.Context, clientSessionID string) (string, error) {
	row, err := s.GetSession(ctx, clientSessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Purpose, nil
}

const rowColumns = `id, client_session_id, claude_session_id, project_path, worktree_id,
	message, last_assistant_msg, purpose, ai_agent, model_profile_id, model_vendor,
	model_name, created_at, started_at, completed_at`

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]datatypes.SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query session rows: %w", err)
	}
	defer rows.Close()

	var out []datatypes.SessionRow
	for rows.Next() {
		var r datatypes.SessionRow
		var agent, createdAt, startedAt, completedAt string
		if err := rows.Scan(&r.ID, &r.ClientSessionID, &r.CurrentClaudeSessionID,
			&r.ProjectPath, &r.WorktreeID, &r.Message, &r.LastAssistantMessage,
			&r.Purpose, &agent, &r.ModelProfileID, &r.ModelVendor, &r.ModelName,
			&createdAt, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		r.AIAgent = datatypes.AIAgent(agent)
		r.CreatedAt = parseTime(createdAt)
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseTime(completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTabs returns all workspace tabs, oldest first.
func (s *Store) ListTabs(ctx context.Context) ([]datatypes.WorkspaceTab, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, project_path, kind, created_at FROM workspace_tabs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer rows.Close()

	var out []datatypes.WorkspaceTab
	for rows.Next() {
		var tab datatypes.WorkspaceTab
		var createdAt string
		if err := rows.Scan(&tab.ID, &tab.Title, &tab.ProjectPath, &tab.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		tab.CreatedAt = parseTime(createdAt)
		out = append(out, tab)
	}
	return out, rows.Err()
}

// CreateTab persists a new workspace tab.
func (s *Store) CreateTab(ctx context.Context, title, projectPath, kind string) (datatypes.WorkspaceTab, error) {
	if kind == "" {
		kind = "session"
	}
	tab := datatypes.WorkspaceTab{
		ID:          uuid.NewString(),
		Title:       title,
		ProjectPath: projectPath,
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_tabs (id, title, project_path, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		tab.ID, tab.Title, tab.ProjectPath, tab.Kind, formatTime(tab.CreatedAt))
	if err != nil {
		return datatypes.WorkspaceTab{}, fmt.Errorf("insert tab: %w", err)
	}
	return tab, nil
}

// DeleteTab removes a workspace tab.
func (s *Store) DeleteTab(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspace_tabs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tab: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
