// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gin handlers for the session hub API.
// Handlers validate input, call into the engine/stores, and shape JSON;
// all reconciliation and caching logic lives below this layer.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/runtimestore"
)

// SessionLister is the reconciliation engine surface used by list handlers.
type SessionLister interface {
	ListUnifiedSessions(ctx context.Context, filter datatypes.SessionFilter, page datatypes.PageRequest, sortBy datatypes.SortField, order datatypes.SortOrder) (*datatypes.SessionPage, error)
}

// TranscriptReader is the transcript index surface used by read handlers.
type TranscriptReader interface {
	ListProjects(ctx context.Context) ([]datatypes.ProjectInfo, error)
	GetSession(ctx context.Context, id string) (*datatypes.SessionEntry, error)
	ReadTranscript(ctx context.Context, id string, offset, limit int) (*datatypes.TranscriptPage, error)
	GetSessionSummary(ctx context.Context, id string) (*datatypes.SessionSummary, error)
}

// PurposeProvider is the purpose cache surface.
type PurposeProvider interface {
	Get(ctx context.Context, sessionID string) (*datatypes.PurposeResult, error)
}

// RuntimeStore is the runtime session store surface used by the write path
// and the workspace tab handlers.
type RuntimeStore interface {
	CreateSession(ctx context.Context, p runtimestore.CreateParams) (datatypes.SessionRow, error)
	CompleteSession(ctx context.Context, rowID, claudeSessionID, lastAssistantMessage string) error
	SetSessionPurpose(ctx context.Context, clientSessionID, purpose string) error
	GetSession(ctx context.Context, clientSessionID string) (datatypes.SessionRow, error)
	ListTabs(ctx context.Context) ([]datatypes.WorkspaceTab, error)
	CreateTab(ctx context.Context, title, projectPath, kind string) (datatypes.WorkspaceTab, error)
	DeleteTab(ctx context.Context, id string) error
}

// MappingWriter records provider-id correlations from the launch path.
type MappingWriter interface {
	Upsert(providerSessionID, projectPath, worktreeID string, source datatypes.SessionSource, clientSessionID string) error
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
