// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/runtimestore"
)

type createAgentSessionRequest struct {
	ClientSessionID string `json:"clientSessionId"`
	ProjectPath     string `json:"projectPath" binding:"required,abspath"`
	WorktreeID      string `json:"worktreeId"`
	Message         string `json:"message" binding:"required"`
	AIAgent         string `json:"aiAgent" binding:"omitempty,oneof=claude-code codex"`
	ModelProfileID  string `json:"modelProfileId"`
	ModelVendor     string `json:"modelVendor"`
	ModelName       string `json:"modelName"`
}

type completeAgentSessionRequest struct {
	ClaudeSessionID      string `json:"claudeSessionId"`
	LastAssistantMessage string `json:"lastAssistantMessage"`
}

type setPurposeRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

// CreateAgentSession records a locally-launched agent run. The row starts
// in-flight with a pending provider id; the agent reports the concrete id on
// completion.
func CreateAgentSession(store RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAgentSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		agent := datatypes.AIAgent(req.AIAgent)
		if agent == "" {
			agent = datatypes.AgentClaudeCode
		}

		row, err := store.CreateSession(c.Request.Context(), runtimestore.CreateParams{
			ClientSessionID: req.ClientSessionID,
			ProjectPath:     req.ProjectPath,
			WorktreeID:      req.WorktreeID,
			Message:         req.Message,
			AIAgent:         agent,
			ModelProfileID:  req.ModelProfileID,
			ModelVendor:     req.ModelVendor,
			ModelName:       req.ModelName,
		})
		if err != nil {
			slog.Error("failed to create agent session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create agent session"})
			return
		}
		c.JSON(http.StatusCreated, row)
	}
}

// CompleteAgentSession closes the latest row of a session group and, when
// the agent reported a concrete session id, records the correlation so the
// next list call labels the transcript without fuzzy matching.
func CompleteAgentSession(store RuntimeStore, mappings MappingWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientSessionID := c.Param("clientSessionId")

		var req completeAgentSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		row, err := store.GetSession(c.Request.Context(), clientSessionID)
		if err != nil {
			if errors.Is(err, runtimestore.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session group not found"})
				return
			}
			slog.Error("failed to load session group", "client_session_id", clientSessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session group"})
			return
		}

		if err := store.CompleteSession(c.Request.Context(), row.ID, req.ClaudeSessionID, req.LastAssistantMessage); err != nil {
			slog.Error("failed to complete session", "row_id", row.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete session"})
			return
		}

		if !datatypes.IsPlaceholderSessionID(req.ClaudeSessionID) {
			providerID := datatypes.NormalizeProviderID(req.ClaudeSessionID)
			err := mappings.Upsert(providerID, row.ProjectPath, row.WorktreeID,
				datatypes.SourceQraftBox, row.GroupID())
			if err != nil {
				// Best effort: the reconciliation engine re-derives this
				// mapping on the next list call.
				slog.Warn("completion mapping upsert failed",
					"provider_session_id", providerID, "error", err)
			}
		}

		c.Status(http.StatusNoContent)
	}
}

// SetAgentSessionPurpose stores a resolved purpose on a session group so the
// list path can surface it without recomputation.
func SetAgentSessionPurpose(store RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientSessionID := c.Param("clientSessionId")

		var req setPurposeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := store.GetSession(c.Request.Context(), clientSessionID); err != nil {
			if errors.Is(err, runtimestore.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session group not found"})
				return
			}
			slog.Error("failed to load session group", "client_session_id", clientSessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session group"})
			return
		}

		if err := store.SetSessionPurpose(c.Request.Context(), clientSessionID, req.Purpose); err != nil {
			slog.Error("failed to set session purpose", "client_session_id", clientSessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set session purpose"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
