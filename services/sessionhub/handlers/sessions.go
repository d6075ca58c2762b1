// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tacogips/QraftBox-sub000/pkg/validation"
	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

// ListSessions serves the unified session list.
func ListSessions(engine SessionLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, err := validation.ParseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit, err := validation.ParseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sortBy, err := validation.ParseSortField(c.Query("sortBy"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := validation.ParseSortOrder(c.Query("sortOrder"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from, err := validation.ParseTimestamp("from", c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to, err := validation.ParseTimestamp("to", c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		filter := datatypes.SessionFilter{
			WorkingDirectoryPrefix: c.Query("workingDirectory"),
			Source:                 datatypes.SessionSource(c.Query("source")),
			GitBranch:              c.Query("branch"),
			Search:                 c.Query("search"),
			From:                   from,
			To:                     to,
		}

		page, err := engine.ListUnifiedSessions(c.Request.Context(), filter,
			datatypes.PageRequest{Offset: offset, Limit: limit},
			datatypes.SortField(sortBy), datatypes.SortOrder(order))
		if err != nil {
			slog.Error("failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// GetSession serves one session's index entry.
func GetSession(reader TranscriptReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		entry, err := reader.GetSession(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// GetTranscript serves one page of a session's event stream.
func GetTranscript(reader TranscriptReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		offset, err := validation.ParseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit, err := validation.ParseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, err := reader.ReadTranscript(c.Request.Context(), id, offset, limit)
		if err != nil {
			slog.Error("failed to read transcript", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read transcript"})
			return
		}
		if page == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// GetSessionSummary serves the agent-written summary of a session, when
// the transcript carries one.
func GetSessionSummary(reader TranscriptReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		summary, err := reader.GetSessionSummary(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get session summary", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session summary"})
			return
		}
		if summary == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no summary for session"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// ListProjects serves the distinct project paths known to the index.
func ListProjects(reader TranscriptReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := reader.ListProjects(c.Request.Context())
		if err != nil {
			slog.Error("failed to list projects", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}
