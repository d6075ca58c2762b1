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

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/purpose"
)

// GetSessionPurpose serves a session's resolved purpose. The purpose always
// resolves for a known session: summarizer failures come back as a fallback
// result, never as an error.
func GetSessionPurpose(cache PurposeProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		result, err := cache.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, purpose.ErrUnknownSession) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to resolve purpose", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve purpose"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
