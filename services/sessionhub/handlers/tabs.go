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

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/runtimestore"
)

type createTabRequest struct {
	Title       string `json:"title" binding:"required"`
	ProjectPath string `json:"projectPath" binding:"required,abspath"`
	Kind        string `json:"kind" binding:"omitempty,oneof=session diff terminal"`
}

// ListTabs serves the persisted workspace tabs.
func ListTabs(store RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tabs, err := store.ListTabs(c.Request.Context())
		if err != nil {
			slog.Error("failed to list tabs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tabs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tabs": tabs})
	}
}

// CreateTab persists a new workspace tab.
func CreateTab(store RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTabRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tab, err := store.CreateTab(c.Request.Context(), req.Title, req.ProjectPath, req.Kind)
		if err != nil {
			slog.Error("failed to create tab", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tab"})
			return
		}
		c.JSON(http.StatusCreated, tab)
	}
}

// DeleteTab removes a workspace tab.
func DeleteTab(store RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("tabId")
		if err := store.DeleteTab(c.Request.Context(), id); err != nil {
			if errors.Is(err, runtimestore.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "tab not found"})
				return
			}
			slog.Error("failed to delete tab", "tab_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete tab"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
