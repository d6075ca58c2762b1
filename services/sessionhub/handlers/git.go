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
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tacogips/QraftBox-sub000/pkg/validation"
)

// gitLogEntry is one commit in the browse log.
type gitLogEntry struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

// repoPath validates the repo query parameter: absolute, existing directory.
// Returns "" after writing the error response.
func repoPath(c *gin.Context) string {
	path := c.Query("path")
	if path == "" || !filepath.IsAbs(path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path must be an absolute directory path"})
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is not an existing directory"})
		return ""
	}
	return path
}

// GitBranches lists the repository's local branches.
func GitBranches() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := repoPath(c)
		if path == "" {
			return
		}

		out, err := exec.CommandContext(c.Request.Context(), "git", "-C", path,
			"branch", "--format=%(refname:short)").Output()
		if err != nil {
			slog.Warn("git branch failed", "path", path, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "git branch failed"})
			return
		}

		var branches []string
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line != "" {
				branches = append(branches, line)
			}
		}
		c.JSON(http.StatusOK, gin.H{"branches": branches})
	}
}

// GitLog lists recent commits, optionally for one branch.
func GitLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := repoPath(c)
		if path == "" {
			return
		}
		limit, err := validation.ParseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Unit separator as field delimiter; commit subjects may contain
		// anything printable.
		args := []string{"-C", path, "log", "--pretty=format:%H%x1f%an%x1f%aI%x1f%s",
			"-n", strconv.Itoa(limit)}
		if branch := c.Query("branch"); branch != "" {
			args = append(args, branch)
		}

		out, err := exec.CommandContext(c.Request.Context(), "git", args...).Output()
		if err != nil {
			slog.Warn("git log failed", "path", path, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "git log failed"})
			return
		}

		var entries []gitLogEntry
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			parts := strings.SplitN(line, "\x1f", 4)
			if len(parts) != 4 {
				continue
			}
			entries = append(entries, gitLogEntry{
				Hash: parts[0], Author: parts[1], Date: parts[2], Subject: parts[3],
			})
		}
		c.JSON(http.StatusOK, gin.H{"commits": entries})
	}
}

// GitDiff returns the working-tree diff, optionally against a ref.
func GitDiff() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := repoPath(c)
		if path == "" {
			return
		}

		args := []string{"-C", path, "diff"}
		if ref := c.Query("ref"); ref != "" {
			args = append(args, ref)
		}

		out, err := exec.CommandContext(c.Request.Context(), "git", args...).Output()
		if err != nil {
			slog.Warn("git diff failed", "path", path, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "git diff failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"diff": string(out)})
	}
}
