// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-supplied query
// parameters. The session core assumes pre-validated input, so every numeric
// or enumerated query value passes through here before reaching it.
package validation

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultLimit is used when a list request omits the limit parameter.
	DefaultLimit = 50

	// MaxLimit caps the page size a client may request.
	MaxLimit = 200
)

// ParseOffset validates an offset query value as a non-negative integer.
// An empty string means 0.
func ParseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("offset must be an integer, got %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("offset must be >= 0, got %d", n)
	}
	return n, nil
}

// ParseLimit validates a limit query value as a positive integer capped at
// MaxLimit. An empty string means DefaultLimit.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer, got %q", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("limit must be > 0, got %d", n)
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}

// ParseSortField validates a sortBy query value against the allowed fields.
// An empty string means "modified".
func ParseSortField(raw string) (string, error) {
	switch raw {
	case "":
		return "modified", nil
	case "modified", "created":
		return raw, nil
	default:
		return "", fmt.Errorf("sortBy must be one of modified, created; got %q", raw)
	}
}

// ParseSortOrder validates a sortOrder query value. An empty string means
// "desc".
func ParseSortOrder(raw string) (string, error) {
	switch raw {
	case "":
		return "desc", nil
	case "asc", "desc":
		return raw, nil
	default:
		return "", fmt.Errorf("sortOrder must be asc or desc, got %q", raw)
	}
}

// ParseTimestamp validates an optional ISO-8601 timestamp query value.
// An empty string returns the zero time.
func ParseTimestamp(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp, got %q", name, raw)
	}
	return t, nil
}
