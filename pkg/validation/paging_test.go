// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"testing"
	"time"
)

func TestParseOffset(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"25", 25, false},
		{"-1", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
	}
	for _, c := range cases {
		got, err := ParseOffset(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseOffset(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("ParseOffset(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", DefaultLimit, false},
		{"1", 1, false},
		{"200", 200, false},
		{"500", MaxLimit, false}, // capped, not rejected
		{"0", 0, true},
		{"-5", 0, true},
		{"x", 0, true},
	}
	for _, c := range cases {
		got, err := ParseLimit(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLimit(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("ParseLimit(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSortField(t *testing.T) {
	if got, err := ParseSortField(""); err != nil || got != "modified" {
		t.Errorf("default sort field = %q, %v", got, err)
	}
	if _, err := ParseSortField("size"); err == nil {
		t.Error("unknown sort field should be rejected")
	}
}

func TestParseSortOrder(t *testing.T) {
	if got, err := ParseSortOrder(""); err != nil || got != "desc" {
		t.Errorf("default sort order = %q, %v", got, err)
	}
	if _, err := ParseSortOrder("descending"); err == nil {
		t.Error("unknown sort order should be rejected")
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("from", "2026-01-01T10:00:00Z")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	want := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTimestamp = %v, want %v", got, want)
	}

	if zero, err := ParseTimestamp("from", ""); err != nil || !zero.IsZero() {
		t.Errorf("empty timestamp should be zero time, got %v %v", zero, err)
	}
	if _, err := ParseTimestamp("from", "yesterday"); err == nil {
		t.Error("malformed timestamp should be rejected")
	}
}
