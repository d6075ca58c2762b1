package datatypes

import (
	"testing"
	"time"
)

func TestNormalizeProviderID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"codex:0199a213-81ef-7df1", "0199a213-81ef-7df1"},
		{"0199a213-81ef-7df1", "0199a213-81ef-7df1"},
		{"abc-123", "abc-123"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeProviderID(c.in); got != c.want {
			t.Errorf("NormalizeProviderID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsPlaceholderSessionID(t *testing.T) {
	if !IsPlaceholderSessionID("") {
		t.Error("empty id should be a placeholder")
	}
	if !IsPlaceholderSessionID("pending-xyz") {
		t.Error("pending-xyz should be a placeholder")
	}
	if IsPlaceholderSessionID("abc-123") {
		t.Error("concrete id should not be a placeholder")
	}
}

func TestSessionRowGroupID(t *testing.T) {
	row := SessionRow{ID: "row-1"}
	if got := row.GroupID(); got != "row-1" {
		t.Errorf("GroupID fallback = %q, want row id", got)
	}
	row.ClientSessionID = "grp-1"
	if got := row.GroupID(); got != "grp-1" {
		t.Errorf("GroupID = %q, want grp-1", got)
	}
}

func TestSessionRowCompleted(t *testing.T) {
	row := SessionRow{}
	if row.Completed() {
		t.Error("row without CompletedAt should not be completed")
	}
	row.CompletedAt = time.Now()
	if !row.Completed() {
		t.Error("row with CompletedAt should be completed")
	}
}
