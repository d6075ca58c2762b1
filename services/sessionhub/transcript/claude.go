// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

// maxLineSize bounds a single transcript line. Claude Code can emit very
// large tool-result lines.
const maxLineSize = 10 * 1024 * 1024

type claudeRecord struct {
	Type      string          `json:"type"`
	IsMeta    bool            `json:"isMeta"`
	Timestamp string          `json:"timestamp"`
	Cwd       string          `json:"cwd"`
	GitBranch string          `json:"gitBranch"`
	Message   json.RawMessage `json:"message"`
	Summary   string          `json:"summary"` // type="summary" records
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseClaudeSession reads one Claude Code session log into an index entry
// plus its event stream. The session id is the file name; the project path
// comes from the first record carrying a cwd.
func parseClaudeSession(filePath string) (*sessionRecord, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	sessionID := strings.TrimSuffix(filepath.Base(filePath), ".jsonl")
	rec := &sessionRecord{
		Entry: datatypes.SessionEntry{
			SessionID: sessionID,
			FullPath:  filePath,
			Source:    datatypes.SourceClaudeCLI,
			AIAgent:   datatypes.AgentClaudeCode,
			Modified:  info.ModTime(),
		},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var firstTS, lastTS time.Time

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw claudeRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		if raw.Type == "summary" && raw.Summary != "" {
			rec.Entry.Summary = raw.Summary
			continue
		}
		if raw.Cwd != "" && rec.Entry.ProjectPath == "" {
			rec.Entry.ProjectPath = raw.Cwd
		}
		if raw.GitBranch != "" && rec.Entry.GitBranch == "" {
			rec.Entry.GitBranch = raw.GitBranch
		}

		if raw.Type != "user" && raw.Type != "assistant" {
			continue
		}

		var msg claudeMessage
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			continue
		}
		text := extractClaudeText(msg.Content)
		ts := parseTimestamp(raw.Timestamp)

		rec.Events = append(rec.Events, datatypes.TranscriptEvent{
			Type:      raw.Type,
			Role:      raw.Type,
			Text:      text,
			Timestamp: ts,
			IsMeta:    raw.IsMeta,
		})

		if raw.IsMeta || text == "" {
			continue
		}

		rec.Entry.MessageCount++
		if raw.Type == "user" {
			rec.Entry.UserMessageCount++
			if rec.Entry.FirstPrompt == "" {
				rec.Entry.FirstPrompt = text
			}
		}
		if firstTS.IsZero() {
			firstTS = ts
		}
		if ts.After(lastTS) {
			lastTS = ts
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !firstTS.IsZero() {
		rec.Entry.Created = firstTS
	}
	if !lastTS.IsZero() {
		rec.Entry.Modified = lastTS
	}
	return rec, nil
}

// extractClaudeText flattens a Claude message content field, which is either
// a bare string or an array of typed blocks. Only text blocks contribute;
// tool use and tool results are not user-visible prose.
func extractClaudeText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var blocks []claudeContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
