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

type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexSessionMeta struct {
	ID  string `json:"id"`
	Cwd string `json:"cwd"`
	Git *struct {
		Branch string `json:"branch"`
	} `json:"git"`
}

// event_msg payload is flat, not nested.
type codexEventPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"` // user_message
	Text    string `json:"text"`    // agent_message / agent_reasoning
}

// parseCodexSession reads one Codex rollout log. The session id comes from
// the session_meta record when present, else from the file name.
func parseCodexSession(filePath string) (*sessionRecord, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	rec := &sessionRecord{
		Entry: datatypes.SessionEntry{
			SessionID: strings.TrimSuffix(filepath.Base(filePath), ".jsonl"),
			FullPath:  filePath,
			Source:    datatypes.SourceCodexCLI,
			AIAgent:   datatypes.AgentCodex,
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

		var raw codexRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		ts := parseTimestamp(raw.Timestamp)

		switch raw.Type {
		case "session_meta":
			var meta codexSessionMeta
			if err := json.Unmarshal(raw.Payload, &meta); err != nil {
				continue
			}
			if meta.ID != "" {
				rec.Entry.SessionID = meta.ID
			}
			if meta.Cwd != "" {
				rec.Entry.ProjectPath = meta.Cwd
			}
			if meta.Git != nil {
				rec.Entry.GitBranch = meta.Git.Branch
			}

		case "event_msg":
			var evt codexEventPayload
			if err := json.Unmarshal(raw.Payload, &evt); err != nil {
				continue
			}

			var role, text string
			switch evt.Type {
			case "user_message":
				role = "user"
				text = strings.TrimSpace(evt.Message)
			case "agent_message":
				role = "assistant"
				text = strings.TrimSpace(evt.Text)
			default:
				continue
			}
			if text == "" {
				continue
			}

			rec.Events = append(rec.Events, datatypes.TranscriptEvent{
				Type:      role,
				Role:      role,
				Text:      text,
				Timestamp: ts,
			})

			rec.Entry.MessageCount++
			if role == "user" {
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
