// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package purpose derives and caches a one-line purpose per session. The
// cache key is the session id; freshness is decided by the number of user
// intents, so a session only re-summarizes after the user says something new.
package purpose

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/tacogips/QraftBox-sub000/services/sessionhub/datatypes"
)

const (
	// maxEventsScanned bounds how far into a transcript intent extraction
	// looks. Long sessions are summarized from their head.
	maxEventsScanned = 1200

	// maxIntentLen caps a single intent, in runes.
	maxIntentLen = 500

	// maxIntentsBytes caps the total intent payload sent to the model.
	maxIntentsBytes = 12 * 1024
)

// Injected control tags wrap tool output and UI context inside user turns.
// They are machine noise, not intent.
var (
	qbBlockRE = regexp.MustCompile(`(?s)<qb-[a-zA-Z0-9_-]+[^>]*>.*?</qb-[a-zA-Z0-9_-]+>`)
	qbTagRE   = regexp.MustCompile(`</?qb-[a-zA-Z0-9_-]+[^>]*>`)
)

// ExtractIntents returns the cleaned user prompts from the head of the
// event stream, oldest first.
func ExtractIntents(events []datatypes.TranscriptEvent) []string {
	if len(events) > maxEventsScanned {
		events = events[:maxEventsScanned]
	}

	var intents []string
	for _, evt := range events {
		if evt.Role != "user" || evt.IsMeta {
			continue
		}
		text := qbBlockRE.ReplaceAllString(evt.Text, "")
		text = qbTagRE.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > maxIntentLen {
			text = string(runes[:maxIntentLen])
		}
		intents = append(intents, text)
	}
	return compactIntents(intents)
}

// compactIntents enforces the total byte cap. When over budget it keeps the
// first intent, which anchors what the session set out to do, and the most
// recent intents that still fit.
func compactIntents(intents []string) []string {
	total := 0
	for _, s := range intents {
		total += len(s)
	}
	if total <= maxIntentsBytes || len(intents) <= 1 {
		return intents
	}

	budget := maxIntentsBytes - len(intents[0])
	var tail []string
	for i := len(intents) - 1; i >= 1; i-- {
		if budget-len(intents[i]) < 0 {
			break
		}
		budget -= len(intents[i])
		tail = append(tail, intents[i])
	}

	out := make([]string, 0, len(tail)+1)
	out = append(out, intents[0])
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	return out
}

// Signature returns a stable digest of the intent list.
func Signature(intents []string) string {
	h := sha256.New()
	for _, s := range intents {
		h.Write([]byte(s))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
