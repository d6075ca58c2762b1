package datatypes

import "time"

// PurposeSource tells the UI whether a purpose string came from the LLM or
// from the heuristic fallback.
type PurposeSource string

const (
	PurposeSourceLLM      PurposeSource = "llm"
	PurposeSourceFallback PurposeSource = "fallback"
)

// PurposeResult is the resolved purpose of a session. A purpose always
// resolves; summarizer failures degrade to a fallback result rather than an
// error.
type PurposeResult struct {
	Purpose   string        `json:"purpose"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Source    PurposeSource `json:"source"`
}
