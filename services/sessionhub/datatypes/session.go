package datatypes

import (
	"strings"
	"time"
)

// SessionSource identifies which system a session record was surfaced from.
type SessionSource string

const (
	SourceClaudeCLI SessionSource = "claude-cli"
	SourceCodexCLI  SessionSource = "codex-cli"
	SourceQraftBox  SessionSource = "qraftbox"
	SourceUnknown   SessionSource = "unknown"
)

// AIAgent identifies the underlying coding agent that produced a transcript.
type AIAgent string

const (
	AgentClaudeCode AIAgent = "claude-code"
	AgentCodex      AIAgent = "codex"
	AgentUnknown    AIAgent = "unknown"
)

// PlaceholderIDPrefix marks a runtime row whose external agent has not yet
// reported a concrete session id.
const PlaceholderIDPrefix = "pending-"

// IsPlaceholderSessionID reports whether id is empty or a pending sentinel.
func IsPlaceholderSessionID(id string) bool {
	return id == "" || strings.HasPrefix(id, PlaceholderIDPrefix)
}

// codexIDPrefix is the wrapper the launch path applies to Codex rollout ids.
// The transcript index stores the bare id.
const codexIDPrefix = "codex:"

// NormalizeProviderID strips agent-specific wrapping so that ids referring to
// the same underlying transcript compare equal.
func NormalizeProviderID(id string) string {
	return strings.TrimPrefix(id, codexIDPrefix)
}

// SessionEntry is a provider-sourced session record as returned by the
// transcript index. The reconciliation engine relabels entries in place once a
// correlation to a qraftbox session group is known.
type SessionEntry struct {
	SessionID        string        `json:"sessionId"`
	ProjectPath      string        `json:"projectPath"`
	FullPath         string        `json:"fullPath,omitempty"`
	FirstPrompt      string        `json:"firstPrompt"`
	Summary          string        `json:"summary,omitempty"`
	Created          time.Time     `json:"created"`
	Modified         time.Time     `json:"modified"`
	GitBranch        string        `json:"gitBranch,omitempty"`
	MessageCount     int           `json:"messageCount"`
	UserMessageCount int           `json:"userMessageCount"`
	Source           SessionSource `json:"source"`
	AIAgent          AIAgent       `json:"aiAgent"`
	QraftAISessionID string        `json:"qraftAiSessionId,omitempty"`
	ModelProfileID   string        `json:"modelProfileId,omitempty"`
	ModelVendor      string        `json:"modelVendor,omitempty"`
	ModelName        string        `json:"modelName,omitempty"`
}

// SessionRow is a locally-owned runtime record for a session launched by this
// tool. A logical session group (ClientSessionID) may span multiple provider
// sessions when the agent is resumed.
type SessionRow struct {
	ID                     string    `json:"id"`
	ClientSessionID        string    `json:"clientSessionId,omitempty"`
	CurrentClaudeSessionID string    `json:"currentClaudeSessionId,omitempty"`
	ProjectPath            string    `json:"projectPath"`
	WorktreeID             string    `json:"worktreeId,omitempty"`
	Message                string    `json:"message"`
	LastAssistantMessage   string    `json:"lastAssistantMessage,omitempty"`
	Purpose                string    `json:"purpose,omitempty"`
	AIAgent                AIAgent   `json:"aiAgent"`
	ModelProfileID         string    `json:"modelProfileId,omitempty"`
	ModelVendor            string    `json:"modelVendor,omitempty"`
	ModelName              string    `json:"modelName,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	StartedAt              time.Time `json:"startedAt,omitempty"`
	CompletedAt            time.Time `json:"completedAt,omitempty"`
}

// Completed reports whether the row has finished running.
func (r *SessionRow) Completed() bool {
	return !r.CompletedAt.IsZero()
}

// GroupID returns the logical session group key, falling back to the row id
// for rows written before client session ids existed.
func (r *SessionRow) GroupID() string {
	if r.ClientSessionID != "" {
		return r.ClientSessionID
	}
	return r.ID
}

// Mapping is a durable correlation between a provider session id and a
// qraftbox client session group. Upserts are idempotent; a provider id maps
// to at most one client session id at a time.
type Mapping struct {
	ProviderSessionID string        `json:"providerSessionId"`
	ProjectPath       string        `json:"projectPath"`
	WorktreeID        string        `json:"worktreeId,omitempty"`
	Source            SessionSource `json:"source"`
	ClientSessionID   string        `json:"clientSessionId"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// SessionFilter is the filter surface shared by the transcript index and the
// reconciliation engine. Zero values mean "no constraint".
type SessionFilter struct {
	WorkingDirectoryPrefix string
	Source                 SessionSource
	GitBranch              string
	Search                 string
	From                   time.Time
	To                     time.Time
}

// SortField selects the timestamp used for ordering session lists.
type SortField string

const (
	SortByModified SortField = "modified"
	SortByCreated  SortField = "created"
)

// SortOrder is the direction of a session list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PageRequest is validated pagination input. Handlers are responsible for
// bounds checking before it reaches the engine.
type PageRequest struct {
	Offset int
	Limit  int
}

// SessionPage is one page of the unified session list.
//
// Degraded is set when runtime-store augmentation was unavailable and the
// page was served from the transcript index alone.
type SessionPage struct {
	Sessions       []*SessionEntry `json:"sessions"`
	Total          int             `json:"total"`
	Offset         int             `json:"offset"`
	Limit          int             `json:"limit"`
	Degraded       bool            `json:"degraded,omitempty"`
	DegradedReason string          `json:"degradedReason,omitempty"`
}

// TranscriptEvent is one parsed line of an agent transcript log.
type TranscriptEvent struct {
	Type      string    `json:"type"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	IsMeta    bool      `json:"isMeta,omitempty"`
}

// TranscriptPage is a window of transcript events plus the full event count.
type TranscriptPage struct {
	Events []TranscriptEvent `json:"events"`
	Total  int               `json:"total"`
}

// SessionSummary is the agent-written summary record for a session, when the
// transcript contains one.
type SessionSummary struct {
	SessionID string `json:"sessionId"`
	Summary   string `json:"summary"`
}

// ProjectInfo describes one project directory known to the transcript index.
type ProjectInfo struct {
	ProjectPath  string    `json:"projectPath"`
	SessionCount int       `json:"sessionCount"`
	LastModified time.Time `json:"lastModified"`
}

// WorkspaceTab is a UI tab persisted for the companion frontend.
type WorkspaceTab struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ProjectPath string    `json:"projectPath"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"createdAt"`
}
