// Package session owns conversation history: the message/session model and
// the per-domain store with resume, switch, delete and export operations.
package session

import (
	"time"

	"pagechat/internal/extract"
)

// Message roles. User and assistant messages always arrive in pairs; on a
// failed turn the assistant half carries the error text.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Context types recorded on a user turn.
const (
	ContextPage      = "page"
	ContextSelection = "selection"
)

// TokenUsage mirrors the provider's usage accounting for one turn.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Message is one transcript entry. Append-only.
type Message struct {
	Role        string               `json:"role"`
	Content     string               `json:"content"`
	PageContext *extract.PageContext `json:"page_context,omitempty"`
	ContextType string               `json:"context_type,omitempty"`
	TokenUsage  *TokenUsage          `json:"token_usage,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Session is one ordered conversation tied to a browsing domain. Identity is
// (Domain, ID). Messages always hold complete user/assistant pairs.
type Session struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	LastUpdated time.Time `json:"last_updated"`
}

// Summary is a listing row: everything but the transcript.
type Summary struct {
	Domain       string
	ID           string
	Title        string
	MessageCount int
	LastUpdated  time.Time
}
