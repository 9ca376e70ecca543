package domain

import (
	"encoding/json"
	"time"
)

// ConversationState tracks where a session is in its lifecycle.
const (
	ConversationStateGreeting  = "greeting"
	ConversationStateActive    = "active"
	ConversationStateExecuting = "executing"
	ConversationStateClosed    = "closed"
)

// ShortContext is the compact per-session conversational state.
type ShortContext struct {
	Summary           string            `json:"summary,omitempty"`
	LastIntent        string            `json:"last_intent,omitempty"`
	Entities          map[string]string `json:"entities,omitempty"`
	ConversationState string            `json:"conversation_state"`
}

// RecentTurn is the trimmed per-turn summary kept on the session context.
type RecentTurn struct {
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	TurnNumber int       `json:"turn_number"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionContext holds the rolling conversational state for one
// (session, tenant) pair. RecentTurns is capped at the service's
// configured window; TurnCount is incremented atomically by the store.
type SessionContext struct {
	SessionID   string          `json:"session_id"`
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id,omitempty"`
	Channel     string          `json:"channel"`
	Short       ShortContext    `json:"short_context"`
	RecentTurns []RecentTurn    `json:"recent_turns"`
	TurnCount   int             `json:"turn_count"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	IsActive    bool            `json:"is_active"`
}

// TurnAction records one action taken (or attempted) during a turn.
type TurnAction struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
	Status string          `json:"status"`
	Target string          `json:"target,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ConversationTurn is the append-only per-turn record.
type ConversationTurn struct {
	TurnID        string          `json:"turn_id"`
	SessionID     string          `json:"session_id"`
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Role          string          `json:"role"` // user, agent
	Text          string          `json:"text"`
	Actions       []TurnAction    `json:"actions,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	TurnNumber    int             `json:"turn_number"`
}

// SessionSummary is the aggregate view returned for reporting.
type SessionSummary struct {
	SessionID   string       `json:"session_id"`
	TenantID    string       `json:"tenant_id"`
	UserID      string       `json:"user_id,omitempty"`
	Channel     string       `json:"channel"`
	Short       ShortContext `json:"short_context"`
	TurnCount   int          `json:"turn_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	IsActive    bool         `json:"is_active"`
	TurnsStored int          `json:"turns_stored"`
}

// CompressedContext is the cheap transmission view of a session context,
// retaining only the most recent turns.
type CompressedContext struct {
	SessionID  string       `json:"session_id"`
	TenantID   string       `json:"tenant_id"`
	Short      ShortContext `json:"short_context"`
	LastTurns  []RecentTurn `json:"last_turns"`
	TurnCount  int          `json:"turn_count"`
}
