// Package domain defines the core domain models for the campaign orchestrator.
package domain

import (
	"encoding/json"
	"time"
)

// Well-known event types published on the bus.
const (
	EventTypePlanGenerated   = "plan_generated"
	EventTypeSagaStarted     = "saga_started"
	EventTypeSagaCompleted   = "saga_completed"
	EventTypeSagaFailed      = "saga_failed"
	EventTypeStepExecuted    = "step_executed"
	EventTypeStepCompensated = "step_compensated"
	EventTypeTurnRecorded    = "turn_recorded"
)

// AgentEvent is the message unit carried by the event bus.
//
// RetryCount is mutated only by the redelivery path; once it exceeds
// MaxRetries the event is routed to the dead-letter subject and never
// redelivered.
type AgentEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TenantID      string          `json:"tenant_id"`
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Source        string          `json:"source,omitempty"`
	Destination   string          `json:"destination,omitempty"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
}
