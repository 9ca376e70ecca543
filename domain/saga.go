package domain

import (
	"encoding/json"
	"time"
)

// SagaStatus represents the lifecycle of a saga transaction.
// Transitions move forward only: pending -> executing -> completed,
// or executing -> compensating -> failed.
type SagaStatus string

const (
	SagaStatusPending      SagaStatus = "pending"
	SagaStatusExecuting    SagaStatus = "executing"
	SagaStatusCompleted    SagaStatus = "completed"
	SagaStatusCompensating SagaStatus = "compensating"
	SagaStatusFailed       SagaStatus = "failed"
)

// StepStatus represents the lifecycle of a single saga step.
type StepStatus string

const (
	StepStatusPending     StepStatus = "pending"
	StepStatusExecuting   StepStatus = "executing"
	StepStatusCompleted   StepStatus = "completed"
	StepStatusFailed      StepStatus = "failed"
	StepStatusCompensated StepStatus = "compensated"
	StepStatusBlocked     StepStatus = "blocked"
)

// SagaStep is a serializable step descriptor. Behavior is resolved at
// execution time through the executor registry keyed by Type, so a saga
// can be persisted and reloaded without losing its step list.
type SagaStep struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params,omitempty"`
	TimeoutMs   int             `json:"timeout_ms"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	Status      StepStatus      `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Compensable bool            `json:"compensable"`
}

// SagaTransaction is one orchestrated request. CurrentState indexes the
// step being (or about to be) executed. Version guards store writes
// against stale updates.
type SagaTransaction struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	SessionID    string          `json:"session_id"`
	Steps        []SagaStep      `json:"steps"`
	CurrentState int             `json:"current_state"`
	Status       SagaStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
