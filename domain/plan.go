package domain

import (
	"encoding/json"
	"time"
)

// ActionType identifies a unit of campaign work.
type ActionType string

const (
	ActionCreateVideo     ActionType = "CREATE_VIDEO"
	ActionSchedulePost    ActionType = "SCHEDULE_POST"
	ActionAnalyzeAudience ActionType = "ANALYZE_AUDIENCE"
	ActionGenerateContent ActionType = "GENERATE_CONTENT"
	ActionOptimizeTiming  ActionType = "OPTIMIZE_TIMING"
)

// ActionStatus represents the lifecycle of a planned action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusExecuting ActionStatus = "executing"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// PlannedAction is a single unit of work inside an execution plan.
// Priority sorts ascending; Dependencies list action IDs that must
// complete before this action may run.
type PlannedAction struct {
	ID                string          `json:"id"`
	Type              ActionType      `json:"type"`
	Priority          int             `json:"priority"`
	EstimatedDuration int             `json:"estimated_duration"` // seconds
	RequiredAgents    []string        `json:"required_agents"`
	Dependencies      []string        `json:"dependencies,omitempty"`
	Parameters        json.RawMessage `json:"parameters,omitempty"`
	Status            ActionStatus    `json:"status"`
}

// PlanStatus represents the lifecycle of an execution plan.
type PlanStatus string

const (
	PlanStatusCreated   PlanStatus = "created"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusFailed    PlanStatus = "failed"
)

// ExecutionPlan is an ordered set of actions derived from a trend
// analysis. Immutable after creation except Status.
type ExecutionPlan struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	SessionID           string          `json:"session_id"`
	UserID              string          `json:"user_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	EstimatedCompletion time.Time       `json:"estimated_completion"`
	Actions             []PlannedAction `json:"actions"`
	Priority            int             `json:"priority"` // 1..5 from trend signal strength
	Status              PlanStatus      `json:"status"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
}

// ResourceRequirements aggregates the cost of executing a plan.
type ResourceRequirements struct {
	ExecutionTime  int      `json:"execution_time"` // seconds, sum of action durations
	RequiredAgents []string `json:"required_agents"`
	EstimatedCost  int      `json:"estimated_cost"`
}

// PlanResult bundles a generated plan with its assessment.
type PlanResult struct {
	Plan                 *ExecutionPlan       `json:"plan"`
	ConfidenceScore      float64              `json:"confidence_score"`
	ResourceRequirements ResourceRequirements `json:"resource_requirements"`
	Risks                []string             `json:"risks"`
}
