// Package policy evaluates whether a saga step may execute for a
// tenant, using an OPA rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by Evaluate.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// StepInput is the evaluation input for one step.
type StepInput struct {
	StepType      string                 `json:"step_type"`
	TenantID      string                 `json:"tenant_id"`
	Params        map[string]interface{} `json:"params,omitempty"`
	EstimatedCost int                    `json:"estimated_cost"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.step_policy.decision"),
		rego.Module("step_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the step policy and returns allow or block.
// The policy is expected to define a default, so an empty result set
// falls back to allow.
func (e *Engine) Evaluate(ctx context.Context, input StepInput) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the default step policy: block anything priced over
// the cost ceiling and the raw-broadcast step type, allow the rest.
const DefaultPolicy = `
package step_policy

default decision = "allow"

decision = "block" {
	input.estimated_cost > 10000
}

decision = "block" {
	input.step_type == "broadcast.raw"
}
`
