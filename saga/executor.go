package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/launchsignal/orchestrator/agentclient"
	"github.com/launchsignal/orchestrator/domain"
)

// Executor runs and undoes one kind of saga step. Steps carry only
// serializable descriptors; behavior is bound here, at execution time,
// so a persisted saga can be reloaded without losing its step list.
type Executor interface {
	Execute(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) (json.RawMessage, error)
	Compensate(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) error
}

// Registry maps step types to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds an executor to a step type, replacing any previous
// binding.
func (r *Registry) Register(stepType string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[stepType] = ex
}

// Lookup returns the executor for a step type.
func (r *Registry) Lookup(stepType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[stepType]
	if !ok {
		return nil, fmt.Errorf("no executor registered for step type %q", stepType)
	}
	return ex, nil
}

// FuncExecutor adapts a pair of functions to the Executor interface.
// A nil CompensateFn makes compensation a no-op.
type FuncExecutor struct {
	ExecuteFn    func(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) (json.RawMessage, error)
	CompensateFn func(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) error
}

func (f *FuncExecutor) Execute(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) (json.RawMessage, error) {
	return f.ExecuteFn(ctx, tenantID, sessionID, step)
}

func (f *FuncExecutor) Compensate(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) error {
	if f.CompensateFn == nil {
		return nil
	}
	return f.CompensateFn(ctx, tenantID, sessionID, step)
}

// AgentExecutor runs steps against a downstream agent service over
// HTTP. Execute posts the step's params to the agent's /execute
// endpoint; Compensate posts the same params with a ".undo" action
// suffix, which agents treat as a reversal request.
type AgentExecutor struct {
	client   *agentclient.Client
	endpoint string
}

// NewAgentExecutor creates an executor bound to one agent endpoint.
func NewAgentExecutor(client *agentclient.Client, endpoint string) *AgentExecutor {
	return &AgentExecutor{client: client, endpoint: endpoint}
}

func (a *AgentExecutor) Execute(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) (json.RawMessage, error) {
	result, err := a.client.Execute(ctx, a.endpoint, &agentclient.ExecuteRequest{
		Action:    step.Type,
		TenantID:  tenantID,
		SessionID: sessionID,
		Params:    decodeParams(step.Params),
	})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step result: %w", err)
	}
	return raw, nil
}

func (a *AgentExecutor) Compensate(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) error {
	_, err := a.client.Execute(ctx, a.endpoint, &agentclient.ExecuteRequest{
		Action:    step.Type + ".undo",
		TenantID:  tenantID,
		SessionID: sessionID,
		Params:    decodeParams(step.Params),
	})
	return err
}

func decodeParams(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
