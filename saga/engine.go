// Package saga orchestrates multi-step transactions with
// compensation. Steps run in order; a step failure compensates every
// previously completed compensable step in reverse order, best-effort,
// and marks the saga failed. State is written through to the store so
// a restart can answer saga lookups.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/metrics"
	"github.com/launchsignal/orchestrator/policy"
	"github.com/launchsignal/orchestrator/store"
)

// ErrSagaNotFound is returned when a saga id is unknown to both the
// in-memory table and the store.
var ErrSagaNotFound = errors.New("saga not found")

// Engine runs saga transactions.
type Engine struct {
	store    store.Store
	bus      eventbus.Bus
	policy   *policy.Engine
	registry *Registry

	stepTimeout    time.Duration
	retryDelayBase time.Duration
	maxRetries     int

	mu    sync.RWMutex
	sagas map[string]*domain.SagaTransaction
}

// NewEngine creates a saga engine. maxRetries applies to steps that do
// not set their own budget; stepTimeout likewise.
func NewEngine(st store.Store, bus eventbus.Bus, pol *policy.Engine, reg *Registry, stepTimeout, retryDelayBase time.Duration, maxRetries int) *Engine {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	if retryDelayBase <= 0 {
		retryDelayBase = 100 * time.Millisecond
	}
	return &Engine{
		store:          st,
		bus:            bus,
		policy:         pol,
		registry:       reg,
		stepTimeout:    stepTimeout,
		retryDelayBase: retryDelayBase,
		maxRetries:     maxRetries,
		sagas:          make(map[string]*domain.SagaTransaction),
	}
}

// StartSaga runs the given steps as one transaction and returns the
// finished saga. Callers that want async execution run it in a
// goroutine and poll GetSaga.
func (e *Engine) StartSaga(ctx context.Context, tenantID, sessionID string, steps []domain.SagaStep) (*domain.SagaTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("saga requires at least one step")
	}

	now := time.Now()
	saga := &domain.SagaTransaction{
		ID:        "saga_" + uuid.New().String()[:8],
		TenantID:  tenantID,
		SessionID: sessionID,
		Steps:     make([]domain.SagaStep, len(steps)),
		Status:    domain.SagaStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	copy(saga.Steps, steps)
	for i := range saga.Steps {
		if saga.Steps[i].ID == "" {
			saga.Steps[i].ID = "stp_" + uuid.New().String()[:8]
		}
		saga.Steps[i].Status = domain.StepStatusPending
		if saga.Steps[i].MaxRetries == 0 {
			saga.Steps[i].MaxRetries = e.maxRetries
		}
	}

	if e.store != nil {
		if err := e.store.CreateSaga(ctx, saga); err != nil {
			return nil, fmt.Errorf("failed to persist saga: %w", err)
		}
	}
	e.mu.Lock()
	e.sagas[saga.ID] = saga
	e.mu.Unlock()

	e.publishSagaEvent(ctx, saga, domain.EventTypeSagaStarted, nil)

	e.run(ctx, saga)
	return saga, nil
}

// GetSaga returns a saga by id, falling back to the store for sagas
// started before the last restart.
func (e *Engine) GetSaga(ctx context.Context, sagaID string) (*domain.SagaTransaction, error) {
	e.mu.RLock()
	saga, ok := e.sagas[sagaID]
	e.mu.RUnlock()
	if ok {
		return saga, nil
	}
	if e.store == nil {
		return nil, ErrSagaNotFound
	}
	stored, err := e.store.GetSaga(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrSagaNotFound
	}
	return stored, nil
}

// GetTenantSagas lists a tenant's sagas, newest first.
func (e *Engine) GetTenantSagas(ctx context.Context, tenantID string) ([]domain.SagaTransaction, error) {
	if e.store != nil {
		return e.store.ListTenantSagas(ctx, tenantID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.SagaTransaction
	for _, s := range e.sagas {
		if s.TenantID == tenantID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, saga *domain.SagaTransaction) {
	saga.Status = domain.SagaStatusExecuting
	e.persist(ctx, saga)

	for i := range saga.Steps {
		saga.CurrentState = i
		step := &saga.Steps[i]

		if blocked, reason := e.checkPolicy(ctx, saga, step); blocked {
			step.Status = domain.StepStatusBlocked
			step.Error = reason
			e.fail(ctx, saga, i, fmt.Errorf("step %s blocked by policy: %s", step.Name, reason))
			return
		}

		if err := e.executeStep(ctx, saga, step); err != nil {
			step.Status = domain.StepStatusFailed
			step.Error = err.Error()
			e.fail(ctx, saga, i, fmt.Errorf("step %s failed: %w", step.Name, err))
			return
		}

		step.Status = domain.StepStatusCompleted
		e.persist(ctx, saga)
		e.publishSagaEvent(ctx, saga, domain.EventTypeStepExecuted, step)
	}

	now := time.Now()
	saga.Status = domain.SagaStatusCompleted
	saga.CompletedAt = &now
	e.persist(ctx, saga)
	metrics.SagasFinished.WithLabelValues(string(domain.SagaStatusCompleted)).Inc()
	e.publishSagaEvent(ctx, saga, domain.EventTypeSagaCompleted, nil)
}

// executeStep runs one step with its timeout, retrying on failure up
// to the step's budget with exponential backoff.
func (e *Engine) executeStep(ctx context.Context, saga *domain.SagaTransaction, step *domain.SagaStep) error {
	ex, err := e.registry.Lookup(step.Type)
	if err != nil {
		return err
	}

	step.Status = domain.StepStatusExecuting
	timeout := e.stepTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		if attempt > 0 {
			step.RetryCount = attempt
			delay := e.retryDelayBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := ex.Execute(stepCtx, saga.TenantID, saga.SessionID, step)
		cancel()
		if err == nil {
			step.Result = result
			return nil
		}
		lastErr = err
		log.Printf("WARN: saga %s step %s attempt %d failed: %v", saga.ID, step.Name, attempt+1, err)
	}
	return lastErr
}

// fail compensates every completed compensable step before failedIdx
// in reverse order, then marks the saga failed. Compensation errors
// are logged and do not stop the sweep.
func (e *Engine) fail(ctx context.Context, saga *domain.SagaTransaction, failedIdx int, cause error) {
	log.Printf("ERROR: saga %s failed at step %d: %v", saga.ID, failedIdx, cause)
	saga.Status = domain.SagaStatusCompensating
	saga.Error = cause.Error()
	e.persist(ctx, saga)

	for i := failedIdx - 1; i >= 0; i-- {
		step := &saga.Steps[i]
		if step.Status != domain.StepStatusCompleted || !step.Compensable {
			continue
		}
		ex, err := e.registry.Lookup(step.Type)
		if err != nil {
			log.Printf("WARN: saga %s cannot compensate step %s: %v", saga.ID, step.Name, err)
			continue
		}
		if err := ex.Compensate(ctx, saga.TenantID, saga.SessionID, step); err != nil {
			log.Printf("WARN: saga %s compensation of step %s failed: %v", saga.ID, step.Name, err)
			continue
		}
		step.Status = domain.StepStatusCompensated
		metrics.StepsCompensated.Inc()
		e.publishSagaEvent(ctx, saga, domain.EventTypeStepCompensated, step)
	}

	saga.Status = domain.SagaStatusFailed
	e.persist(ctx, saga)
	metrics.SagasFinished.WithLabelValues(string(domain.SagaStatusFailed)).Inc()
	e.publishSagaEvent(ctx, saga, domain.EventTypeSagaFailed, nil)
}

// checkPolicy evaluates the step policy. A missing engine allows
// everything; an evaluation error blocks, since running an unvetted
// step is worse than failing the saga.
func (e *Engine) checkPolicy(ctx context.Context, saga *domain.SagaTransaction, step *domain.SagaStep) (bool, string) {
	if e.policy == nil {
		return false, ""
	}
	params := decodeParams(step.Params)
	cost := 0
	if v, ok := params["estimated_cost"].(float64); ok {
		cost = int(v)
	}
	decision, err := e.policy.Evaluate(ctx, policy.StepInput{
		StepType:      step.Type,
		TenantID:      saga.TenantID,
		Params:        params,
		EstimatedCost: cost,
	})
	if err != nil {
		return true, fmt.Sprintf("policy evaluation error: %v", err)
	}
	return decision == policy.DecisionBlock, "blocked by step policy"
}

// persist writes the saga through to the store. The engine is the
// sole writer for an in-flight saga, so a version conflict means an
// operational problem worth a log line, not a retry loop.
func (e *Engine) persist(ctx context.Context, saga *domain.SagaTransaction) {
	saga.UpdatedAt = time.Now()
	if e.store == nil {
		return
	}
	if err := e.store.UpdateSaga(ctx, saga); err != nil {
		log.Printf("ERROR: failed to persist saga %s: %v", saga.ID, err)
	}
}

func (e *Engine) publishSagaEvent(ctx context.Context, saga *domain.SagaTransaction, eventType string, step *domain.SagaStep) {
	if e.bus == nil {
		return
	}
	payload := map[string]interface{}{
		"saga_id": saga.ID,
		"status":  saga.Status,
	}
	if step != nil {
		payload["step_id"] = step.ID
		payload["step_name"] = step.Name
		payload["step_type"] = step.Type
	}
	if saga.Error != "" {
		payload["error"] = saga.Error
	}
	raw, _ := json.Marshal(payload)
	if _, err := e.bus.Publish(ctx, &domain.AgentEvent{
		Type:          eventType,
		TenantID:      saga.TenantID,
		SessionID:     saga.SessionID,
		Payload:       raw,
		CorrelationID: saga.ID,
		Source:        "saga-engine",
	}); err != nil {
		log.Printf("WARN: failed to publish %s for saga %s: %v", eventType, saga.ID, err)
	}
}
