// Package service is the meta-agent layer: it classifies interactive
// user messages, records them in the session context, and routes them
// to the planner and saga engine.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/planner"
	"github.com/launchsignal/orchestrator/saga"
	"github.com/launchsignal/orchestrator/session"
)

// MessageRequest is an interactive user message.
type MessageRequest struct {
	TenantID  string                `json:"tenant_id"`
	SessionID string                `json:"session_id"`
	UserID    string                `json:"user_id,omitempty"`
	Channel   string                `json:"channel,omitempty"`
	Text      string                `json:"text"`
	Trend     *domain.TrendAnalysis `json:"trend_analysis,omitempty"`
}

// MessageResponse is the orchestrator's reply to one message.
type MessageResponse struct {
	Intent      domain.UserIntent       `json:"intent"`
	Reply       string                  `json:"reply"`
	NodePayload json.RawMessage         `json:"node_payload,omitempty"`
	Plan        *domain.PlanResult      `json:"plan,omitempty"`
	Saga        *domain.SagaTransaction `json:"saga,omitempty"`
}

// Service ties sessions, planning and saga execution together.
type Service struct {
	sessions *session.Service
	planner  *planner.Planner
	sagas    *saga.Engine
}

// New creates the meta-agent service.
func New(sessions *session.Service, pl *planner.Planner, engine *saga.Engine) *Service {
	return &Service{sessions: sessions, planner: pl, sagas: engine}
}

// DetectUserIntent classifies a message by keyword. Node requests win
// over execution verbs, which win over strategy talk; anything else
// is NONE.
func DetectUserIntent(text string) domain.UserIntent {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "node", "canvas", "board", "workspace"):
		return domain.IntentCreateNode
	case containsAny(t, "execute", "run", "launch", "start", "go ahead", "do it"):
		return domain.IntentExecuteAction
	case containsAny(t, "strategy", "plan", "propose", "recommend", "suggest"):
		return domain.IntentProposeStrategy
	default:
		return domain.IntentNone
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ProcessUserMessage records the user's message, acts on its intent,
// and records the agent's reply, so the session context always shows
// both sides of the exchange.
func (s *Service) ProcessUserMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	if req.TenantID == "" || req.SessionID == "" {
		return nil, fmt.Errorf("tenant ID and session ID are required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("message text is required")
	}

	if _, err := s.sessions.GetOrCreateContext(ctx, req.SessionID, req.TenantID, req.Channel, req.UserID); err != nil {
		return nil, fmt.Errorf("failed to resolve session context: %w", err)
	}
	correlationID := "msg_" + uuid.New().String()[:8]
	if _, err := s.sessions.AddConversationTurn(ctx, req.SessionID, req.TenantID, correlationID, "user", req.Text, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	intent := DetectUserIntent(req.Text)
	resp := &MessageResponse{Intent: intent}
	var actions []domain.TurnAction

	switch intent {
	case domain.IntentCreateNode:
		resp.NodePayload = s.buildNodePayload(req)
		resp.Reply = "Created a draft campaign node. Review and confirm to proceed."
		actions = append(actions, domain.TurnAction{Type: "create_node", Status: "completed", Params: resp.NodePayload})

	case domain.IntentProposeStrategy:
		result, err := s.planner.GeneratePlan(ctx, req.TenantID, req.SessionID, req.UserID, trendOrDefault(req))
		if err != nil {
			return nil, fmt.Errorf("failed to generate plan: %w", err)
		}
		resp.Plan = result
		resp.Reply = fmt.Sprintf("Proposed a %d-step strategy with confidence %.2f.", len(result.Plan.Actions), result.ConfidenceScore)
		actions = append(actions, domain.TurnAction{Type: "propose_strategy", Status: "completed", Target: result.Plan.ID})

	case domain.IntentExecuteAction:
		result, sagaTx, err := s.ProcessWithPlanning(ctx, req.TenantID, req.SessionID, req.UserID, trendOrDefault(req))
		if err != nil {
			return nil, err
		}
		resp.Plan = result
		resp.Saga = sagaTx
		resp.Reply = fmt.Sprintf("Executed plan %s: saga %s finished with status %s.", result.Plan.ID, sagaTx.ID, sagaTx.Status)
		actions = append(actions, domain.TurnAction{Type: "execute_plan", Status: string(sagaTx.Status), Target: sagaTx.ID})

	default:
		resp.Reply = "I can create campaign nodes, propose a strategy, or execute a plan. Tell me which."
	}

	if _, err := s.sessions.AddConversationTurn(ctx, req.SessionID, req.TenantID, correlationID, "agent", resp.Reply, actions, nil); err != nil {
		return nil, fmt.Errorf("failed to record agent turn: %w", err)
	}
	if _, err := s.sessions.UpdateShortContext(ctx, req.SessionID, req.TenantID, domain.ShortContext{
		LastIntent:        string(intent),
		ConversationState: conversationStateFor(intent),
	}); err != nil {
		return nil, fmt.Errorf("failed to update short context: %w", err)
	}
	return resp, nil
}

// ProcessWithPlanning generates a plan for the trend and runs it as a
// saga, one step per sequenced action.
func (s *Service) ProcessWithPlanning(ctx context.Context, tenantID, sessionID, userID string, trend domain.TrendAnalysis) (*domain.PlanResult, *domain.SagaTransaction, error) {
	result, err := s.planner.GeneratePlan(ctx, tenantID, sessionID, userID, trend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate plan: %w", err)
	}
	steps := StepsFromPlan(result.Plan)
	sagaTx, err := s.sagas.StartSaga(ctx, tenantID, sessionID, steps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start saga: %w", err)
	}
	return result, sagaTx, nil
}

// StepsFromPlan converts a plan's sequenced actions into saga steps.
// Analysis actions are read-only and not compensable; everything that
// creates or schedules content is.
func StepsFromPlan(plan *domain.ExecutionPlan) []domain.SagaStep {
	steps := make([]domain.SagaStep, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		params, _ := json.Marshal(map[string]interface{}{
			"action_id": action.ID,
			"plan_id":   plan.ID,
		})
		steps = append(steps, domain.SagaStep{
			Name:        strings.ToLower(string(action.Type)),
			Type:        string(action.Type),
			Params:      params,
			Compensable: isCompensable(action.Type),
		})
	}
	return steps
}

func isCompensable(t domain.ActionType) bool {
	switch t {
	case domain.ActionAnalyzeAudience, domain.ActionOptimizeTiming:
		return false
	default:
		return true
	}
}

func conversationStateFor(intent domain.UserIntent) string {
	if intent == domain.IntentExecuteAction {
		return domain.ConversationStateExecuting
	}
	return domain.ConversationStateActive
}

// trendOrDefault falls back to a conservative trend built from the
// message when the caller supplied none, so plan-oriented intents can
// always proceed.
func trendOrDefault(req *MessageRequest) domain.TrendAnalysis {
	if req.Trend != nil {
		return *req.Trend
	}
	return domain.TrendAnalysis{
		Topic:            strings.TrimSpace(req.Text),
		AudienceSize:     1000,
		EngagementRate:   0.03,
		CompetitionLevel: domain.CompetitionMedium,
		SentimentScore:   0,
	}
}

func (s *Service) buildNodePayload(req *MessageRequest) json.RawMessage {
	payload, _ := json.Marshal(map[string]interface{}{
		"node_id":    "node_" + uuid.New().String()[:8],
		"node_type":  "campaign",
		"title":      nodeTitle(req.Text),
		"status":     "draft",
		"tenant_id":  req.TenantID,
		"session_id": req.SessionID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

// nodeTitle derives a short title from the message text.
func nodeTitle(text string) string {
	t := strings.TrimSpace(text)
	if len(t) > 60 {
		t = t[:60]
	}
	if t == "" {
		return "Untitled campaign"
	}
	return t
}
