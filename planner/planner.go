// Package planner converts a trend analysis into an ordered execution
// plan with dependencies, duration and cost estimates, a confidence
// score, and a risk list.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/metrics"
)

// Static per-type estimates, in seconds.
var actionDurations = map[domain.ActionType]int{
	domain.ActionCreateVideo:     3600,
	domain.ActionSchedulePost:    300,
	domain.ActionAnalyzeAudience: 1800,
	domain.ActionGenerateContent: 1200,
	domain.ActionOptimizeTiming:  600,
}

// Agents required per action type.
var actionAgents = map[domain.ActionType][]string{
	domain.ActionCreateVideo:     {"video-scripter", "content-editor"},
	domain.ActionSchedulePost:    {"post-scheduler"},
	domain.ActionAnalyzeAudience: {"audience-analyst"},
	domain.ActionGenerateContent: {"content-writer"},
	domain.ActionOptimizeTiming:  {"timing-optimizer"},
}

// Flat per-agent cost table used by the cost estimate.
var agentCosts = map[string]int{
	"video-scripter":   500,
	"content-editor":   200,
	"post-scheduler":   50,
	"audience-analyst": 300,
	"content-writer":   250,
	"timing-optimizer": 100,
}

// Base priorities; lower runs first.
var actionPriorities = map[domain.ActionType]int{
	domain.ActionAnalyzeAudience: 1,
	domain.ActionCreateVideo:     2,
	domain.ActionGenerateContent: 2,
	domain.ActionOptimizeTiming:  3,
	domain.ActionSchedulePost:    4,
}

// Planner generates execution plans. bus may be nil; the plan event is
// then skipped.
type Planner struct {
	bus eventbus.Bus
}

// New creates a planner.
func New(bus eventbus.Bus) *Planner {
	return &Planner{bus: bus}
}

// GeneratePlan applies the action rule set to a trend analysis and
// returns the sequenced plan with its assessment. A cyclic dependency
// set is an error.
func (p *Planner) GeneratePlan(ctx context.Context, tenantID, sessionID, userID string, trend domain.TrendAnalysis) (*domain.PlanResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	actions := p.generateActions(trend)
	actions, err := sequenceActions(actions)
	if err != nil {
		return nil, fmt.Errorf("failed to sequence actions: %w", err)
	}

	resources := calculateResourceRequirements(actions)
	confidence := calculateConfidence(trend, len(actions))
	risks := identifyRisks(trend, len(actions))

	now := time.Now()
	meta, _ := json.Marshal(map[string]interface{}{
		"topic":             trend.Topic,
		"engagement_rate":   trend.EngagementRate,
		"audience_size":     trend.AudienceSize,
		"competition_level": trend.CompetitionLevel,
		"sentiment_score":   trend.SentimentScore,
	})
	plan := &domain.ExecutionPlan{
		ID:                  "plan_" + uuid.New().String()[:8],
		TenantID:            tenantID,
		SessionID:           sessionID,
		UserID:              userID,
		CreatedAt:           now,
		EstimatedCompletion: now.Add(time.Duration(resources.ExecutionTime) * time.Second),
		Actions:             actions,
		Priority:            planPriority(trend),
		Status:              domain.PlanStatusCreated,
		Metadata:            meta,
	}

	metrics.PlansGenerated.Inc()
	p.publishPlanGenerated(ctx, plan, confidence)

	return &domain.PlanResult{
		Plan:                 plan,
		ConfidenceScore:      confidence,
		ResourceRequirements: resources,
		Risks:                risks,
	}, nil
}

// generateActions applies the deterministic rule set over the trend.
func (p *Planner) generateActions(trend domain.TrendAnalysis) []domain.PlannedAction {
	var actions []domain.PlannedAction

	if trend.AudienceSize > 5000 {
		actions = append(actions, newAction(domain.ActionAnalyzeAudience, map[string]interface{}{
			"audience_size": trend.AudienceSize,
			"keywords":      trend.Keywords,
		}))
	}

	if trend.EngagementRate > 0.05 && containsString(trend.ContentTypes, "video") {
		actions = append(actions, newAction(domain.ActionCreateVideo, map[string]interface{}{
			"topic":          trend.Topic,
			"target_emotion": determineTargetEmotion(trend.SentimentScore),
		}))
	}

	if trend.CompetitionLevel != domain.CompetitionHigh {
		actions = append(actions, newAction(domain.ActionGenerateContent, map[string]interface{}{
			"topic":    trend.Topic,
			"keywords": trend.Keywords,
		}))
	}

	timing := newAction(domain.ActionOptimizeTiming, map[string]interface{}{
		"audience_size": trend.AudienceSize,
	})
	actions = append(actions, timing)

	schedule := newAction(domain.ActionSchedulePost, map[string]interface{}{
		"topic": trend.Topic,
	})
	schedule.Dependencies = []string{timing.ID}
	actions = append(actions, schedule)

	return actions
}

func newAction(t domain.ActionType, params map[string]interface{}) domain.PlannedAction {
	raw, _ := json.Marshal(params)
	return domain.PlannedAction{
		ID:                "act_" + uuid.New().String()[:8],
		Type:              t,
		Priority:          actionPriorities[t],
		EstimatedDuration: actionDurations[t],
		RequiredAgents:    actionAgents[t],
		Parameters:        raw,
		Status:            domain.ActionStatusPending,
	}
}

// determineTargetEmotion maps sentiment to the emotion a video should
// aim for.
func determineTargetEmotion(sentiment float64) string {
	switch {
	case sentiment > 0.5:
		return "excited"
	case sentiment > 0:
		return "positive"
	case sentiment > -0.3:
		return "neutral"
	default:
		return "serious"
	}
}

// planPriority derives the 1..5 plan priority from trend signal
// strength.
func planPriority(trend domain.TrendAnalysis) int {
	p := 1
	if trend.EngagementRate > 0.05 {
		p++
	}
	if trend.AudienceSize > 10000 {
		p++
	}
	if trend.SentimentScore > 0.3 {
		p++
	}
	if trend.CompetitionLevel == domain.CompetitionLow {
		p++
	}
	if p > 5 {
		p = 5
	}
	return p
}

// calculateResourceRequirements sums durations, unions agents, and
// prices the plan from the flat cost table.
func calculateResourceRequirements(actions []domain.PlannedAction) domain.ResourceRequirements {
	var total int
	agentSet := make(map[string]bool)
	for _, a := range actions {
		total += a.EstimatedDuration
		for _, agent := range a.RequiredAgents {
			agentSet[agent] = true
		}
	}

	agents := make([]string, 0, len(agentSet))
	for agent := range agentSet {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	cost := 100 * len(actions)
	for _, agent := range agents {
		cost += agentCosts[agent]
	}

	return domain.ResourceRequirements{
		ExecutionTime:  total,
		RequiredAgents: agents,
		EstimatedCost:  cost,
	}
}

// calculateConfidence starts at 0.5 and applies weighted adjustments,
// clamped to [0, 1].
func calculateConfidence(trend domain.TrendAnalysis, actionCount int) float64 {
	score := 0.5

	if trend.EngagementRate > 0.05 {
		score += 0.15
	} else if trend.EngagementRate < 0.02 {
		score -= 0.05
	}

	if trend.AudienceSize > 10000 {
		score += 0.1
	} else if trend.AudienceSize < 1000 {
		score -= 0.1
	}

	switch trend.CompetitionLevel {
	case domain.CompetitionHigh:
		score -= 0.15
	case domain.CompetitionLow:
		score += 0.1
	}

	if trend.SentimentScore > 0.3 {
		score += 0.1
	} else if trend.SentimentScore < -0.3 {
		score -= 0.1
	}

	if actionCount > 5 {
		score -= 0.05
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// identifyRisks flags conditions that make a plan fragile.
func identifyRisks(trend domain.TrendAnalysis, actionCount int) []string {
	var risks []string
	if trend.CompetitionLevel == domain.CompetitionHigh {
		risks = append(risks, "high_competition")
	}
	if actionCount > 4 {
		risks = append(risks, "complex_execution")
	}
	if trend.AudienceSize < 1000 {
		risks = append(risks, "small_audience")
	}
	if trend.SentimentScore < -0.3 {
		risks = append(risks, "negative_sentiment")
	}
	return risks
}

func (p *Planner) publishPlanGenerated(ctx context.Context, plan *domain.ExecutionPlan, confidence float64) {
	if p.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"plan_id":      plan.ID,
		"action_count": len(plan.Actions),
		"priority":     plan.Priority,
		"confidence":   confidence,
	})
	if _, err := p.bus.Publish(ctx, &domain.AgentEvent{
		Type:      domain.EventTypePlanGenerated,
		TenantID:  plan.TenantID,
		SessionID: plan.SessionID,
		UserID:    plan.UserID,
		Source:    "planner",
		Payload:   payload,
	}); err != nil {
		log.Printf("WARN: failed to publish plan event: %v", err)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
