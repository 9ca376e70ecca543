package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchsignal/orchestrator/domain"
)

func generate(t *testing.T, trend domain.TrendAnalysis) *domain.PlanResult {
	t.Helper()
	res, err := New(nil).GeneratePlan(context.Background(), "t1", "s1", "u1", trend)
	require.NoError(t, err)
	return res
}

func actionsByType(plan *domain.ExecutionPlan) map[domain.ActionType][]domain.PlannedAction {
	out := make(map[domain.ActionType][]domain.PlannedAction)
	for _, a := range plan.Actions {
		out[a.Type] = append(out[a.Type], a)
	}
	return out
}

func TestPlanAlwaysContainsTimingAndSchedule(t *testing.T) {
	trends := []domain.TrendAnalysis{
		{},                              // empty input
		{AudienceSize: 100000, EngagementRate: 0.2, ContentTypes: []string{"video"}, SentimentScore: 1},
		{CompetitionLevel: domain.CompetitionHigh, SentimentScore: -1},
	}

	for _, trend := range trends {
		res := generate(t, trend)
		byType := actionsByType(res.Plan)

		require.Len(t, byType[domain.ActionOptimizeTiming], 1)
		require.Len(t, byType[domain.ActionSchedulePost], 1)

		timing := byType[domain.ActionOptimizeTiming][0]
		schedule := byType[domain.ActionSchedulePost][0]
		assert.Contains(t, schedule.Dependencies, timing.ID)
	}
}

func TestScheduleAlwaysAfterTiming(t *testing.T) {
	res := generate(t, domain.TrendAnalysis{
		AudienceSize: 60000, EngagementRate: 0.1,
		ContentTypes: []string{"video"}, SentimentScore: 0.6,
		CompetitionLevel: domain.CompetitionLow,
	})

	timingPos, schedulePos := -1, -1
	for i, a := range res.Plan.Actions {
		switch a.Type {
		case domain.ActionOptimizeTiming:
			timingPos = i
		case domain.ActionSchedulePost:
			schedulePos = i
		}
	}
	require.NotEqual(t, -1, timingPos)
	require.NotEqual(t, -1, schedulePos)
	assert.Less(t, timingPos, schedulePos)
}

func TestGoldenHighSignalTrend(t *testing.T) {
	res := generate(t, domain.TrendAnalysis{
		Topic:            "spring drop",
		EngagementRate:   0.1,
		ContentTypes:     []string{"video"},
		AudienceSize:     60000,
		CompetitionLevel: domain.CompetitionLow,
		SentimentScore:   0.6,
	})

	assert.Equal(t, 5, res.Plan.Priority)

	byType := actionsByType(res.Plan)
	require.Len(t, byType[domain.ActionCreateVideo], 1)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(byType[domain.ActionCreateVideo][0].Parameters, &params))
	assert.Equal(t, "excited", params["target_emotion"])

	// Strong signal on every axis: audience analysis and content
	// generation are both in.
	assert.Len(t, byType[domain.ActionAnalyzeAudience], 1)
	assert.Len(t, byType[domain.ActionGenerateContent], 1)
	assert.Contains(t, res.Risks, "complex_execution")
}

func TestConfidenceBounds(t *testing.T) {
	worst := generate(t, domain.TrendAnalysis{
		SentimentScore:   -1,
		AudienceSize:     0,
		CompetitionLevel: domain.CompetitionHigh,
	})
	assert.GreaterOrEqual(t, worst.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, worst.ConfidenceScore, 1.0)

	best := generate(t, domain.TrendAnalysis{
		EngagementRate:   0.5,
		AudienceSize:     1000000,
		CompetitionLevel: domain.CompetitionLow,
		SentimentScore:   1,
		ContentTypes:     []string{"video"},
	})
	assert.GreaterOrEqual(t, best.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, best.ConfidenceScore, 1.0)
	assert.Greater(t, best.ConfidenceScore, worst.ConfidenceScore)
}

func TestHighCompetitionSkipsContentGeneration(t *testing.T) {
	res := generate(t, domain.TrendAnalysis{CompetitionLevel: domain.CompetitionHigh})
	byType := actionsByType(res.Plan)
	assert.Empty(t, byType[domain.ActionGenerateContent])
	assert.Contains(t, res.Risks, "high_competition")
}

func TestSmallNegativeTrendRisks(t *testing.T) {
	res := generate(t, domain.TrendAnalysis{AudienceSize: 500, SentimentScore: -0.5})
	assert.Contains(t, res.Risks, "small_audience")
	assert.Contains(t, res.Risks, "negative_sentiment")
}

func TestTargetEmotionMapping(t *testing.T) {
	cases := []struct {
		sentiment float64
		want      string
	}{
		{0.9, "excited"},
		{0.51, "excited"},
		{0.5, "positive"},
		{0.01, "positive"},
		{0, "neutral"},
		{-0.29, "neutral"},
		{-0.3, "serious"},
		{-1, "serious"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, determineTargetEmotion(tc.sentiment), "sentiment %v", tc.sentiment)
	}
}

func TestResourceRequirements(t *testing.T) {
	res := generate(t, domain.TrendAnalysis{CompetitionLevel: domain.CompetitionHigh})
	// Only OPTIMIZE_TIMING and SCHEDULE_POST survive a hostile trend.
	require.Len(t, res.Plan.Actions, 2)

	rr := res.ResourceRequirements
	assert.Equal(t, 900, rr.ExecutionTime)
	assert.ElementsMatch(t, []string{"post-scheduler", "timing-optimizer"}, rr.RequiredAgents)
	// 100 per action plus the flat agent costs.
	assert.Equal(t, 2*100+50+100, rr.EstimatedCost)

	expected := res.Plan.CreatedAt.Add(900 * time.Second)
	assert.Equal(t, expected, res.Plan.EstimatedCompletion)
}

func TestGeneratePlanValidation(t *testing.T) {
	p := New(nil)
	_, err := p.GeneratePlan(context.Background(), "", "s1", "", domain.TrendAnalysis{})
	assert.Error(t, err)
	_, err = p.GeneratePlan(context.Background(), "t1", "", "", domain.TrendAnalysis{})
	assert.Error(t, err)
}
