package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/launchsignal/orchestrator/config"
	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/planner"
	"github.com/launchsignal/orchestrator/saga"
	"github.com/launchsignal/orchestrator/service"
	"github.com/launchsignal/orchestrator/session"
	"github.com/launchsignal/orchestrator/tests/helpers"
)

// newTestHandler wires a full handler against an in-memory store, an
// in-process bus, and no-op step executors.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	bus := eventbus.NewInProc("events", time.Millisecond, 3)
	t.Cleanup(func() { _ = bus.Close() })

	sessions := session.New(st, bus, 24*time.Hour, 10)
	pl := planner.New(bus)

	reg := saga.NewRegistry()
	noop := &saga.FuncExecutor{
		ExecuteFn: func(ctx context.Context, tenantID, sessionID string, step *domain.SagaStep) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		},
	}
	for _, actionType := range []domain.ActionType{
		domain.ActionCreateVideo,
		domain.ActionSchedulePost,
		domain.ActionAnalyzeAudience,
		domain.ActionGenerateContent,
		domain.ActionOptimizeTiming,
	} {
		reg.Register(string(actionType), noop)
	}
	engine := saga.NewEngine(st, bus, nil, reg, 5*time.Second, time.Millisecond, 1)

	meta := service.New(sessions, pl, engine)
	return NewHandler(pl, engine, sessions, meta, bus, &config.Config{})
}

func testTrend() domain.TrendAnalysis {
	return domain.TrendAnalysis{
		Topic:            "ai tools",
		AudienceSize:     50000,
		EngagementRate:   0.08,
		CompetitionLevel: domain.CompetitionMedium,
		SentimentScore:   0.7,
		ContentTypes:     []string{"video"},
	}
}
