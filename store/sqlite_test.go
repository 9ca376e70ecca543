package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/launchsignal/orchestrator/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestContext(sessionID, tenantID string) *domain.SessionContext {
	now := time.Now()
	return &domain.SessionContext{
		SessionID: sessionID,
		TenantID:  tenantID,
		UserID:    "u1",
		Channel:   "whatsapp",
		Short:     domain.ShortContext{ConversationState: domain.ConversationStateGreeting},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		IsActive:  true,
	}
}

func newTurn(sessionID, tenantID, role, text string) *domain.ConversationTurn {
	return &domain.ConversationTurn{
		TurnID:    "turn_" + uuid.New().String()[:8],
		SessionID: sessionID,
		TenantID:  tenantID,
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestSessionContextRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSessionContext(ctx, newTestContext("s1", "t1")); err != nil {
		t.Fatalf("CreateSessionContext failed: %v", err)
	}

	got, err := s.GetSessionContext(ctx, "s1", "t1")
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected context, got nil")
	}
	if got.Channel != "whatsapp" || got.Short.ConversationState != domain.ConversationStateGreeting {
		t.Fatalf("unexpected context: %+v", got)
	}
	if !got.IsActive || got.TurnCount != 0 {
		t.Fatalf("unexpected context state: %+v", got)
	}

	missing, err := s.GetSessionContext(ctx, "s1", "other-tenant")
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for other tenant, got %+v", missing)
	}
}

func TestAppendConversationTurnNumbersMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSessionContext(ctx, newTestContext("s1", "t1")); err != nil {
		t.Fatalf("CreateSessionContext failed: %v", err)
	}

	first, err := s.AppendConversationTurn(ctx, newTurn("s1", "t1", "user", "hello"),
		domain.RecentTurn{Role: "user", Text: "hello", Timestamp: time.Now()}, 10)
	if err != nil {
		t.Fatalf("AppendConversationTurn failed: %v", err)
	}
	second, err := s.AppendConversationTurn(ctx, newTurn("s1", "t1", "agent", "hi"),
		domain.RecentTurn{Role: "agent", Text: "hi", Timestamp: time.Now()}, 10)
	if err != nil {
		t.Fatalf("AppendConversationTurn failed: %v", err)
	}

	if first.TurnNumber != 1 || second.TurnNumber != 2 {
		t.Fatalf("expected turn numbers 1,2, got %d,%d", first.TurnNumber, second.TurnNumber)
	}

	sc, err := s.GetSessionContext(ctx, "s1", "t1")
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if sc.TurnCount != 2 {
		t.Fatalf("expected turn_count 2, got %d", sc.TurnCount)
	}
	if len(sc.RecentTurns) != 2 {
		t.Fatalf("expected 2 recent turns, got %d", len(sc.RecentTurns))
	}
}

func TestAppendConversationTurnWindowCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSessionContext(ctx, newTestContext("s1", "t1")); err != nil {
		t.Fatalf("CreateSessionContext failed: %v", err)
	}

	for i := 0; i < 15; i++ {
		_, err := s.AppendConversationTurn(ctx, newTurn("s1", "t1", "user", "msg"),
			domain.RecentTurn{Role: "user", Text: "msg", Timestamp: time.Now()}, 10)
		if err != nil {
			t.Fatalf("AppendConversationTurn %d failed: %v", i, err)
		}
	}

	sc, err := s.GetSessionContext(ctx, "s1", "t1")
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if len(sc.RecentTurns) != 10 {
		t.Fatalf("expected window capped at 10, got %d", len(sc.RecentTurns))
	}
	if sc.TurnCount != 15 {
		t.Fatalf("expected turn_count 15, got %d", sc.TurnCount)
	}
	// Window keeps the newest turns.
	if sc.RecentTurns[len(sc.RecentTurns)-1].TurnNumber != 15 {
		t.Fatalf("expected newest turn 15 in window, got %d", sc.RecentTurns[len(sc.RecentTurns)-1].TurnNumber)
	}
}

func TestAppendConversationTurnMissingSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AppendConversationTurn(context.Background(), newTurn("nope", "t1", "user", "x"),
		domain.RecentTurn{}, 10)
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetRecentTurnsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSessionContext(ctx, newTestContext("s1", "t1")); err != nil {
		t.Fatalf("CreateSessionContext failed: %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.AppendConversationTurn(ctx, newTurn("s1", "t1", "user", text),
			domain.RecentTurn{Role: "user", Text: text, Timestamp: time.Now()}, 10); err != nil {
			t.Fatalf("AppendConversationTurn failed: %v", err)
		}
	}

	turns, err := s.GetRecentTurns(ctx, "s1", "t1", 2)
	if err != nil {
		t.Fatalf("GetRecentTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Text != "three" || turns[1].Text != "two" {
		t.Fatalf("unexpected order: %q, %q", turns[0].Text, turns[1].Text)
	}
}

func TestDeleteSessionAndTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSessionContext(ctx, newTestContext("s1", "t1")); err != nil {
		t.Fatalf("CreateSessionContext failed: %v", err)
	}
	if _, err := s.AppendConversationTurn(ctx, newTurn("s1", "t1", "user", "x"),
		domain.RecentTurn{}, 10); err != nil {
		t.Fatalf("AppendConversationTurn failed: %v", err)
	}

	if err := s.DeleteTurns(ctx, "s1", "t1"); err != nil {
		t.Fatalf("DeleteTurns failed: %v", err)
	}
	if err := s.DeleteSessionContext(ctx, "s1", "t1"); err != nil {
		t.Fatalf("DeleteSessionContext failed: %v", err)
	}

	n, err := s.CountTurns(ctx, "s1", "t1")
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 turns after delete, got %d", n)
	}
	sc, err := s.GetSessionContext(ctx, "s1", "t1")
	if err != nil {
		t.Fatalf("GetSessionContext failed: %v", err)
	}
	if sc != nil {
		t.Fatalf("expected nil context after delete, got %+v", sc)
	}
}

func TestSagaVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	saga := &domain.SagaTransaction{
		ID:        "saga_1",
		TenantID:  "t1",
		SessionID: "s1",
		Steps: []domain.SagaStep{
			{ID: "st1", Name: "generate content", Type: "agent_action", Status: domain.StepStatusPending},
		},
		Status:    domain.SagaStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateSaga(ctx, saga); err != nil {
		t.Fatalf("CreateSaga failed: %v", err)
	}
	if saga.Version != 1 {
		t.Fatalf("expected version 1 after create, got %d", saga.Version)
	}

	saga.Status = domain.SagaStatusExecuting
	if err := s.UpdateSaga(ctx, saga); err != nil {
		t.Fatalf("UpdateSaga failed: %v", err)
	}
	if saga.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", saga.Version)
	}

	// A writer holding a stale version must be rejected.
	stale := *saga
	stale.Version = 1
	stale.Status = domain.SagaStatusCompleted
	if err := s.UpdateSaga(ctx, &stale); err != ErrStaleSaga {
		t.Fatalf("expected ErrStaleSaga, got %v", err)
	}

	got, err := s.GetSaga(ctx, "saga_1")
	if err != nil {
		t.Fatalf("GetSaga failed: %v", err)
	}
	if got.Status != domain.SagaStatusExecuting || got.Version != 2 {
		t.Fatalf("unexpected saga: status=%s version=%d", got.Status, got.Version)
	}
	if len(got.Steps) != 1 || got.Steps[0].Name != "generate content" {
		t.Fatalf("steps did not round-trip: %+v", got.Steps)
	}
}

func TestListTenantSagas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"saga_a", "saga_b"} {
		now := time.Now().Add(time.Duration(i) * time.Second)
		saga := &domain.SagaTransaction{
			ID: id, TenantID: "t1", SessionID: "s1",
			Steps:     []domain.SagaStep{},
			Status:    domain.SagaStatusCompleted,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := s.CreateSaga(ctx, saga); err != nil {
			t.Fatalf("CreateSaga failed: %v", err)
		}
	}
	other := &domain.SagaTransaction{
		ID: "saga_other", TenantID: "t2", SessionID: "s2",
		Steps: []domain.SagaStep{}, Status: domain.SagaStatusPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.CreateSaga(ctx, other); err != nil {
		t.Fatalf("CreateSaga failed: %v", err)
	}

	sagas, err := s.ListTenantSagas(ctx, "t1")
	if err != nil {
		t.Fatalf("ListTenantSagas failed: %v", err)
	}
	if len(sagas) != 2 {
		t.Fatalf("expected 2 sagas, got %d", len(sagas))
	}
	if sagas[0].ID != "saga_b" {
		t.Fatalf("expected newest first, got %s", sagas[0].ID)
	}
}

func TestEventAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := &domain.AgentEvent{
		ID:        "evt_1",
		Type:      domain.EventTypePlanGenerated,
		TenantID:  "t1",
		SessionID: "s1",
		Payload:   []byte(`{"plan_id":"p1"}`),
		Timestamp: time.Now(),
	}
	if err := s.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	// Duplicate record of the same event id is ignored.
	if err := s.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("RecordEvent duplicate failed: %v", err)
	}

	events, err := s.ListEvents(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != domain.EventTypePlanGenerated {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}
