// Package session manages per-session conversational context and the
// rolling recent-turns window.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/eventbus"
	"github.com/launchsignal/orchestrator/store"
)

const recentTurnMaxLen = 200

// Service is the session context service.
type Service struct {
	store          store.Store
	bus            eventbus.Bus
	ttl            time.Duration
	maxRecentTurns int
}

// New creates a session service. bus may be nil; turn events are then
// not published.
func New(st store.Store, bus eventbus.Bus, ttl time.Duration, maxRecentTurns int) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxRecentTurns <= 0 {
		maxRecentTurns = 10
	}
	return &Service{store: st, bus: bus, ttl: ttl, maxRecentTurns: maxRecentTurns}
}

// GetOrCreateContext looks a context up by its composite key and
// creates it with defaults on first contact.
func (s *Service) GetOrCreateContext(ctx context.Context, sessionID, tenantID, channel, userID string) (*domain.SessionContext, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	sc, err := s.store.GetSessionContext(ctx, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	if sc != nil {
		return sc, nil
	}

	now := time.Now()
	sc = &domain.SessionContext{
		SessionID:   sessionID,
		TenantID:    tenantID,
		UserID:      userID,
		Channel:     channel,
		Short:       domain.ShortContext{ConversationState: domain.ConversationStateGreeting},
		RecentTurns: []domain.RecentTurn{},
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		IsActive:    true,
	}
	if err := s.store.CreateSessionContext(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create session context: %w", err)
	}
	return sc, nil
}

// AddConversationTurn persists a turn against an existing context. The
// turn number comes from the store's atomic counter; the trimmed
// summary joins the recent-turns window.
func (s *Service) AddConversationTurn(ctx context.Context, sessionID, tenantID, correlationID, role, text string, actions []domain.TurnAction, metadata json.RawMessage) (*domain.ConversationTurn, error) {
	if role != "user" && role != "agent" {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	turn := &domain.ConversationTurn{
		TurnID:        "turn_" + uuid.New().String()[:8],
		SessionID:     sessionID,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Role:          role,
		Text:          text,
		Actions:       actions,
		Metadata:      metadata,
		Timestamp:     time.Now(),
	}
	recent := domain.RecentTurn{
		Role:      role,
		Text:      trim(text, recentTurnMaxLen),
		Timestamp: turn.Timestamp,
	}

	turn, err := s.store.AppendConversationTurn(ctx, turn, recent, s.maxRecentTurns)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"turn_id":     turn.TurnID,
			"turn_number": turn.TurnNumber,
			"role":        turn.Role,
		})
		if _, err := s.bus.Publish(ctx, &domain.AgentEvent{
			Type:          domain.EventTypeTurnRecorded,
			TenantID:      tenantID,
			SessionID:     sessionID,
			CorrelationID: correlationID,
			Source:        "session",
			Payload:       payload,
		}); err != nil {
			log.Printf("WARN: failed to publish turn event: %v", err)
		}
	}
	return turn, nil
}

// UpdateShortContext shallow-merges updates into the stored short
// context. Zero-valued fields in updates leave the stored value alone.
func (s *Service) UpdateShortContext(ctx context.Context, sessionID, tenantID string, updates domain.ShortContext) (*domain.SessionContext, error) {
	sc, err := s.store.GetSessionContext(ctx, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	if sc == nil {
		return nil, store.ErrSessionNotFound
	}

	if updates.Summary != "" {
		sc.Short.Summary = updates.Summary
	}
	if updates.LastIntent != "" {
		sc.Short.LastIntent = updates.LastIntent
	}
	if updates.ConversationState != "" {
		sc.Short.ConversationState = updates.ConversationState
	}
	for k, v := range updates.Entities {
		if sc.Short.Entities == nil {
			sc.Short.Entities = make(map[string]string)
		}
		sc.Short.Entities[k] = v
	}

	if err := s.store.UpdateSessionContext(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to update session context: %w", err)
	}
	return sc, nil
}

// GetRecentTurns returns persisted turns, newest first.
func (s *Service) GetRecentTurns(ctx context.Context, sessionID, tenantID string, limit int) ([]domain.ConversationTurn, error) {
	return s.store.GetRecentTurns(ctx, sessionID, tenantID, limit)
}

// CompressContext projects a context down to its short context and the
// last few turns for cheap transmission to downstream agents.
func (s *Service) CompressContext(ctx context.Context, sessionID, tenantID string) (*domain.CompressedContext, error) {
	sc, err := s.store.GetSessionContext(ctx, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	if sc == nil {
		return nil, store.ErrSessionNotFound
	}

	last := sc.RecentTurns
	if len(last) > 5 {
		last = last[len(last)-5:]
	}
	return &domain.CompressedContext{
		SessionID: sc.SessionID,
		TenantID:  sc.TenantID,
		Short:     sc.Short,
		LastTurns: last,
		TurnCount: sc.TurnCount,
	}, nil
}

// DeleteSession removes all conversation turns, then the context row.
// Turns go first so a partial failure never leaves dangling turn rows.
func (s *Service) DeleteSession(ctx context.Context, sessionID, tenantID string) error {
	if err := s.store.DeleteTurns(ctx, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if err := s.store.DeleteSessionContext(ctx, sessionID, tenantID); err != nil {
		return fmt.Errorf("failed to delete session context: %w", err)
	}
	return nil
}

// GetSessionSummary aggregates the context with a stored-turn count.
func (s *Service) GetSessionSummary(ctx context.Context, sessionID, tenantID string) (*domain.SessionSummary, error) {
	sc, err := s.store.GetSessionContext(ctx, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	if sc == nil {
		return nil, store.ErrSessionNotFound
	}
	n, err := s.store.CountTurns(ctx, sessionID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}

	return &domain.SessionSummary{
		SessionID:   sc.SessionID,
		TenantID:    sc.TenantID,
		UserID:      sc.UserID,
		Channel:     sc.Channel,
		Short:       sc.Short,
		TurnCount:   sc.TurnCount,
		CreatedAt:   sc.CreatedAt,
		UpdatedAt:   sc.UpdatedAt,
		ExpiresAt:   sc.ExpiresAt,
		IsActive:    sc.IsActive,
		TurnsStored: n,
	}, nil
}

func trim(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
