// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"errors"

	"github.com/launchsignal/orchestrator/domain"
)

// ErrSessionNotFound is returned when a turn is appended to a session
// context that does not exist (or is no longer active).
var ErrSessionNotFound = errors.New("session context not found")

// ErrStaleSaga is returned when a saga write loses an optimistic
// version check.
var ErrStaleSaga = errors.New("saga version conflict")

// Store defines the interface for data persistence. Lookups return
// (nil, nil) when the row does not exist.
type Store interface {
	// Session context operations
	CreateSessionContext(ctx context.Context, sc *domain.SessionContext) error
	GetSessionContext(ctx context.Context, sessionID, tenantID string) (*domain.SessionContext, error)
	UpdateSessionContext(ctx context.Context, sc *domain.SessionContext) error
	DeleteSessionContext(ctx context.Context, sessionID, tenantID string) error

	// Conversation turn operations. AppendConversationTurn assigns the
	// turn number from the stored counter inside a single transaction,
	// so concurrent appends never produce duplicate numbers.
	AppendConversationTurn(ctx context.Context, turn *domain.ConversationTurn, recent domain.RecentTurn, maxRecent int) (*domain.ConversationTurn, error)
	GetRecentTurns(ctx context.Context, sessionID, tenantID string, limit int) ([]domain.ConversationTurn, error)
	CountTurns(ctx context.Context, sessionID, tenantID string) (int, error)
	DeleteTurns(ctx context.Context, sessionID, tenantID string) error

	// Saga operations. UpdateSaga performs an optimistic version check
	// and returns ErrStaleSaga if the stored row has moved on.
	CreateSaga(ctx context.Context, saga *domain.SagaTransaction) error
	UpdateSaga(ctx context.Context, saga *domain.SagaTransaction) error
	GetSaga(ctx context.Context, sagaID string) (*domain.SagaTransaction, error)
	ListTenantSagas(ctx context.Context, tenantID string) ([]domain.SagaTransaction, error)

	// Event audit log
	RecordEvent(ctx context.Context, ev *domain.AgentEvent) error
	ListEvents(ctx context.Context, tenantID string, limit int) ([]domain.AgentEvent, error)

	// Lifecycle
	Close() error
}
