package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/launchsignal/orchestrator/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_contexts (
			session_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			user_id TEXT,
			channel TEXT NOT NULL,
			short_context TEXT NOT NULL,
			recent_turns TEXT NOT NULL DEFAULT '[]',
			turn_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (session_id, tenant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			correlation_id TEXT,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			actions TEXT,
			metadata TEXT,
			ts DATETIME NOT NULL,
			turn_number INTEGER NOT NULL,
			UNIQUE (session_id, tenant_id, turn_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id, tenant_id, turn_number)`,
		`CREATE TABLE IF NOT EXISTS sagas (
			saga_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			steps TEXT NOT NULL,
			current_state INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sagas_tenant ON sagas(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS agent_events (
			event_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT,
			type TEXT NOT NULL,
			payload TEXT,
			source TEXT,
			destination TEXT,
			correlation_id TEXT,
			ts DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant ON agent_events(tenant_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSessionContext inserts a new session context row.
func (s *SQLiteStore) CreateSessionContext(ctx context.Context, sc *domain.SessionContext) error {
	short, err := json.Marshal(sc.Short)
	if err != nil {
		return fmt.Errorf("marshal short context: %w", err)
	}
	recent, err := json.Marshal(sc.RecentTurns)
	if err != nil {
		return fmt.Errorf("marshal recent turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_contexts
		(session_id, tenant_id, user_id, channel, short_context, recent_turns, turn_count, metadata, created_at, updated_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.SessionID, sc.TenantID, sc.UserID, sc.Channel, string(short), string(recent),
		sc.TurnCount, nullableJSON(sc.Metadata), sc.CreatedAt, sc.UpdatedAt, sc.ExpiresAt, boolToInt(sc.IsActive))
	return err
}

// GetSessionContext retrieves a session context by composite key.
func (s *SQLiteStore) GetSessionContext(ctx context.Context, sessionID, tenantID string) (*domain.SessionContext, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, tenant_id, user_id, channel, short_context, recent_turns, turn_count, metadata, created_at, updated_at, expires_at, is_active
		FROM session_contexts WHERE session_id = ? AND tenant_id = ?`,
		sessionID, tenantID)
	return scanSessionContext(row)
}

func scanSessionContext(row *sql.Row) (*domain.SessionContext, error) {
	var sc domain.SessionContext
	var userID, short, recent, metadata sql.NullString
	var isActive int

	err := row.Scan(&sc.SessionID, &sc.TenantID, &userID, &sc.Channel, &short, &recent,
		&sc.TurnCount, &metadata, &sc.CreatedAt, &sc.UpdatedAt, &sc.ExpiresAt, &isActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sc.UserID = userID.String
	sc.IsActive = isActive != 0
	if short.Valid && short.String != "" {
		if err := json.Unmarshal([]byte(short.String), &sc.Short); err != nil {
			return nil, fmt.Errorf("unmarshal short context: %w", err)
		}
	}
	if recent.Valid && recent.String != "" {
		if err := json.Unmarshal([]byte(recent.String), &sc.RecentTurns); err != nil {
			return nil, fmt.Errorf("unmarshal recent turns: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		sc.Metadata = json.RawMessage(metadata.String)
	}
	return &sc, nil
}

// UpdateSessionContext writes the mutable fields of a session context.
func (s *SQLiteStore) UpdateSessionContext(ctx context.Context, sc *domain.SessionContext) error {
	short, err := json.Marshal(sc.Short)
	if err != nil {
		return fmt.Errorf("marshal short context: %w", err)
	}
	recent, err := json.Marshal(sc.RecentTurns)
	if err != nil {
		return fmt.Errorf("marshal recent turns: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE session_contexts
		SET short_context = ?, recent_turns = ?, metadata = ?, updated_at = ?, is_active = ?
		WHERE session_id = ? AND tenant_id = ?`,
		string(short), string(recent), nullableJSON(sc.Metadata), time.Now(), boolToInt(sc.IsActive),
		sc.SessionID, sc.TenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSessionContext removes a session context row.
func (s *SQLiteStore) DeleteSessionContext(ctx context.Context, sessionID, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_contexts WHERE session_id = ? AND tenant_id = ?`,
		sessionID, tenantID)
	return err
}

// AppendConversationTurn persists a turn with a turn number taken from
// the session's counter, and folds the trimmed summary into the recent
// turns window. All of it happens in one transaction, so concurrent
// appends serialize on the session row and numbering stays monotonic.
func (s *SQLiteStore) AppendConversationTurn(ctx context.Context, turn *domain.ConversationTurn, recent domain.RecentTurn, maxRecent int) (*domain.ConversationTurn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var turnCount int
	var recentRaw string
	err = tx.QueryRowContext(ctx,
		`SELECT turn_count, recent_turns FROM session_contexts
		WHERE session_id = ? AND tenant_id = ? AND is_active = 1`,
		turn.SessionID, turn.TenantID).Scan(&turnCount, &recentRaw)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	turn.TurnNumber = turnCount + 1
	recent.TurnNumber = turn.TurnNumber

	actions, err := json.Marshal(turn.Actions)
	if err != nil {
		return nil, fmt.Errorf("marshal actions: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_turns
		(turn_id, session_id, tenant_id, correlation_id, role, text, actions, metadata, ts, turn_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.TenantID, turn.CorrelationID, turn.Role, turn.Text,
		string(actions), nullableJSON(turn.Metadata), turn.Timestamp, turn.TurnNumber)
	if err != nil {
		return nil, err
	}

	var window []domain.RecentTurn
	if recentRaw != "" {
		if err := json.Unmarshal([]byte(recentRaw), &window); err != nil {
			return nil, fmt.Errorf("unmarshal recent turns: %w", err)
		}
	}
	window = append(window, recent)
	if maxRecent > 0 && len(window) > maxRecent {
		window = window[len(window)-maxRecent:]
	}
	windowRaw, err := json.Marshal(window)
	if err != nil {
		return nil, fmt.Errorf("marshal recent turns: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE session_contexts SET turn_count = ?, recent_turns = ?, updated_at = ?
		WHERE session_id = ? AND tenant_id = ?`,
		turn.TurnNumber, string(windowRaw), time.Now(), turn.SessionID, turn.TenantID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return turn, nil
}

// GetRecentTurns returns persisted turns ordered newest first.
func (s *SQLiteStore) GetRecentTurns(ctx context.Context, sessionID, tenantID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, session_id, tenant_id, correlation_id, role, text, actions, metadata, ts, turn_number
		FROM conversation_turns WHERE session_id = ? AND tenant_id = ?
		ORDER BY turn_number DESC LIMIT ?`,
		sessionID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var correlationID, actions, metadata sql.NullString
		if err := rows.Scan(&t.TurnID, &t.SessionID, &t.TenantID, &correlationID, &t.Role, &t.Text,
			&actions, &metadata, &t.Timestamp, &t.TurnNumber); err != nil {
			return nil, err
		}
		t.CorrelationID = correlationID.String
		if actions.Valid && actions.String != "" && actions.String != "null" {
			if err := json.Unmarshal([]byte(actions.String), &t.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal actions: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			t.Metadata = json.RawMessage(metadata.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// CountTurns returns the number of persisted turns for a session.
func (s *SQLiteStore) CountTurns(ctx context.Context, sessionID, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE session_id = ? AND tenant_id = ?`,
		sessionID, tenantID).Scan(&n)
	return n, err
}

// DeleteTurns removes all turns for a session.
func (s *SQLiteStore) DeleteTurns(ctx context.Context, sessionID, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE session_id = ? AND tenant_id = ?`,
		sessionID, tenantID)
	return err
}

// CreateSaga inserts a new saga row at version 1.
func (s *SQLiteStore) CreateSaga(ctx context.Context, saga *domain.SagaTransaction) error {
	steps, err := json.Marshal(saga.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	saga.Version = 1
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sagas
		(saga_id, tenant_id, session_id, steps, current_state, status, result, error, version, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		saga.ID, saga.TenantID, saga.SessionID, string(steps), saga.CurrentState, string(saga.Status),
		nullableJSON(saga.Result), saga.Error, saga.Version, saga.CreatedAt, saga.UpdatedAt, saga.CompletedAt)
	return err
}

// UpdateSaga writes saga state guarded by the version column. The
// caller's copy has its version bumped on success.
func (s *SQLiteStore) UpdateSaga(ctx context.Context, saga *domain.SagaTransaction) error {
	steps, err := json.Marshal(saga.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sagas
		SET steps = ?, current_state = ?, status = ?, result = ?, error = ?, version = version + 1, updated_at = ?, completed_at = ?
		WHERE saga_id = ? AND version = ?`,
		string(steps), saga.CurrentState, string(saga.Status), nullableJSON(saga.Result), saga.Error,
		time.Now(), saga.CompletedAt, saga.ID, saga.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleSaga
	}
	saga.Version++
	return nil
}

// GetSaga retrieves a saga by ID.
func (s *SQLiteStore) GetSaga(ctx context.Context, sagaID string) (*domain.SagaTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT saga_id, tenant_id, session_id, steps, current_state, status, result, error, version, created_at, updated_at, completed_at
		FROM sagas WHERE saga_id = ?`, sagaID)

	saga, err := scanSaga(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return saga, err
}

// ListTenantSagas lists sagas for a tenant, newest first.
func (s *SQLiteStore) ListTenantSagas(ctx context.Context, tenantID string) ([]domain.SagaTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT saga_id, tenant_id, session_id, steps, current_state, status, result, error, version, created_at, updated_at, completed_at
		FROM sagas WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sagas []domain.SagaTransaction
	for rows.Next() {
		saga, err := scanSaga(rows.Scan)
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, *saga)
	}
	return sagas, rows.Err()
}

func scanSaga(scan func(dest ...interface{}) error) (*domain.SagaTransaction, error) {
	var saga domain.SagaTransaction
	var steps string
	var result, sagaErr sql.NullString
	var completedAt sql.NullTime

	err := scan(&saga.ID, &saga.TenantID, &saga.SessionID, &steps, &saga.CurrentState, &saga.Status,
		&result, &sagaErr, &saga.Version, &saga.CreatedAt, &saga.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &saga.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if result.Valid && result.String != "" {
		saga.Result = json.RawMessage(result.String)
	}
	saga.Error = sagaErr.String
	if completedAt.Valid {
		t := completedAt.Time
		saga.CompletedAt = &t
	}
	return &saga, nil
}

// RecordEvent appends a bus event to the audit log.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *domain.AgentEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_events
		(event_id, tenant_id, session_id, type, payload, source, destination, correlation_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.SessionID, ev.Type, nullableJSON(ev.Payload),
		ev.Source, ev.Destination, ev.CorrelationID, ev.Timestamp)
	return err
}

// ListEvents returns recorded events for a tenant, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, tenantID string, limit int) ([]domain.AgentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, tenant_id, session_id, type, payload, source, destination, correlation_id, ts
		FROM agent_events WHERE tenant_id = ? ORDER BY ts DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AgentEvent
	for rows.Next() {
		var ev domain.AgentEvent
		var sessionID, payload, source, destination, correlationID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TenantID, &sessionID, &ev.Type, &payload,
			&source, &destination, &correlationID, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.SessionID = sessionID.String
		ev.Source = source.String
		ev.Destination = destination.String
		ev.CorrelationID = correlationID.String
		if payload.Valid && payload.String != "" {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
