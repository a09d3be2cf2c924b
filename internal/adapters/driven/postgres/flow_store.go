package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure FlowStore implements the interface.
var _ driven.FlowStore = (*FlowStore)(nil)

// FlowStore implements driven.FlowStore using PostgreSQL.
type FlowStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// NewFlowStore creates a PostgreSQL-backed flow store.
func NewFlowStore(db *DB, ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = domain.DefaultFlowTTL
	}
	return &FlowStore{db: db, ttl: ttl, now: time.Now}
}

// Begin inserts the flow. An existing row for the same state is left untouched.
func (s *FlowStore) Begin(ctx context.Context, flow *domain.PendingFlow) error {
	now := s.now()
	createdAt := flow.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	expiresAt := flow.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(s.ttl)
	}

	query := `
		INSERT INTO oauth_flows (state, code_verifier, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (state) DO NOTHING
	`

	var payload sql.NullString
	if len(flow.Payload) > 0 {
		payload = sql.NullString{String: string(flow.Payload), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query, flow.State, flow.Verifier, payload, createdAt.UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	if n == 0 {
		return domain.ErrDuplicateState
	}
	return nil
}

// Take deletes and returns the flow in one statement, so concurrent
// callbacks for the same state cannot both consume it.
func (s *FlowStore) Take(ctx context.Context, state string) (*domain.PendingFlow, error) {
	query := `
		DELETE FROM oauth_flows
		WHERE state = $1
		RETURNING state, code_verifier, payload, created_at, expires_at
	`

	var (
		flow    domain.PendingFlow
		payload sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, state).Scan(
		&flow.State,
		&flow.Verifier,
		&payload,
		&flow.CreatedAt,
		&flow.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take flow: %w", err)
	}

	if payload.Valid {
		flow.Payload = []byte(payload.String)
	}
	flow.CreatedAt = flow.CreatedAt.UTC()
	flow.ExpiresAt = flow.ExpiresAt.UTC()

	if flow.IsExpiredAt(s.now()) {
		return &flow, domain.ErrFlowExpired
	}
	return &flow, nil
}

// Cleanup removes expired flows and returns them.
func (s *FlowStore) Cleanup(ctx context.Context) ([]*domain.PendingFlow, error) {
	query := `
		DELETE FROM oauth_flows
		WHERE expires_at <= $1
		RETURNING state, code_verifier, payload, created_at, expires_at
	`

	rows, err := s.db.QueryContext(ctx, query, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cleanup flows: %w", err)
	}
	defer rows.Close()

	var evicted []*domain.PendingFlow
	for rows.Next() {
		var (
			flow    domain.PendingFlow
			payload sql.NullString
		)
		if err := rows.Scan(&flow.State, &flow.Verifier, &payload, &flow.CreatedAt, &flow.ExpiresAt); err != nil {
			return evicted, fmt.Errorf("scan expired flow: %w", err)
		}
		if payload.Valid {
			flow.Payload = []byte(payload.String)
		}
		evicted = append(evicted, &flow)
	}
	if err := rows.Err(); err != nil {
		return evicted, fmt.Errorf("cleanup flows: %w", err)
	}
	return evicted, nil
}

// Ping checks if the database is reachable.
func (s *FlowStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
