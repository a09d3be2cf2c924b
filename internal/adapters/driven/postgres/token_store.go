package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure TokenStore implements the interface.
var _ driven.TokenStore = (*TokenStore)(nil)

// TokenStore keeps one token row, keyed by store name.
type TokenStore struct {
	db     *DB
	key    string
	logger *slog.Logger
}

// NewTokenStore creates a PostgreSQL-backed token store.
func NewTokenStore(db *DB, name string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{db: db, key: name, logger: logger}
}

// Save upserts the token row.
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	query := `
		INSERT INTO oauth_tokens (token_key, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (token_key) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		s.key,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		token.Scope,
		NullTime(token.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Load returns the stored token, or nil when no row exists.
func (s *TokenStore) Load(ctx context.Context) (*domain.Token, error) {
	query := `
		SELECT access_token, refresh_token, token_type, scope, expires_at
		FROM oauth_tokens
		WHERE token_key = $1
	`

	var (
		token     domain.Token
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, s.key).Scan(
		&token.AccessToken,
		&token.RefreshToken,
		&token.TokenType,
		&token.Scope,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("ignoring unreadable token row", "key", s.key, "error", err)
		return nil, nil
	}
	if token.AccessToken == "" {
		s.logger.Warn("ignoring stored token without access token", "key", s.key)
		return nil, nil
	}
	token.ExpiresAt = TimeValue(expiresAt)
	return &token, nil
}

// Clear deletes the token row.
func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE token_key = $1`, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Ping checks if the database is reachable.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
