// Package sqlite stores the token in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	_ "modernc.org/sqlite"
)

// Ensure TokenStore implements the interface.
var _ driven.TokenStore = (*TokenStore)(nil)

const createTokensTable = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	token_key     TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type    TEXT NOT NULL DEFAULT '',
	scope         TEXT NOT NULL DEFAULT '',
	expires_at    INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL
)`

// TokenStore keeps one token row per store name. Expiry is stored as unix
// milliseconds, zero meaning unknown.
type TokenStore struct {
	db     *sql.DB
	key    string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path, name string, logger *slog.Logger) (*TokenStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTokensTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tokens table: %w", err)
	}

	return &TokenStore{db: db, key: name, logger: logger}, nil
}

// Close releases the underlying SQLite connection.
func (s *TokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the token row.
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	var expiresAt int64
	if !token.ExpiresAt.IsZero() {
		expiresAt = token.ExpiresAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (token_key, access_token, refresh_token, token_type, scope, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token_key) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.key,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		token.Scope,
		expiresAt,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Load returns the stored token, or nil when no usable row exists.
func (s *TokenStore) Load(ctx context.Context) (*domain.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, scope, expires_at
		 FROM oauth_tokens
		 WHERE token_key = ?`,
		s.key,
	)

	var token domain.Token
	var expiresAt int64
	err := row.Scan(&token.AccessToken, &token.RefreshToken, &token.TokenType, &token.Scope, &expiresAt)
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
	if expiresAt > 0 {
		token.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	}
	return &token, nil
}

// Clear deletes the token row.
func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE token_key = ?`, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
