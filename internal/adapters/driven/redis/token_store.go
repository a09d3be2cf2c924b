package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var (
	_ driven.TokenStore = (*TokenStore)(nil)
	_ driven.Pinger     = (*TokenStore)(nil)
)

const tokenPrefix = keyPrefix + "token:"

// TokenStore implements driven.TokenStore using a single Redis key.
// SET replaces the value atomically, so readers never see a partial token.
type TokenStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewTokenStore creates a token store for the named credential.
func NewTokenStore(client *redis.Client, name string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{client: client, key: tokenPrefix + name, logger: logger}
}

// Save stores the token without expiry; the refresh token outlives the access token.
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Load returns the stored token, or nil when absent or unreadable.
func (s *TokenStore) Load(ctx context.Context) (*domain.Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("ignoring unreadable stored token", "key", s.key, "error", err)
		return nil, nil
	}

	var token domain.Token
	if err := json.Unmarshal(data, &token); err != nil || token.AccessToken == "" {
		s.logger.Warn("ignoring unreadable stored token", "key", s.key, "error", err)
		return nil, nil
	}
	return &token, nil
}

// Clear deletes the token key.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
