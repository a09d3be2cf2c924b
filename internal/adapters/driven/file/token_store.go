// Package file stores the token as a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure TokenStore implements the interface.
var _ driven.TokenStore = (*TokenStore)(nil)

// TokenStore writes the token to a single file readable only by its owner.
// Writes go to a temporary file that is renamed over the target.
type TokenStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewTokenStore creates a file-backed token store at path.
func NewTokenStore(path string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{path: path, logger: logger}
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Save replaces the token file.
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// Load reads the token file. A missing or unreadable file yields nil.
func (s *TokenStore) Load(ctx context.Context) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("ignoring unreadable token file", "path", s.path, "error", err)
		return nil, nil
	}

	var token domain.Token
	if err := json.Unmarshal(data, &token); err != nil || token.AccessToken == "" {
		s.logger.Warn("ignoring unreadable token file", "path", s.path, "error", err)
		return nil, nil
	}
	return &token, nil
}

// Clear removes the token file.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
