package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure MockTokenStore implements TokenStore
var _ driven.TokenStore = (*MockTokenStore)(nil)

// MockTokenStore is an in-memory TokenStore for testing.
// Set the error fields to make the matching operation fail.
type MockTokenStore struct {
	mu    sync.RWMutex
	token *domain.Token

	SaveErr  error
	LoadErr  error
	ClearErr error

	Saves  int
	Clears int
}

// NewMockTokenStore creates a new MockTokenStore, optionally pre-seeded.
func NewMockTokenStore(token *domain.Token) *MockTokenStore {
	m := &MockTokenStore{}
	if token != nil {
		c := *token
		m.token = &c
	}
	return m
}

func (m *MockTokenStore) Save(ctx context.Context, token *domain.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	c := *token
	m.token = &c
	m.Saves++
	return nil
}

func (m *MockTokenStore) Load(ctx context.Context) (*domain.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.token == nil {
		return nil, nil
	}
	c := *m.token
	return &c, nil
}

func (m *MockTokenStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.token = nil
	m.Clears++
	return nil
}

// Current returns the stored token without going through Load.
func (m *MockTokenStore) Current() *domain.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return nil
	}
	c := *m.token
	return &c
}
