package driven

import (
	"context"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// TokenStore persists the single credential set between runs.
type TokenStore interface {
	// Save replaces the stored token. Readers never observe a partial write.
	Save(ctx context.Context, token *domain.Token) error

	// Load returns the stored token.
	// Returns nil, nil when nothing is stored or the stored record is
	// unreadable. An error means the backend itself is unavailable.
	Load(ctx context.Context) (*domain.Token, error)

	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
