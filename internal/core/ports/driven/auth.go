package driven

import (
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// AuthAdapter mints and verifies operator API tokens.
// It holds no state beyond its signing key.
type AuthAdapter interface {
	// GenerateToken signs a token for subject that is valid for ttl.
	GenerateToken(subject string, ttl time.Duration) (string, error)

	// ParseToken verifies a token and returns its claims.
	// Returns domain.ErrTokenExpired or domain.ErrTokenInvalid on failure.
	ParseToken(token string) (*domain.OperatorClaims, error)
}
