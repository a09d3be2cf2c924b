package driven

import (
	"context"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// TokenUpdater is called with every refreshed token before Refresh returns.
// A non-nil error fails the refresh.
type TokenUpdater func(ctx context.Context, token *domain.Token) error

// OAuthSession speaks the authorization-code-with-PKCE protocol to the
// provider for one configured client.
type OAuthSession interface {
	// BuildAuthorizationURL returns the provider URL for challenge together
	// with a freshly generated state.
	BuildAuthorizationURL(challenge string) (authURL string, state string, err error)

	// ExchangeCode trades an authorization code and its verifier for a token.
	// Failures are *domain.AuthExchangeError.
	ExchangeCode(ctx context.Context, code, verifier string) (*domain.Token, error)

	// IsExpired applies the expiry margin to token at the current time.
	IsExpired(token *domain.Token) bool

	// Refresh obtains a new token from token's refresh token and passes it to
	// the registered TokenUpdater. Failures are *domain.AuthExchangeError.
	Refresh(ctx context.Context, token *domain.Token) (*domain.Token, error)

	// OnTokenRefreshed registers the persistence hook for refreshed tokens.
	OnTokenRefreshed(fn TokenUpdater)
}
