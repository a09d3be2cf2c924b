package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// ActionRunner executes the deferred action once a usable token exists.
type ActionRunner interface {
	// Run performs the action described by payload.
	// Returns an error wrapping domain.ErrTokenInvalid when the API rejects
	// the token, so the caller can start a new authorization.
	Run(ctx context.Context, token *domain.Token, payload json.RawMessage) (*domain.ActionResult, error)

	// Release frees resources held by payload once it will not be run again.
	Release(ctx context.Context, payload json.RawMessage)
}
