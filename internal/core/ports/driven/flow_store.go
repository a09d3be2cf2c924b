package driven

import (
	"context"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// FlowStore holds pending authorization flows between the redirect to the
// provider and its callback. Flows are single-use and expire.
type FlowStore interface {
	// Begin registers a new flow under its state.
	// Returns domain.ErrDuplicateState if the state is already present.
	Begin(ctx context.Context, flow *domain.PendingFlow) error

	// Take atomically removes and returns the flow for state.
	// Returns domain.ErrFlowNotFound if the state is unknown or already
	// consumed. An expired flow is removed and returned together with
	// domain.ErrFlowExpired so the caller can release its payload.
	// Two concurrent calls for one state never both win.
	Take(ctx context.Context, state string) (*domain.PendingFlow, error)

	// Cleanup removes expired flows and returns them.
	Cleanup(ctx context.Context) ([]*domain.PendingFlow, error)
}
