// Package memory provides process-local implementations of driven ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

// Ensure FlowStore implements the interface.
var _ driven.FlowStore = (*FlowStore)(nil)

// FlowStore keeps pending flows in a map guarded by a mutex. Expired flows
// stay until Cleanup or Take hands them back, so their payloads can be
// released.
type FlowStore struct {
	mu    sync.Mutex
	flows map[string]*domain.PendingFlow
	ttl   time.Duration
	now   func() time.Time
}

// NewFlowStore creates an in-memory flow store. A flow without an explicit
// expiry gets ttl.
func NewFlowStore(ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = domain.DefaultFlowTTL
	}
	return &FlowStore{
		flows: make(map[string]*domain.PendingFlow),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the store's clock. Intended for tests.
func (s *FlowStore) WithClock(now func() time.Time) *FlowStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Begin registers a flow.
func (s *FlowStore) Begin(ctx context.Context, flow *domain.PendingFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.flows[flow.State]; exists {
		return domain.ErrDuplicateState
	}

	stored := flow.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = stored.CreatedAt.Add(s.ttl)
	}
	s.flows[flow.State] = stored
	return nil
}

// Take removes and returns the flow for state.
func (s *FlowStore) Take(ctx context.Context, state string) (*domain.PendingFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[state]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	delete(s.flows, state)

	if flow.IsExpiredAt(s.now()) {
		return flow, domain.ErrFlowExpired
	}
	return flow, nil
}

// Cleanup drops every expired flow and returns them.
func (s *FlowStore) Cleanup(ctx context.Context) ([]*domain.PendingFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

// Len returns the number of stored flows, expired or not.
func (s *FlowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

func (s *FlowStore) sweepLocked(now time.Time) []*domain.PendingFlow {
	var removed []*domain.PendingFlow
	for state, flow := range s.flows {
		if flow.IsExpiredAt(now) {
			delete(s.flows, state)
			removed = append(removed, flow)
		}
	}
	return removed
}
