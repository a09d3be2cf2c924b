package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.FlowStore = (*FlowStore)(nil)

const flowPrefix = keyPrefix + "flow:"

// FlowStore implements driven.FlowStore using Redis.
// Each flow is one key. The key outlives the flow's expiry by one TTL so
// Cleanup can hand expired payloads back; Redis drops keys nobody swept.
type FlowStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewFlowStore creates a new Redis-backed FlowStore.
func NewFlowStore(client *redis.Client, ttl time.Duration) *FlowStore {
	if ttl <= 0 {
		ttl = domain.DefaultFlowTTL
	}
	return &FlowStore{client: client, ttl: ttl, now: time.Now}
}

// Begin stores the flow with SET NX so an existing state is never replaced.
func (s *FlowStore) Begin(ctx context.Context, flow *domain.PendingFlow) error {
	now := s.now()
	stored := flow.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = stored.CreatedAt.Add(s.ttl)
	}

	ttl := stored.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("%w: flow already expired", domain.ErrInvalidInput)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	ok, err := s.client.SetNX(ctx, flowPrefix+flow.State, data, ttl+s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateState
	}
	return nil
}

// Take reads and deletes the flow in one GETDEL round trip.
func (s *FlowStore) Take(ctx context.Context, state string) (*domain.PendingFlow, error) {
	data, err := s.client.GetDel(ctx, flowPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take flow: %w", err)
	}

	var flow domain.PendingFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, domain.ErrFlowNotFound
	}
	if flow.IsExpiredAt(s.now()) {
		return &flow, domain.ErrFlowExpired
	}
	return &flow, nil
}

// Cleanup scans flow keys and takes every expired or unreadable one.
// GETDEL decides the winner when a callback races the sweep.
func (s *FlowStore) Cleanup(ctx context.Context) ([]*domain.PendingFlow, error) {
	now := s.now()
	var evicted []*domain.PendingFlow

	iter := s.client.Scan(ctx, 0, flowPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("failed to read flow: %w", err)
		}

		var flow domain.PendingFlow
		corrupt := json.Unmarshal(data, &flow) != nil
		if !corrupt && !flow.IsExpiredAt(now) {
			continue
		}

		data, err = s.client.GetDel(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("failed to remove flow: %w", err)
		}
		var taken domain.PendingFlow
		if err := json.Unmarshal(data, &taken); err == nil {
			evicted = append(evicted, &taken)
		}
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("failed to scan flows: %w", err)
	}
	return evicted, nil
}

// Ping checks if the Redis backend is healthy.
func (s *FlowStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
