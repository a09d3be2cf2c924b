package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates work across instances that share one flow
// store and one token store: the expired-flow sweep and token refresh.
type DistributedLock interface {
	// Acquire attempts to take a named lock for at most ttl.
	// Returns false without error when another instance holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up a named lock held by this instance.
	// Safe to call when the lock is not held or has expired.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
