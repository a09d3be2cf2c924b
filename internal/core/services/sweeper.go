package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
)

const sweepLockName = "flow-sweep"

// StagedPruner removes staged files that no pending flow can still use.
type StagedPruner interface {
	PruneStaged(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper periodically removes expired pending flows and releases their
// payloads. It bounds how long abandoned flows and their staged media linger.
type Sweeper struct {
	flows   driven.FlowStore
	runner  driven.ActionRunner
	uploads StagedPruner
	maxAge  time.Duration
	lock    driven.DistributedLock
	logger  *slog.Logger

	// Internal state
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	lockTTL  time.Duration
}

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	Flows    driven.FlowStore
	Runner   driven.ActionRunner    // Optional: releases payloads of swept flows
	Uploads  StagedPruner           // Optional: prunes orphaned staged media
	MaxAge   time.Duration          // Staged media older than this is pruned (default: 10m)
	Lock     driven.DistributedLock // Optional: only one instance sweeps per cycle
	Logger   *slog.Logger
	Interval time.Duration // How often to sweep (default: 1m)
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = domain.DefaultFlowTTL
	}

	return &Sweeper{
		flows:    cfg.Flows,
		runner:   cfg.Runner,
		uploads:  cfg.Uploads,
		maxAge:   maxAge,
		lock:     cfg.Lock,
		logger:   logger,
		interval: interval,
		lockTTL:  interval,
	}
}

// Start begins the sweep loop.
// It runs until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("flow sweeper starting", "interval", s.interval)

	go s.run(ctx)
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("flow sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of flows removed.
// Flows returned alongside a store error are still released.
// With a lock configured, a cycle is skipped when another instance holds it.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, sweepLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire sweep lock", "error", err)
			return 0
		}
		if !acquired {
			s.logger.Debug("sweep lock held by another instance, skipping cycle")
			return 0
		}
		defer func() {
			if err := s.lock.Release(ctx, sweepLockName); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	evicted, err := s.flows.Cleanup(ctx)
	if err != nil {
		s.logger.Error("failed to sweep expired flows", "error", err)
	}
	if s.runner != nil {
		for _, flow := range evicted {
			if len(flow.Payload) > 0 {
				s.runner.Release(ctx, flow.Payload)
			}
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("swept expired flows", "count", len(evicted))
	}

	if s.uploads != nil {
		if _, err := s.uploads.PruneStaged(ctx, s.maxAge); err != nil {
			s.logger.Warn("failed to prune staged media", "error", err)
		}
	}
	return len(evicted)
}
