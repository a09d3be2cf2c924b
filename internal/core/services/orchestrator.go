package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/custodia-labs/xpost/internal/core/ports/driving"
	"github.com/custodia-labs/xpost/internal/logging"
	"github.com/custodia-labs/xpost/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Ensure orchestrator implements AuthorizationService
var _ driving.AuthorizationService = (*orchestrator)(nil)

const (
	refreshLockName = "token-refresh"
	refreshLockTTL  = 30 * time.Second

	// peerRefreshPoll is how often a follower re-reads the token store while
	// another instance holds the refresh lock.
	peerRefreshPoll = 250 * time.Millisecond
)

// OrchestratorConfig holds configuration for the authorization orchestrator.
type OrchestratorConfig struct {
	Session driven.OAuthSession
	Flows   driven.FlowStore
	Tokens  driven.TokenStore
	Runner  driven.ActionRunner

	// Lock coordinates refreshes across instances. Optional.
	Lock driven.DistributedLock

	// FlowTTL is how long a pending flow stays valid (default: 10m).
	FlowTTL time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

// orchestrator implements the AuthorizationService interface.
type orchestrator struct {
	session driven.OAuthSession
	flows   driven.FlowStore
	tokens  driven.TokenStore
	runner  driven.ActionRunner
	lock    driven.DistributedLock
	flowTTL time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	refreshGroup singleflight.Group

	mu    sync.RWMutex
	state domain.AuthorizationState
}

// NewOrchestrator creates a new authorization orchestrator and binds the
// session's refresh hook to the token store.
func NewOrchestrator(cfg OrchestratorConfig) driving.AuthorizationService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.FlowTTL
	if ttl <= 0 {
		ttl = domain.DefaultFlowTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	o := &orchestrator{
		session: cfg.Session,
		flows:   cfg.Flows,
		tokens:  cfg.Tokens,
		runner:  cfg.Runner,
		lock:    cfg.Lock,
		flowTTL: ttl,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
		state:   domain.StateNoSession,
	}
	o.session.OnTokenRefreshed(o.persistRefreshed)
	return o
}

// EnsureAuthorized runs payload with a usable token or starts a new flow.
func (o *orchestrator) EnsureAuthorized(ctx context.Context, payload json.RawMessage) (*driving.AuthorizationOutcome, error) {
	token, err := o.usableToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return o.beginAuthorization(ctx, payload)
	}

	result, err := o.run(ctx, token, payload)
	if errors.Is(err, domain.ErrTokenInvalid) {
		o.logger.Warn("stored token rejected, starting new authorization", "error", err)
		o.clearToken(ctx)
		return o.beginAuthorization(ctx, payload)
	}
	o.release(ctx, payload)
	if err != nil {
		return nil, err
	}

	o.setState(domain.StateAuthorized)
	return &driving.AuthorizationOutcome{Result: result}, nil
}

// CompleteAuthorization consumes the pending flow and resumes its payload.
func (o *orchestrator) CompleteAuthorization(ctx context.Context, req driving.CallbackRequest) (*driving.AuthorizationOutcome, error) {
	if req.State == "" {
		o.metrics.FlowCompleted("invalid_state")
		return nil, domain.ErrInvalidOrExpiredState
	}

	flow, err := o.flows.Take(ctx, req.State)
	if errors.Is(err, domain.ErrFlowNotFound) {
		if flow != nil {
			o.release(ctx, flow.Payload)
		}
		o.logger.Info("callback with unknown or expired state", "state", logging.TruncateState(req.State))
		o.metrics.FlowCompleted("invalid_state")
		return nil, domain.ErrInvalidOrExpiredState
	}
	if err != nil {
		return nil, fmt.Errorf("take pending flow: %w", err)
	}

	if req.Error != "" {
		o.logger.Info("authorization denied by provider", "error", req.Error)
		o.abandon(ctx, flow, "denied")
		return nil, &driving.OAuthError{Code: req.Error, Description: req.ErrorDescription}
	}
	if req.Code == "" {
		o.abandon(ctx, flow, "missing_code")
		return nil, driving.ErrOAuthMissingCode
	}

	token, err := o.session.ExchangeCode(ctx, req.Code, flow.Verifier)
	if err != nil {
		o.logger.Warn("code exchange failed", "error", err)
		o.abandon(ctx, flow, "exchange_failed")
		return nil, err
	}

	if err := o.tokens.Save(ctx, token); err != nil {
		o.abandon(ctx, flow, "save_failed")
		return nil, fmt.Errorf("save token: %w", err)
	}
	o.setState(domain.StateAuthorized)
	o.metrics.FlowCompleted("success")
	o.logger.Info("authorization complete", "scopes", token.Scope)

	result, err := o.run(ctx, token, flow.Payload)
	o.release(ctx, flow.Payload)
	if err != nil {
		return nil, err
	}
	return &driving.AuthorizationOutcome{Result: result}, nil
}

// Status reports the lifecycle state and a summary of the stored token.
func (o *orchestrator) Status(ctx context.Context) (*driving.AuthorizationStatus, error) {
	token, err := o.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	state := o.currentState()
	switch {
	case token != nil && (!o.session.IsExpired(token) || token.CanRefresh()):
		state = domain.StateAuthorized
	case state != domain.StateAuthorizing:
		state = domain.StateNoSession
	}

	return &driving.AuthorizationStatus{
		State: state,
		Token: token.ToSummary(),
	}, nil
}

// SignOut clears the stored token.
func (o *orchestrator) SignOut(ctx context.Context) error {
	if err := o.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	o.setState(domain.StateNoSession)
	o.logger.Info("stored token cleared")
	return nil
}

// usableToken returns a non-expired token, refreshing when possible.
// Returns nil, nil when a new authorization is required.
func (o *orchestrator) usableToken(ctx context.Context) (*domain.Token, error) {
	token, err := o.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == nil {
		return nil, nil
	}
	if !o.session.IsExpired(token) {
		return token, nil
	}
	if !token.CanRefresh() {
		o.logger.Info("stored token expired without refresh token")
		o.clearToken(ctx)
		return nil, nil
	}

	refreshed, err := o.refresh(ctx, token)
	if err != nil {
		o.logger.Warn("token refresh failed, starting new authorization", "error", err)
		o.metrics.TokenRefreshed("failure")
		o.clearToken(ctx)
		return nil, nil
	}
	o.metrics.TokenRefreshed("success")
	return refreshed, nil
}

// refresh collapses concurrent refreshes in this process into one call, and
// across instances into one lock holder.
func (o *orchestrator) refresh(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	v, err, _ := o.refreshGroup.Do(refreshLockName, func() (any, error) {
		// A refresh that finished since our load already stored a fresh token.
		if current, err := o.tokens.Load(ctx); err == nil && current != nil &&
			current.AccessToken != token.AccessToken && !o.session.IsExpired(current) {
			return current, nil
		}

		if o.lock == nil {
			return o.session.Refresh(ctx, token)
		}

		acquired, err := o.lock.Acquire(ctx, refreshLockName, refreshLockTTL)
		if err != nil {
			o.logger.Warn("failed to acquire refresh lock, refreshing anyway", "error", err)
			return o.session.Refresh(ctx, token)
		}
		if !acquired {
			return o.awaitPeerRefresh(ctx, token)
		}
		defer func() {
			if err := o.lock.Release(ctx, refreshLockName); err != nil {
				o.logger.Warn("failed to release refresh lock", "error", err)
			}
		}()
		return o.session.Refresh(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Token), nil
}

// awaitPeerRefresh waits for the instance holding the refresh lock to store
// a new token.
func (o *orchestrator) awaitPeerRefresh(ctx context.Context, stale *domain.Token) (*domain.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshLockTTL)
	defer cancel()

	ticker := time.NewTicker(peerRefreshPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for peer refresh: %w", ctx.Err())
		case <-ticker.C:
			current, err := o.tokens.Load(ctx)
			if err != nil {
				return nil, fmt.Errorf("load token: %w", err)
			}
			if current == nil {
				return nil, domain.ErrNotFound
			}
			if current.AccessToken != stale.AccessToken && !o.session.IsExpired(current) {
				return current, nil
			}
		}
	}
}

// persistRefreshed is the session's refresh hook.
func (o *orchestrator) persistRefreshed(ctx context.Context, token *domain.Token) error {
	if err := o.tokens.Save(ctx, token); err != nil {
		return fmt.Errorf("save refreshed token: %w", err)
	}
	o.logger.Info("token refreshed", "expires_at", token.ExpiresAt)
	return nil
}

func (o *orchestrator) beginAuthorization(ctx context.Context, payload json.RawMessage) (*driving.AuthorizationOutcome, error) {
	evicted, err := o.flows.Cleanup(ctx)
	if err != nil {
		o.logger.Warn("failed to clean up expired flows", "error", err)
	}
	for _, flow := range evicted {
		o.release(ctx, flow.Payload)
	}
	if len(evicted) > 0 {
		o.logger.Debug("removed expired flows", "count", len(evicted))
	}

	pair := domain.NewPKCEPair()
	authURL, state, err := o.session.BuildAuthorizationURL(pair.Challenge)
	if err != nil {
		return nil, fmt.Errorf("build authorization url: %w", err)
	}

	now := o.now()
	flow := &domain.PendingFlow{
		State:     state,
		Verifier:  pair.Verifier,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(o.flowTTL),
	}
	if err := o.flows.Begin(ctx, flow); err != nil {
		return nil, fmt.Errorf("begin pending flow: %w", err)
	}

	o.setState(domain.StateAuthorizing)
	o.metrics.FlowStarted()
	o.logger.Info("authorization started", "state", logging.TruncateState(flow.State), "expires_at", flow.ExpiresAt)

	expiresAt := flow.ExpiresAt
	return &driving.AuthorizationOutcome{
		AuthorizationURL: authURL,
		State:            state,
		ExpiresAt:        &expiresAt,
	}, nil
}

// run executes payload, or reports success for a bare authorization.
func (o *orchestrator) run(ctx context.Context, token *domain.Token, payload json.RawMessage) (*domain.ActionResult, error) {
	if len(payload) == 0 {
		return &domain.ActionResult{Message: domain.AuthorizedMessage}, nil
	}

	result, err := o.runner.Run(ctx, token, payload)
	var apiErr *domain.DownstreamAPIError
	switch {
	case err == nil:
		o.metrics.ActionRan("success")
	case errors.Is(err, domain.ErrTokenInvalid):
		o.metrics.ActionRan("token_rejected")
	case errors.As(err, &apiErr) && apiErr.IsRateLimited():
		o.metrics.ActionRan("rate_limited")
	case errors.As(err, &apiErr):
		o.metrics.ActionRan("rejected")
	default:
		o.metrics.ActionRan("failed")
	}
	return result, err
}

func (o *orchestrator) release(ctx context.Context, payload json.RawMessage) {
	if len(payload) > 0 {
		o.runner.Release(ctx, payload)
	}
}

func (o *orchestrator) abandon(ctx context.Context, flow *domain.PendingFlow, reason string) {
	o.metrics.FlowCompleted(reason)
	o.release(ctx, flow.Payload)
	if o.currentState() == domain.StateAuthorizing {
		o.setState(domain.StateNoSession)
	}
}

func (o *orchestrator) clearToken(ctx context.Context) {
	if err := o.tokens.Clear(ctx); err != nil {
		o.logger.Warn("failed to clear stored token", "error", err)
	}
	o.setState(domain.StateNoSession)
}

func (o *orchestrator) setState(s domain.AuthorizationState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *orchestrator) currentState() domain.AuthorizationState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}
