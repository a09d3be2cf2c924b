package x

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"golang.org/x/oauth2"
)

// Ensure Session implements the interface.
var _ driven.OAuthSession = (*Session)(nil)

// Session runs the authorization code flow with PKCE against X.
type Session struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	onRefresh driven.TokenUpdater
}

// NewSession creates a session for one X app.
func NewSession(cfg Config) *Session {
	cfg = cfg.withDefaults()

	style := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}

	return &Session{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: style,
			},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// BuildAuthorizationURL returns the consent URL and a fresh 128-bit state.
func (s *Session) BuildAuthorizationURL(challenge string) (string, string, error) {
	if challenge == "" {
		return "", "", fmt.Errorf("%w: empty code challenge", domain.ErrInvalidInput)
	}
	state := rand.Text()
	authURL := s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", domain.CodeChallengeMethod),
	)
	return authURL, state, nil
}

// ExchangeCode trades the authorization code and verifier for a token.
func (s *Session) ExchangeCode(ctx context.Context, code, verifier string) (*domain.Token, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	tok, err := s.oauth.Exchange(reqCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, exchangeError("exchange", err)
	}
	return s.toDomain(tok), nil
}

// IsExpired reports whether token is within the expiry margin.
func (s *Session) IsExpired(token *domain.Token) bool {
	return token.IsExpiredAt(s.now())
}

// Refresh runs the refresh_token grant. x/oauth2 fills in the request's
// refresh token when the response omits one, so an unrotated token stays
// usable.
func (s *Session) Refresh(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	if !token.CanRefresh() {
		return nil, &domain.AuthExchangeError{Op: "refresh", Err: domain.ErrNoRefreshToken}
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	src := s.oauth.TokenSource(reqCtx, &oauth2.Token{RefreshToken: token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, exchangeError("refresh", err)
	}
	refreshed := s.toDomain(tok)

	s.mu.RLock()
	hook := s.onRefresh
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, refreshed); err != nil {
			return nil, err
		}
	}
	return refreshed, nil
}

// OnTokenRefreshed registers the hook that persists refreshed tokens.
func (s *Session) OnTokenRefreshed(fn driven.TokenUpdater) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Session) toDomain(tok *oauth2.Token) *domain.Token {
	scope, _ := tok.Extra("scope").(string)
	if scope == "" {
		scope = strings.Join(s.oauth.Scopes, " ")
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}

	var expiresAt time.Time
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.UTC().Truncate(time.Second)
	}

	return &domain.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tokenType,
		Scope:        scope,
		ExpiresAt:    expiresAt,
	}
}

// exchangeError maps an x/oauth2 failure to an AuthExchangeError.
func exchangeError(op string, err error) *domain.AuthExchangeError {
	ae := &domain.AuthExchangeError{Op: op, Err: err}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			ae.StatusCode = retrieveErr.Response.StatusCode
		}
		ae.ErrorCode = retrieveErr.ErrorCode
		ae.Description = retrieveErr.ErrorDescription
		ae.Body = strings.TrimSpace(string(retrieveErr.Body))
		ae.Retryable = ae.StatusCode >= http.StatusInternalServerError || ae.StatusCode == http.StatusTooManyRequests
		return ae
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		ae.Retryable = true
		return ae
	}
	ae.Retryable = errors.As(err, &netErr)
	return ae
}
