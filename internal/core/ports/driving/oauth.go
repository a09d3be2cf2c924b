package driving

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
)

// AuthorizationService runs a deferred action behind an OAuth2 PKCE
// authorization, starting a new flow only when no usable token exists.
type AuthorizationService interface {
	// EnsureAuthorized runs payload with the stored token, refreshing it if
	// needed. When no usable token exists it starts a flow and returns the
	// authorization URL instead; payload is resumed by CompleteAuthorization.
	EnsureAuthorized(ctx context.Context, payload json.RawMessage) (*AuthorizationOutcome, error)

	// CompleteAuthorization handles the provider callback. It consumes the
	// pending flow, exchanges the code, persists the token and runs the
	// deferred payload.
	CompleteAuthorization(ctx context.Context, req CallbackRequest) (*AuthorizationOutcome, error)

	// Status reports the current authorization state without side effects.
	Status(ctx context.Context) (*AuthorizationStatus, error)

	// SignOut clears the stored token.
	SignOut(ctx context.Context) error
}

// AuthorizationOutcome is either a redirect to the provider or the result of
// the deferred action.
// @Description Result of an authorization-gated action
type AuthorizationOutcome struct {
	// AuthorizationURL is set when the user must authorize first.
	AuthorizationURL string `json:"authorization_url,omitempty" example:"https://x.com/i/oauth2/authorize?client_id=..."`

	// State identifies the pending flow.
	State string `json:"state,omitempty" example:"Q2VKY4XRVNWCLTYJ3B7OZ4FHTQ"`

	// ExpiresAt is when the pending flow stops being accepted.
	ExpiresAt *time.Time `json:"expires_at,omitempty" example:"2025-01-15T10:10:00Z"`

	// Result is set when the action ran.
	Result *domain.ActionResult `json:"result,omitempty"`
}

// NeedsAuthorization reports whether the caller must be sent to the provider.
func (o *AuthorizationOutcome) NeedsAuthorization() bool {
	return o.AuthorizationURL != ""
}

// CallbackRequest represents the OAuth callback from the provider.
// @Description OAuth callback parameters from provider redirect
type CallbackRequest struct {
	// Code is the authorization code from the provider.
	Code string `json:"code" example:"abc123"`

	// State is the CSRF token returned by the provider.
	State string `json:"state" example:"Q2VKY4XRVNWCLTYJ3B7OZ4FHTQ"`

	// Error is set if the provider returned an error.
	Error string `json:"error,omitempty" example:"access_denied"`

	// ErrorDescription provides details about the error.
	ErrorDescription string `json:"error_description,omitempty" example:"The user denied access"`
}

// AuthorizationStatus describes the stored credential and lifecycle state.
// @Description Current authorization state
type AuthorizationStatus struct {
	State domain.AuthorizationState `json:"state" example:"authorized"`
	Token *domain.TokenSummary      `json:"token"`
}

// OAuthError represents an OAuth-specific error.
type OAuthError struct {
	Code        string `json:"error" example:"invalid_state"`
	Description string `json:"error_description" example:"The state parameter is invalid or expired"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Common OAuth errors
var (
	ErrOAuthInvalidState = &OAuthError{Code: "invalid_state", Description: domain.InvalidStateMessage}
	ErrOAuthMissingCode  = &OAuthError{Code: "invalid_request", Description: "The callback did not include an authorization code"}
)
