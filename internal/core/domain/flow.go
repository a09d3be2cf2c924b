package domain

import (
	"encoding/json"
	"time"
)

// DefaultFlowTTL bounds how long a user has to finish authorizing.
const DefaultFlowTTL = 10 * time.Minute

// PendingFlow is an authorization flow waiting for its provider callback.
// It is keyed by State and consumed exactly once.
type PendingFlow struct {
	// State is the opaque CSRF token sent in the authorization URL.
	State string `json:"state"`

	// Verifier is the PKCE code verifier for this flow.
	Verifier string `json:"verifier"`

	// Payload is the deferred action, resumed after the callback.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpiredAt reports whether the flow can no longer be completed at now.
func (f *PendingFlow) IsExpiredAt(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

// Clone returns a deep copy so stores never share payload bytes with callers.
func (f *PendingFlow) Clone() *PendingFlow {
	c := *f
	if f.Payload != nil {
		c.Payload = append(json.RawMessage(nil), f.Payload...)
	}
	return &c
}

// AuthorizationState describes where the single authorization lifecycle is.
type AuthorizationState string

const (
	StateNoSession   AuthorizationState = "no_session"
	StateAuthorizing AuthorizationState = "authorizing"
	StateAuthorized  AuthorizationState = "authorized"
)
