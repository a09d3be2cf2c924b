package domain

import (
	"strings"
	"time"
)

// ExpiryMargin is how long before its expiry a token is already treated as
// expired, so a request never starts with a token about to lapse.
const ExpiryMargin = 300 * time.Second

// Token is an OAuth2 credential set issued by the token endpoint.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpiredAt reports whether the token is expired, or within ExpiryMargin of
// expiring, at now. A token without an expiry never expires.
func (t *Token) IsExpiredAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(ExpiryMargin).Before(t.ExpiresAt)
}

// CanRefresh reports whether the token carries a refresh token.
func (t *Token) CanRefresh() bool {
	return t != nil && t.RefreshToken != ""
}

// Scopes returns the granted scopes as a list.
func (t *Token) Scopes() []string {
	return strings.Fields(t.Scope)
}

// Equal compares two tokens field by field, using time.Equal for expiry.
func (t *Token) Equal(o *Token) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.AccessToken == o.AccessToken &&
		t.RefreshToken == o.RefreshToken &&
		t.TokenType == o.TokenType &&
		t.Scope == o.Scope &&
		t.ExpiresAt.Equal(o.ExpiresAt)
}

// TokenSummary is a view of a token that never exposes secrets.
type TokenSummary struct {
	HasToken   bool       `json:"has_token"`
	CanRefresh bool       `json:"can_refresh"`
	Scopes     []string   `json:"scopes,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ToSummary converts a Token to a TokenSummary.
func (t *Token) ToSummary() *TokenSummary {
	if t == nil {
		return &TokenSummary{}
	}
	s := &TokenSummary{
		HasToken:   t.AccessToken != "",
		CanRefresh: t.CanRefresh(),
		Scopes:     t.Scopes(),
	}
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt
		s.ExpiresAt = &exp
	}
	return s
}
