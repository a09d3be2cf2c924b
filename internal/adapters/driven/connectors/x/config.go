// Package x connects to the X API: OAuth 2.0 with PKCE for user context
// tokens, and the post and media endpoints.
package x

import "time"

const (
	DefaultAuthURL    = "https://x.com/i/oauth2/authorize"
	DefaultTokenURL   = "https://api.x.com/2/oauth2/token"
	DefaultAPIBaseURL = "https://api.x.com"
	DefaultUploadURL  = "https://api.x.com/2/media/upload"
	DefaultTimeout    = 30 * time.Second
)

// DefaultScopes lets the client read and write posts, upload media and keep
// a refresh token.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access", "media.write"}

// Config contains configuration for the X connector.
type Config struct {
	// ClientID is the OAuth 2.0 client id of the X app.
	ClientID string

	// ClientSecret is set for confidential clients and sent with HTTP Basic
	// auth. Public clients leave it empty and send client_id in the body.
	ClientSecret string

	// RedirectURL must match the callback registered for the app.
	RedirectURL string

	// Scopes defaults to DefaultScopes.
	Scopes []string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
	UploadURL  string

	// Timeout bounds every outbound request.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.UploadURL == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
