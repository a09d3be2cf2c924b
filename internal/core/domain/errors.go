package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenExpired indicates the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the access token was rejected by the API
	ErrTokenInvalid = errors.New("token invalid")

	// ErrNoRefreshToken indicates a refresh was attempted without a refresh token
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrDuplicateState indicates a pending flow with the same state already exists
	ErrDuplicateState = errors.New("duplicate state")

	// ErrFlowNotFound indicates no live pending flow exists for a state
	ErrFlowNotFound = errors.New("pending flow not found")

	// ErrFlowExpired indicates a pending flow was found past its expiry.
	// It matches ErrFlowNotFound under errors.Is.
	ErrFlowExpired = fmt.Errorf("%w: expired", ErrFlowNotFound)

	// ErrInvalidOrExpiredState indicates a callback carried an unknown, consumed or expired state
	ErrInvalidOrExpiredState = errors.New("invalid or expired state")
)

// User-facing messages shared by the HTML and JSON surfaces.
const (
	InvalidStateMessage  = "Invalid state or session has expired."
	RateLimitMessage     = "Rate limit exceeded. Please wait a few minutes and try again."
	PostPublishedMessage = "Post published successfully!"
	AuthorizedMessage    = "Authorization complete."
)

// ConfigurationError collects every problem found while validating configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// AuthExchangeError is returned when the token endpoint rejects or fails a
// code exchange or a refresh.
type AuthExchangeError struct {
	// Op is "exchange" or "refresh".
	Op string

	// StatusCode is the HTTP status from the token endpoint, 0 on transport failure.
	StatusCode int

	// ErrorCode and Description come from the provider's OAuth error body.
	ErrorCode   string
	Description string

	// Body is the raw response body, kept for logs.
	Body string

	// Retryable is true for timeouts, network failures and 5xx responses.
	Retryable bool

	Err error
}

func (e *AuthExchangeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token %s failed (%d): %s", e.Op, e.StatusCode, e.Detail())
	}
	return fmt.Sprintf("token %s failed: %s", e.Op, e.Detail())
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// Detail returns the most specific human-readable reason available.
func (e *AuthExchangeError) Detail() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.ErrorCode != "":
		return e.ErrorCode
	case e.Body != "":
		return e.Body
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}

// DownstreamErrorKind tags which branch of the classifier produced a message.
type DownstreamErrorKind string

const (
	DownstreamErrorList   DownstreamErrorKind = "error_list"
	DownstreamRateLimited DownstreamErrorKind = "rate_limited"
	DownstreamDetail      DownstreamErrorKind = "detail"
	DownstreamOpaque      DownstreamErrorKind = "opaque"
)

// DownstreamAPIError is a non-2xx response from the X API, already turned
// into a user-facing message.
type DownstreamAPIError struct {
	StatusCode int
	Kind       DownstreamErrorKind
	Message    string
}

func (e *DownstreamAPIError) Error() string {
	return e.Message
}

// IsRateLimited reports whether the API asked the caller to slow down.
func (e *DownstreamAPIError) IsRateLimited() bool {
	return e.Kind == DownstreamRateLimited
}
