package http

import (
	"errors"
	"net/http"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driving"
)

// describeError maps a service error to an HTTP status, an OAuth-style
// error code and a message safe to show the user.
func describeError(err error) (int, string, string) {
	var (
		oauthErr      *driving.OAuthError
		exchangeErr   *domain.AuthExchangeError
		downstreamErr *domain.DownstreamAPIError
	)

	switch {
	case errors.Is(err, domain.ErrInvalidOrExpiredState):
		return http.StatusBadRequest, driving.ErrOAuthInvalidState.Code, domain.InvalidStateMessage
	case errors.As(err, &oauthErr):
		msg := oauthErr.Description
		if msg == "" {
			msg = "Authorization failed: " + oauthErr.Code
		}
		return http.StatusBadRequest, oauthErr.Code, msg
	case errors.As(err, &exchangeErr):
		return http.StatusBadGateway, "exchange_failed", "Failed to authenticate with X: " + exchangeErr.Detail()
	case errors.As(err, &downstreamErr):
		if downstreamErr.IsRateLimited() {
			return http.StatusTooManyRequests, "rate_limited", downstreamErr.Message
		}
		return http.StatusBadGateway, "post_failed", downstreamErr.Message
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", "Enter some text or attach an image."
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_rejected", "X rejected the access token. Please authorize again."
	default:
		return http.StatusInternalServerError, "server_error", "Something went wrong. Please try again."
	}
}
