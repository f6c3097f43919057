package proxy

import (
	"context"
	"errors"
	"net/http"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/convert"
	"kirohq/gateway/pkg/keys"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/stream"
	"kirohq/gateway/pkg/upstream"
)

// MappedError is an internal failure translated to a client-facing
// status and the OpenAI-dialect error type. The Anthropic shape is
// derived from the status when writing.
type MappedError struct {
	Status  int
	Type    string
	Message string
}

// MapError classifies any error escaping a handler into a status, an
// error type and a safe client message. Unknown errors become 500
// without leaking internals.
func MapError(err error) MappedError {
	switch {
	case errors.Is(err, convert.ErrEmptyConversation):
		return MappedError{http.StatusBadRequest, types.ErrorTypeInvalidRequest, err.Error()}

	case errors.Is(err, keys.ErrInvalidKey), errors.Is(err, keys.ErrKeyInactive):
		return MappedError{http.StatusUnauthorized, types.ErrorTypeAuthentication, "Invalid API key."}

	case errors.Is(err, keys.ErrLimitExceeded):
		return MappedError{http.StatusTooManyRequests, types.ErrorTypeRateLimitExceeded, err.Error()}

	case errors.Is(err, pool.ErrNoAccounts):
		return MappedError{http.StatusServiceUnavailable, types.ErrorTypeServiceUnavailable,
			"No healthy upstream accounts are available. Check account status in the admin panel."}

	case errors.Is(err, auth.ErrAuthRequired):
		return MappedError{http.StatusUnauthorized, types.ErrorTypeAuthentication,
			"Upstream credentials expired and could not be refreshed. Re-login the account."}

	case errors.Is(err, context.Canceled):
		// Client went away; status is nominal, nothing will be written.
		return MappedError{499, types.ErrorTypeInvalidRequest, "client disconnected"}
	}

	var transport *upstream.TransportError
	if errors.As(err, &transport) {
		return MappedError{transport.SuggestedStatus, typeForStatus(transport.SuggestedStatus), transport.UserMessage}
	}

	var status *upstream.StatusError
	if errors.As(err, &status) {
		return mapUpstreamStatus(status)
	}

	var exhausted *upstream.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		msg := "The upstream did not answer after multiple attempts."
		var inner *upstream.TransportError
		if errors.As(exhausted.LastErr, &inner) {
			msg = inner.UserMessage
		}
		return MappedError{exhausted.SuggestedStatus, typeForStatus(exhausted.SuggestedStatus), msg}
	}

	var firstToken *stream.RetriesExhaustedError
	if errors.As(err, &firstToken) {
		return MappedError{http.StatusGatewayTimeout, types.ErrorTypeGatewayTimeout, firstToken.Error()}
	}

	return MappedError{http.StatusInternalServerError, types.ErrorTypeServerError,
		"An internal error occurred while processing the request."}
}

// mapUpstreamStatus converts a terminal upstream HTTP status into the
// client-facing one. Client-side 4xx pass through; upstream auth
// failures and 5xx become 502 because they are the gateway's problem,
// not the client's.
func mapUpstreamStatus(se *upstream.StatusError) MappedError {
	switch {
	case se.StatusCode == http.StatusTooManyRequests:
		return MappedError{http.StatusTooManyRequests, types.ErrorTypeRateLimitExceeded,
			"The upstream is rate limiting requests. Retry shortly."}
	case se.StatusCode == http.StatusBadRequest:
		msg := "The upstream rejected the request."
		if se.Body != "" {
			msg = upstreamReason(se.Body)
		}
		return MappedError{http.StatusBadRequest, types.ErrorTypeInvalidRequest, msg}
	default:
		return MappedError{http.StatusBadGateway, types.ErrorTypeBadGateway,
			"The upstream returned an unexpected error."}
	}
}

// upstreamReason extracts a human-readable reason from an upstream
// error body, falling back to a bounded raw snippet.
func upstreamReason(body string) string {
	if len(body) > 300 {
		body = body[:300]
	}
	return "Upstream rejected the request: " + body
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return types.ErrorTypeInvalidRequest
	case http.StatusUnauthorized:
		return types.ErrorTypeAuthentication
	case http.StatusTooManyRequests:
		return types.ErrorTypeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return types.ErrorTypeServiceUnavailable
	case http.StatusGatewayTimeout:
		return types.ErrorTypeGatewayTimeout
	case http.StatusBadGateway:
		return types.ErrorTypeBadGateway
	default:
		return types.ErrorTypeServerError
	}
}

// anthropicTypeForStatus maps a status code to the Anthropic error
// taxonomy.
func anthropicTypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return types.AnthropicErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.AnthropicErrAuthentication
	case http.StatusTooManyRequests:
		return types.AnthropicErrRateLimit
	case http.StatusServiceUnavailable:
		return types.AnthropicErrOverloaded
	default:
		return types.AnthropicErrAPI
	}
}
