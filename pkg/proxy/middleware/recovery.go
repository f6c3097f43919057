package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"kirohq/gateway/pkg/proxy/types"
)

// Recovery converts handler panics into a 500 response in the dialect
// matching the request path. The panic and stack trace are logged; the
// client sees only a generic message.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				const msg = "An internal error occurred. Please try again later."
				var body any
				if strings.HasPrefix(r.URL.Path, "/v1/messages") {
					body = types.NewAnthropicError(types.AnthropicErrAPI, msg)
				} else {
					body = types.NewErrorResponse(types.ErrorTypeServerError, msg)
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(body)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
