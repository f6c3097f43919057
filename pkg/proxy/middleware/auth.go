package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"kirohq/gateway/pkg/keys"
	"kirohq/gateway/pkg/proxy"
	"kirohq/gateway/pkg/storage"
)

// KeyCounter reports how many active database keys exist. Satisfied by
// *storage.Store.
type KeyCounter interface {
	CountActiveAPIKeys(ctx context.Context) (int, error)
}

// Authenticator validates client credentials. A request is admitted by
// the static proxy key, by an active database key, or freely when
// neither exists (open access for local setups).
type Authenticator struct {
	// StaticKey is the shared proxy key from configuration. Empty
	// disables static-key auth.
	StaticKey string

	// Keys validates database-issued keys. Nil disables them.
	Keys *keys.Manager

	// Counter decides open access: with no static key and zero active
	// database keys, requests pass unauthenticated.
	Counter KeyCounter
}

// Middleware returns the auth middleware for one dialect. The dialect
// controls both credential extraction and the error envelope: Anthropic
// clients send x-api-key (Bearer also accepted), OpenAI clients send
// Authorization: Bearer.
func (a *Authenticator) Middleware(dialect string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractCredential(r, dialect)

			if token == "" {
				if a.openAccess(r.Context()) {
					next.ServeHTTP(w, r)
					return
				}
				a.deny(w, dialect, "Missing API key.")
				return
			}

			if a.StaticKey != "" && token == a.StaticKey {
				next.ServeHTTP(w, r)
				return
			}

			if a.Keys != nil {
				key, err := a.Keys.Validate(r.Context(), token)
				if err == nil {
					if err := a.Keys.CheckUsageLimits(r.Context(), key); err != nil {
						proxy.WriteMappedError(w, dialect, proxy.MapError(err))
						return
					}
					ctx := context.WithValue(r.Context(), APIKeyKey, key)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				if !errors.Is(err, keys.ErrInvalidKey) && !errors.Is(err, keys.ErrKeyInactive) {
					slog.ErrorContext(r.Context(), "api key validation failed", "error", err)
				}
			}

			a.deny(w, dialect, "Invalid API key.")
		})
	}
}

// openAccess reports whether unauthenticated requests are allowed.
// Fails closed when the key count cannot be read.
func (a *Authenticator) openAccess(ctx context.Context) bool {
	if a.StaticKey != "" {
		return false
	}
	if a.Counter == nil {
		return true
	}
	n, err := a.Counter.CountActiveAPIKeys(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "counting active api keys", "error", err)
		return false
	}
	return n == 0
}

func (a *Authenticator) deny(w http.ResponseWriter, dialect, message string) {
	proxy.WriteMappedError(w, dialect, proxy.MappedError{
		Status:  http.StatusUnauthorized,
		Type:    "authentication_error",
		Message: message,
	})
}

// extractCredential pulls the client credential from the request in
// dialect priority order.
func extractCredential(r *http.Request, dialect string) string {
	if dialect == "anthropic" {
		if key := r.Header.Get("X-Api-Key"); key != "" {
			return key
		}
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

var _ KeyCounter = (*storage.Store)(nil)
