package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"kirohq/gateway/pkg/limits/ratelimit"
	"kirohq/gateway/pkg/proxy"
	"kirohq/gateway/pkg/storage"
)

// limiterKey stores the per-key limiter for the handler to record
// token usage against.
const limiterKey contextKey = "key_limiter"

// GetKeyLimiter extracts the per-key limiter from the context. Nil
// means the request is not subject to per-key limits.
func GetKeyLimiter(ctx context.Context) *ratelimit.KeyLimiter {
	if kl, ok := ctx.Value(limiterKey).(*ratelimit.KeyLimiter); ok {
		return kl
	}
	return nil
}

// Registry caches one KeyLimiter per API key. Limiters carry rolling
// windows so they must survive across requests; a limiter is rebuilt
// when the key's configured limits change.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*registryEntry
}

type registryEntry struct {
	limits  ratelimit.KeyLimits
	limiter *ratelimit.KeyLimiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*registryEntry)}
}

// For returns the limiter for the key, or nil when the key has no
// limits configured.
func (r *Registry) For(key *storage.APIKey) *ratelimit.KeyLimiter {
	limits := ratelimit.KeyLimits{
		RequestsPerMinute: key.RateLimitRPM,
		TokensPerMinute:   key.RateLimitTPM,
	}
	if limits == (ratelimit.KeyLimits{}) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.limiters[key.KeyID]
	if !ok || entry.limits != limits {
		entry = &registryEntry{limits: limits, limiter: ratelimit.NewKeyLimiter(limits)}
		r.limiters[key.KeyID] = entry
	}
	return entry.limiter
}

// Forget drops the cached limiter for a deleted key.
func (r *Registry) Forget(keyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, keyID)
}

// KeyLimits enforces per-key request rate limits before the handler
// runs. Token throughput is checked in the handler once the request is
// parsed and an estimate exists. Requests authenticated by the static
// key or open access carry no limits and pass through.
func KeyLimits(registry *Registry, dialect string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetAPIKey(r.Context())
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}

			kl := registry.For(key)
			if kl == nil {
				next.ServeHTTP(w, r)
				return
			}

			if res := kl.CheckRequest(); !res.Allowed {
				WriteLimitExceeded(w, dialect, res)
				return
			}

			ctx := context.WithValue(r.Context(), limiterKey, kl)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteLimitExceeded answers 429 with standard rate limit headers.
func WriteLimitExceeded(w http.ResponseWriter, dialect string, res *ratelimit.CheckResult) {
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

	proxy.WriteMappedError(w, dialect, proxy.MappedError{
		Status:  http.StatusTooManyRequests,
		Type:    "rate_limit_exceeded",
		Message: "This API key's " + res.Reason + ".",
	})
}
