package server

import (
	"net/http"

	"kirohq/gateway/pkg/admin"
	"kirohq/gateway/pkg/proxy/middleware"
)

// Handler builds the full route table with per-dialect middleware
// chains. Health and metrics bypass client auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authn := &middleware.Authenticator{
		StaticKey: s.cfg.Server.ProxyAPIKey,
		Keys:      s.keys,
		Counter:   s.store,
	}

	openai := chain(
		authn.Middleware("openai"),
		middleware.KeyLimits(s.limiters, "openai"),
	)
	anthropic := chain(
		authn.Middleware("anthropic"),
		middleware.KeyLimits(s.limiters, "anthropic"),
	)

	mux.Handle("POST /v1/chat/completions", openai(http.HandlerFunc(s.deps.ChatCompletions)))
	mux.Handle("POST /v1/messages", anthropic(http.HandlerFunc(s.deps.Messages)))
	mux.Handle("GET /v1/models", openai(http.HandlerFunc(s.deps.ListModels)))

	mux.HandleFunc("GET /health", s.deps.Health)
	mux.HandleFunc("GET /{$}", s.deps.Health)

	if s.metrics != nil {
		path := s.cfg.Telemetry.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	if s.sessions != nil {
		s.mountAdmin(mux)
	}

	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		Enabled:        s.cfg.Server.CORSEnabled(),
		AllowedOrigins: s.cfg.Server.CORS.AllowedOrigins,
	})(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// mountAdmin registers the operator API. Login and logout are public;
// everything else requires a valid admin session.
func (s *Server) mountAdmin(mux *http.ServeMux) {
	api := &admin.API{
		Store:    s.store,
		Pool:     s.accounts,
		Keys:     s.keys,
		Cipher:   s.cipher,
		Flow:     s.flow,
		Sessions: s.sessions,
		Limiters: s.limiters,
		Region:   s.cfg.Upstream.Region,
	}

	mux.HandleFunc("POST /admin/api/login", api.Login)
	mux.HandleFunc("POST /admin/api/logout", api.Logout)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /admin/api/stats", api.Stats)
	protected.HandleFunc("GET /admin/api/keys", api.ListKeys)
	protected.HandleFunc("POST /admin/api/keys", api.CreateKey)
	protected.HandleFunc("POST /admin/api/keys/{id}/toggle", api.ToggleKey)
	protected.HandleFunc("DELETE /admin/api/keys/{id}", api.DeleteKey)
	protected.HandleFunc("GET /admin/api/keys/{id}/usage", api.KeyUsage)
	protected.HandleFunc("GET /admin/api/accounts", api.ListAccounts)
	protected.HandleFunc("POST /admin/api/accounts/{id}/toggle", api.ToggleAccount)
	protected.HandleFunc("POST /admin/api/accounts/{id}/refresh", api.RefreshAccount)
	protected.HandleFunc("DELETE /admin/api/accounts/{id}", api.DeleteAccount)
	protected.HandleFunc("POST /admin/api/oauth/start", api.OAuthStart)
	protected.HandleFunc("GET /admin/api/oauth/callback", api.OAuthCallback)

	mux.Handle("/admin/api/", s.sessions.Middleware(protected))
}

// chain composes middleware left to right: the first listed runs first.
func chain(mw ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		return h
	}
}
