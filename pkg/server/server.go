package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"kirohq/gateway/pkg/admin"
	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/auth/oauthflow"
	"kirohq/gateway/pkg/config"
	"kirohq/gateway/pkg/keys"
	"kirohq/gateway/pkg/limits/ratelimit"
	"kirohq/gateway/pkg/models"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/handlers"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/recovery"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
	"kirohq/gateway/pkg/telemetry/logging"
	"kirohq/gateway/pkg/telemetry/metrics"
	"kirohq/gateway/pkg/tokens"
	"kirohq/gateway/pkg/upstream"
	"kirohq/gateway/pkg/usage"
)

// Options configures server construction.
type Options struct {
	// Config is the loaded configuration.
	Config *config.Config

	// ConfigPath, when set, enables hot reload of that file.
	ConfigPath string

	// Version is reported by /health and the admin API.
	Version string
}

// Server owns the HTTP listener and every long-lived component behind
// it: database, account pool, admission gate, model catalog, usage
// recorder, metrics and the cron jobs.
type Server struct {
	cfg     *config.Config
	cfgPath string
	version string

	store    *storage.Store
	cipher   *secrets.Cipher
	accounts *pool.Pool
	keys     *keys.Manager
	usage    *usage.Recorder
	gate     *ratelimit.Gate
	catalog  *models.Catalog
	resolver *models.Resolver
	metrics  *metrics.Metrics
	flow     *oauthflow.Flow
	sessions *admin.Sessions
	limiters *middleware.Registry
	deps     *handlers.Deps

	httpServer   *http.Server
	cron         *cron.Cron
	shutdownOnce sync.Once
	startedAt    time.Time
}

// New wires all components from the configuration. The database is
// opened and migrated here; nothing talks to the upstream yet.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	store, err := storage.Open(storage.Config{
		Path:               cfg.Database.Path,
		BusyTimeout:        cfg.Database.BusyTimeout,
		CheckpointInterval: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cipher, err := secrets.NewCipherFromSource(secrets.DefaultKeySource())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		cfgPath:   opts.ConfigPath,
		version:   opts.Version,
		store:     store,
		cipher:    cipher,
		startedAt: time.Now(),
	}

	s.accounts = pool.New(store, cipher, pool.Config{
		ErrorThreshold: cfg.Auth.AccountErrorThreshold,
		Auth: auth.Config{
			RefreshThreshold: cfg.Auth.RefreshThreshold,
			ProxyURL:         cfg.Upstream.VPNProxyURL,
		},
	})
	s.keys = keys.NewManager(store)
	s.usage = usage.NewRecorder(store, cfg.Usage.BatchSize)
	s.gate = ratelimit.NewGate(ratelimit.GateConfig{
		MaxConcurrent: cfg.RateLimit.MaxConcurrent,
		MinInterval:   cfg.RateLimit.MinInterval,
		Backoff429:    cfg.RateLimit.Backoff429,
	})
	s.catalog = models.NewCatalog(cfg.Models.CacheTTL)
	// Never serve with an empty catalog; the startup fetch replaces
	// the fallback list when it succeeds.
	s.catalog.UseFallback()
	s.resolver = models.NewResolver(s.catalog,
		cfg.Models.Hidden, cfg.Models.Aliases, cfg.Models.HiddenFromList)
	s.limiters = middleware.NewRegistry()

	if cfg.MetricsEnabled() {
		s.metrics = metrics.New()
	}

	if cfg.AdminEnabled() {
		secret := cfg.Admin.JWTSecret
		if secret == "" {
			secret = randomSecret()
			slog.Warn("admin.jwt_secret not set, sessions will not survive a restart")
		}
		s.sessions, err = admin.NewSessions(secret, cfg.Admin.SessionTTL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("admin sessions: %w", err)
		}
		s.flow = oauthflow.New(oauthflow.Config{Region: cfg.Upstream.Region})
	}

	s.deps = &handlers.Deps{
		Config:    config.MustGetConfig,
		Resolver:  s.resolver,
		Pool:      s.accounts,
		Gate:      s.gate,
		Upstream:  upstreamConfig(cfg),
		Estimator: newEstimator(cfg),
		Recovery:  recovery.NewStore(cfg.RecoveryEnabled()),
		Usage:     s.usage,
		Metrics:   s.metrics,
		Version:   opts.Version,
		StartedAt: s.startedAt,
	}

	if err := s.bootstrapAccount(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	return s, nil
}

// Start runs the listener and blocks until the context is cancelled, a
// termination signal arrives or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.refreshCatalog(ctx)
	s.startJobs()
	s.watchConfig(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway listening",
			"address", s.cfg.Server.ListenAddress,
			"version", s.version,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.Shutdown(context.Background())
		return err
	}
}

// Shutdown stops the listener, the cron jobs, flushes buffered usage
// rows and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.cron != nil {
			stopped := s.cron.Stop()
			select {
			case <-stopped.Done():
			case <-shutdownCtx.Done():
			}
		}

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("listener shutdown", "error", err)
				shutdownErr = fmt.Errorf("listener shutdown: %w", err)
			}
		}

		s.usage.Flush(shutdownCtx)
		if err := s.store.Close(); err != nil {
			slog.Error("close database", "error", err)
		}

		slog.Info("gateway stopped")
	})

	return shutdownErr
}

// bootstrapAccount seeds the pool from single-tenant configuration
// when the accounts table is empty. File and CLI-database credentials
// are read once and stored encrypted; subsequent rotation happens
// through the gateway's own refresh path.
func (s *Server) bootstrapAccount(ctx context.Context) error {
	accounts, err := s.store.ListAccounts(ctx, false)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) > 0 {
		return nil
	}

	creds, name, err := s.configCredentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil {
		slog.Info("no accounts configured, onboard one through the admin API")
		return nil
	}

	acct := &storage.Account{
		Name:       name,
		AuthKind:   creds.AuthKind,
		ProfileArn: creds.ProfileArn,
		Region:     creds.Region,
		ExpiresAt:  creds.ExpiresAt,
		IsActive:   true,
	}
	if acct.Region == "" {
		acct.Region = s.cfg.Upstream.Region
	}
	if acct.RefreshTokenEnc, err = s.cipher.EncryptString(creds.RefreshToken); err != nil {
		return fmt.Errorf("encrypt bootstrap credentials: %w", err)
	}
	if creds.AccessToken != "" {
		if acct.AccessTokenEnc, err = s.cipher.EncryptString(creds.AccessToken); err != nil {
			return err
		}
	}
	if creds.ClientID != "" {
		if acct.ClientIDEnc, err = s.cipher.EncryptString(creds.ClientID); err != nil {
			return err
		}
	}
	if creds.ClientSecret != "" {
		if acct.ClientSecretEnc, err = s.cipher.EncryptString(creds.ClientSecret); err != nil {
			return err
		}
	}

	id, err := s.store.InsertAccount(ctx, acct)
	if err != nil {
		return fmt.Errorf("bootstrap account: %w", err)
	}
	slog.Info("bootstrapped account from configuration", "account_id", id, "name", name)
	return nil
}

// configCredentials loads single-tenant credentials named in the
// configuration. Returns nil when none are configured.
func (s *Server) configCredentials(ctx context.Context) (*auth.Credentials, string, error) {
	switch {
	case s.cfg.Auth.RefreshToken != "":
		return &auth.Credentials{
			RefreshToken: s.cfg.Auth.RefreshToken,
			Region:       s.cfg.Upstream.Region,
			ProfileArn:   s.cfg.Upstream.ProfileArn,
		}, "config", nil

	case s.cfg.Auth.CredsFile != "":
		origin := &auth.FileOrigin{Path: s.cfg.Auth.CredsFile}
		creds, err := origin.Load(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("credentials file: %w", err)
		}
		return &creds, "creds-file", nil

	case s.cfg.Auth.CLIDBFile != "":
		origin := &auth.CLIDBOrigin{Path: s.cfg.Auth.CLIDBFile}
		creds, err := origin.Load(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("cli token database: %w", err)
		}
		return &creds, "cli-db", nil
	}
	return nil, "", nil
}

// refreshCatalog fetches the upstream model list once. Failures fall
// back to the built-in list so the gateway serves from cold start.
func (s *Server) refreshCatalog(ctx context.Context) {
	acct, mgr, err := s.accounts.Select(ctx)
	if err != nil {
		slog.Warn("model list fetch skipped", "error", err)
		s.catalog.UseFallback()
		return
	}

	region := mgr.Region()
	if region == "" {
		region = s.cfg.Upstream.Region
	}
	profileArn := s.cfg.Upstream.ProfileArn
	if arn := mgr.ProfileArn(); arn != "" {
		profileArn = arn
	}

	client := upstream.New(upstreamConfig(s.cfg), mgr)
	entries, err := client.ListModels(ctx, region, profileArn)
	if err != nil {
		slog.Warn("model list fetch failed, using fallback",
			"account", acct.Name, "error", err)
		s.catalog.UseFallback()
		return
	}
	s.catalog.Update(entries)
	slog.Info("model catalog updated", "models", len(entries))
}

// watchConfig starts the hot-reload watcher when a config path is
// known. Reloads update the singleton, the resolver maps and the log
// level; listener settings need a restart.
func (s *Server) watchConfig(ctx context.Context) {
	if s.cfgPath == "" {
		return
	}
	watcher, err := config.NewWatcher(s.cfgPath)
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
		return
	}
	go func() {
		err := watcher.Watch(ctx, func(cfg *config.Config) {
			config.SetConfig(cfg)
			s.resolver.SetMaps(cfg.Models.Hidden, cfg.Models.Aliases, cfg.Models.HiddenFromList)
			logging.SetLevel(cfg.Telemetry.Logging.Level)
			slog.Info("configuration reloaded")
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("config watcher stopped", "error", err)
		}
	}()
}

func upstreamConfig(cfg *config.Config) upstream.Config {
	return upstream.Config{
		MaxRetries:             cfg.Upstream.MaxRetries,
		BaseRetryDelay:         cfg.Upstream.BaseRetryDelay,
		ConnectTimeout:         cfg.Upstream.ConnectTimeout,
		RequestTimeout:         cfg.Upstream.RequestTimeout,
		StreamingHeaderTimeout: cfg.Streaming.ReadTimeout,
		ProxyURL:               cfg.Upstream.VPNProxyURL,
	}
}

func newEstimator(cfg *config.Config) *tokens.CharEstimator {
	est := tokens.NewCharEstimator(tokens.DefaultConfig())
	if cfg.Tokens.EstimateCorrection > 0 {
		est.SetCorrection(cfg.Tokens.EstimateCorrection)
	}
	return est
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
