package config

import "time"

// Config is the root configuration for the gateway.
type Config struct {
	// Server configures the listening HTTP server.
	Server ServerConfig `yaml:"server"`

	// Upstream configures the upstream API client: region, retry
	// policy, timeouts and the shared connection pool.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Auth configures single-tenant credentials and token refresh.
	// Pool-managed accounts live in the database instead.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit configures the global upstream admission gate.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Streaming configures the first-token retry loop and streaming
	// timeouts.
	Streaming StreamingConfig `yaml:"streaming"`

	// Reasoning configures thinking-tag injection and handling.
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// Models configures the model resolver and catalog cache.
	Models ModelsConfig `yaml:"models"`

	// Convert configures request translation.
	Convert ConvertConfig `yaml:"convert"`

	// Tokens configures the local token estimator.
	Tokens TokensConfig `yaml:"tokens"`

	// Recovery configures truncation recovery.
	Recovery RecoveryConfig `yaml:"recovery"`

	// Database configures the gateway SQLite database.
	Database DatabaseConfig `yaml:"database"`

	// Admin configures the admin API and its sessions.
	Admin AdminConfig `yaml:"admin"`

	// Usage configures usage recording.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	// Default: "0.0.0.0:8080"
	ListenAddress string `yaml:"listen_address"`

	// ProxyAPIKey is the legacy single shared client key. When set it
	// is accepted alongside database-issued keys. When neither this
	// nor any database key exists, client auth is disabled.
	ProxyAPIKey string `yaml:"proxy_api_key"`

	// ReadHeaderTimeout bounds request header reads. Bodies are left
	// unbounded because streaming requests hold connections open.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout bounds keep-alive idle connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORS configures cross-origin access.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// AllowedOrigins lists permitted origins; ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UpstreamConfig configures the upstream API client.
type UpstreamConfig struct {
	// Region selects the upstream API region.
	// Default: "us-east-1"
	Region string `yaml:"region"`

	// ProfileArn overrides the profile ARN carried by credentials.
	ProfileArn string `yaml:"profile_arn"`

	// MaxRetries is total attempts per non-streaming call.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// BaseRetryDelay seeds the exponential backoff between attempts.
	// Default: 1s
	BaseRetryDelay time.Duration `yaml:"base_retry_delay"`

	// ConnectTimeout bounds dialing.
	// Default: 30s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// RequestTimeout is the whole-request envelope for non-streaming
	// calls.
	// Default: 300s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// VPNProxyURL routes upstream calls through an outbound HTTP
	// proxy. Empty uses the environment's proxy settings.
	VPNProxyURL string `yaml:"vpn_proxy_url"`

	// MaxConnections caps the shared connection pool.
	// Default: 100
	MaxConnections int `yaml:"max_connections"`

	// MaxKeepaliveConnections caps idle pooled connections.
	// Default: 20
	MaxKeepaliveConnections int `yaml:"max_keepalive_connections"`

	// KeepaliveExpiry is the idle connection lifetime.
	// Default: 30s
	KeepaliveExpiry time.Duration `yaml:"keepalive_expiry"`
}

// AuthConfig configures single-tenant credentials. At most one of
// RefreshToken, CredsFile and CLIDBFile is used; see credentials
// discovery in the auth package.
type AuthConfig struct {
	// RefreshToken is a bare social-auth refresh token.
	RefreshToken string `yaml:"refresh_token"`

	// CredsFile points at a desktop-style JSON credentials file.
	CredsFile string `yaml:"creds_file"`

	// CLIDBFile points at the Kiro CLI SQLite token database.
	CLIDBFile string `yaml:"cli_db_file"`

	// RefreshThreshold refreshes tokens this close to expiry.
	// Default: 600s
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`

	// AccountErrorThreshold deactivates a pool account after this
	// many consecutive errors.
	// Default: 3
	AccountErrorThreshold int `yaml:"account_error_threshold"`
}

// RateLimitConfig configures the global upstream admission gate.
// Zero disables each knob.
type RateLimitConfig struct {
	// MaxConcurrent caps in-flight upstream requests.
	// Default: 0 (unlimited)
	MaxConcurrent int `yaml:"max_concurrent"`

	// MinInterval spaces out request starts.
	// Default: 0 (no spacing)
	MinInterval time.Duration `yaml:"min_interval"`

	// Backoff429 pauses all admissions after an upstream 429.
	// Default: 0 (disabled)
	Backoff429 time.Duration `yaml:"backoff_429"`
}

// StreamingConfig configures streaming behavior.
type StreamingConfig struct {
	// FirstTokenTimeout bounds the wait for the first upstream event.
	// Default: 15s
	FirstTokenTimeout time.Duration `yaml:"first_token_timeout"`

	// FirstTokenMaxRetries is total attempts in the first-token retry
	// loop.
	// Default: 3
	FirstTokenMaxRetries int `yaml:"first_token_max_retries"`

	// ReadTimeout bounds the response-header wait on streaming calls.
	// Default: 300s
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ReasoningConfig configures thinking-tag injection and how emitted
// thinking text is handled.
type ReasoningConfig struct {
	// Enabled injects the thinking-mode marker into upstream requests.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// MaxTokens is the advertised thinking budget.
	// Default: 4000
	MaxTokens int `yaml:"max_tokens"`

	// Handling is one of "as_reasoning_content", "remove", "pass" or
	// "strip_tags".
	// Default: "as_reasoning_content"
	Handling string `yaml:"handling"`

	// OpenTags are the opening delimiters watched for at stream start.
	// Default: <thinking>, <think>, <reasoning>, <thought>
	OpenTags []string `yaml:"open_tags"`

	// InitialBufferSize is how many leading characters are buffered
	// for tag detection.
	// Default: 20
	InitialBufferSize int `yaml:"initial_buffer_size"`
}

// ModelsConfig configures the model resolver.
type ModelsConfig struct {
	// Hidden maps display names to internal ids for models the
	// upstream list omits but still serves.
	Hidden map[string]string `yaml:"hidden"`

	// Aliases maps alternative request names to real model names.
	Aliases map[string]string `yaml:"aliases"`

	// HiddenFromList removes names from /v1/models without making
	// them unusable.
	HiddenFromList []string `yaml:"hidden_from_list"`

	// CacheTTL is how long the upstream model list stays fresh.
	// Default: 1h
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ConvertConfig configures request translation.
type ConvertConfig struct {
	// ToolDescriptionMaxLength relocates longer tool descriptions into
	// the system prompt. Zero disables the limit.
	// Default: 10000
	ToolDescriptionMaxLength int `yaml:"tool_description_max_length"`
}

// TokensConfig configures the local token estimator.
type TokensConfig struct {
	// EstimateCorrection multiplies pre-request estimates to
	// compensate for the estimator overshooting.
	// Default: 0.95
	EstimateCorrection float64 `yaml:"estimate_correction"`
}

// RecoveryConfig configures truncation recovery.
type RecoveryConfig struct {
	// Enabled is the master switch for continuation-aware retries of
	// truncated tool calls.
	// Default: true
	Enabled *bool `yaml:"enabled"`
}

// DatabaseConfig configures the gateway database.
type DatabaseConfig struct {
	// Path is the SQLite file location. The parent directory is
	// created on startup.
	// Default: "data/gateway.db"
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy handler bound.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	// Enabled mounts the /admin routes.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// JWTSecret signs admin session cookies. Empty generates an
	// ephemeral secret at startup, so sessions do not survive a
	// restart.
	JWTSecret string `yaml:"jwt_secret"`

	// SessionTTL bounds admin session validity.
	// Default: 24h
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// UsageConfig configures usage recording.
type UsageConfig struct {
	// BatchSize triggers an inline flush of buffered usage rows.
	// Default: 100
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the periodic background flush.
	// Default: 60s
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled mounts the metrics handler.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// CORSEnabled reports the effective CORS switch.
func (c *ServerConfig) CORSEnabled() bool {
	return c.CORS.Enabled == nil || *c.CORS.Enabled
}

// ReasoningEnabled reports the effective thinking-injection switch.
func (c *Config) ReasoningEnabled() bool {
	return c.Reasoning.Enabled == nil || *c.Reasoning.Enabled
}

// RecoveryEnabled reports the effective truncation-recovery switch.
func (c *Config) RecoveryEnabled() bool {
	return c.Recovery.Enabled == nil || *c.Recovery.Enabled
}

// AdminEnabled reports whether the admin API is mounted.
func (c *Config) AdminEnabled() bool {
	return c.Admin.Enabled == nil || *c.Admin.Enabled
}

// MetricsEnabled reports whether the metrics endpoint is mounted.
func (c *Config) MetricsEnabled() bool {
	return c.Telemetry.Metrics.Enabled == nil || *c.Telemetry.Metrics.Enabled
}
