package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress     = "0.0.0.0:8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second

	DefaultRegion                  = "us-east-1"
	DefaultMaxRetries              = 3
	DefaultBaseRetryDelay          = time.Second
	DefaultConnectTimeout          = 30 * time.Second
	DefaultRequestTimeout          = 300 * time.Second
	DefaultMaxConnections          = 100
	DefaultMaxKeepaliveConnections = 20
	DefaultKeepaliveExpiry         = 30 * time.Second

	DefaultRefreshThreshold      = 600 * time.Second
	DefaultAccountErrorThreshold = 3

	DefaultFirstTokenTimeout    = 15 * time.Second
	DefaultFirstTokenMaxRetries = 3
	DefaultStreamingReadTimeout = 300 * time.Second

	DefaultReasoningMaxTokens  = 4000
	DefaultReasoningHandling   = "as_reasoning_content"
	DefaultReasoningBufferSize = 20

	DefaultModelCacheTTL = time.Hour

	DefaultToolDescriptionMaxLength = 10000
	DefaultTokenEstimateCorrection  = 0.95

	DefaultDatabasePath = "data/gateway.db"
	DefaultBusyTimeout  = 5 * time.Second

	DefaultSessionTTL = 24 * time.Hour

	DefaultUsageBatchSize     = 100
	DefaultUsageFlushInterval = 60 * time.Second

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultMetricsPath = "/metrics"
)

// DefaultReasoningOpenTags are the thinking delimiters watched for at
// stream start.
func DefaultReasoningOpenTags() []string {
	return []string{"<thinking>", "<think>", "<reasoning>", "<thought>"}
}

// DefaultHiddenModels are models the upstream list omits but still
// serves.
func DefaultHiddenModels() map[string]string {
	return map[string]string{
		"claude-3.7-sonnet": "CLAUDE_3_7_SONNET_20250219_V1_0",
		// Requests for sonnet-4.5 are served through the extended-context id.
		"claude-sonnet-4.5": "claude-sonnet-4.5-1m",
	}
}

// DefaultModelAliases map alternative request names to real names.
func DefaultModelAliases() map[string]string {
	return map[string]string{
		"auto-kiro": "auto",
	}
}

// DefaultHiddenFromList are models omitted from /v1/models while
// remaining usable.
func DefaultHiddenFromList() []string {
	return []string{"auto"}
}

// ApplyDefaults fills every zero-valued field that has a default.
// Zero values that are meaningful settings (the rate limit knobs) are
// left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Upstream.Region == "" {
		cfg.Upstream.Region = DefaultRegion
	}
	if cfg.Upstream.MaxRetries == 0 {
		cfg.Upstream.MaxRetries = DefaultMaxRetries
	}
	if cfg.Upstream.BaseRetryDelay == 0 {
		cfg.Upstream.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if cfg.Upstream.ConnectTimeout == 0 {
		cfg.Upstream.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Upstream.MaxConnections == 0 {
		cfg.Upstream.MaxConnections = DefaultMaxConnections
	}
	if cfg.Upstream.MaxKeepaliveConnections == 0 {
		cfg.Upstream.MaxKeepaliveConnections = DefaultMaxKeepaliveConnections
	}
	if cfg.Upstream.KeepaliveExpiry == 0 {
		cfg.Upstream.KeepaliveExpiry = DefaultKeepaliveExpiry
	}

	if cfg.Auth.RefreshThreshold == 0 {
		cfg.Auth.RefreshThreshold = DefaultRefreshThreshold
	}
	if cfg.Auth.AccountErrorThreshold == 0 {
		cfg.Auth.AccountErrorThreshold = DefaultAccountErrorThreshold
	}

	if cfg.Streaming.FirstTokenTimeout == 0 {
		cfg.Streaming.FirstTokenTimeout = DefaultFirstTokenTimeout
	}
	if cfg.Streaming.FirstTokenMaxRetries == 0 {
		cfg.Streaming.FirstTokenMaxRetries = DefaultFirstTokenMaxRetries
	}
	if cfg.Streaming.ReadTimeout == 0 {
		cfg.Streaming.ReadTimeout = DefaultStreamingReadTimeout
	}

	if cfg.Reasoning.MaxTokens == 0 {
		cfg.Reasoning.MaxTokens = DefaultReasoningMaxTokens
	}
	if cfg.Reasoning.Handling == "" {
		cfg.Reasoning.Handling = DefaultReasoningHandling
	}
	if len(cfg.Reasoning.OpenTags) == 0 {
		cfg.Reasoning.OpenTags = DefaultReasoningOpenTags()
	}
	if cfg.Reasoning.InitialBufferSize == 0 {
		cfg.Reasoning.InitialBufferSize = DefaultReasoningBufferSize
	}

	if cfg.Models.Hidden == nil {
		cfg.Models.Hidden = DefaultHiddenModels()
	}
	if cfg.Models.Aliases == nil {
		cfg.Models.Aliases = DefaultModelAliases()
	}
	if cfg.Models.HiddenFromList == nil {
		cfg.Models.HiddenFromList = DefaultHiddenFromList()
	}
	if cfg.Models.CacheTTL == 0 {
		cfg.Models.CacheTTL = DefaultModelCacheTTL
	}

	if cfg.Convert.ToolDescriptionMaxLength == 0 {
		cfg.Convert.ToolDescriptionMaxLength = DefaultToolDescriptionMaxLength
	}
	if cfg.Tokens.EstimateCorrection == 0 {
		cfg.Tokens.EstimateCorrection = DefaultTokenEstimateCorrection
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.Admin.SessionTTL == 0 {
		cfg.Admin.SessionTTL = DefaultSessionTTL
	}

	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = DefaultUsageBatchSize
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = DefaultUsageFlushInterval
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
