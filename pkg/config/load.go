package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults
// and validates. An empty path or a missing file yields a pure-default
// configuration, so the gateway runs without any file at all.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. The flat legacy names
// (KIRO_REGION, PROXY_API_KEY, FIRST_TOKEN_TIMEOUT, ...) are kept so
// existing deployments keep working unchanged.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the flat environment names on top of the
// file-derived configuration.
func applyEnvOverrides(cfg *Config) {
	// Server
	host := os.Getenv("SERVER_HOST")
	port := os.Getenv("SERVER_PORT")
	if host != "" || port != "" {
		curHost, curPort := splitListen(cfg.Server.ListenAddress)
		if host == "" {
			host = curHost
		}
		if port == "" {
			port = curPort
		}
		cfg.Server.ListenAddress = net.JoinHostPort(host, port)
	}
	if val := os.Getenv("PROXY_API_KEY"); val != "" {
		cfg.Server.ProxyAPIKey = val
	}

	// Upstream
	if val := os.Getenv("KIRO_REGION"); val != "" {
		cfg.Upstream.Region = val
	}
	if val := os.Getenv("PROFILE_ARN"); val != "" {
		cfg.Upstream.ProfileArn = val
	}
	setInt(&cfg.Upstream.MaxRetries, "MAX_RETRIES")
	setDuration(&cfg.Upstream.BaseRetryDelay, "BASE_RETRY_DELAY")
	if val := os.Getenv("VPN_PROXY_URL"); val != "" {
		cfg.Upstream.VPNProxyURL = val
	}
	setInt(&cfg.Upstream.MaxConnections, "HTTP_MAX_CONNECTIONS")
	setInt(&cfg.Upstream.MaxKeepaliveConnections, "HTTP_MAX_KEEPALIVE_CONNECTIONS")
	setDuration(&cfg.Upstream.KeepaliveExpiry, "HTTP_KEEPALIVE_EXPIRY")

	// Auth
	if val := os.Getenv("REFRESH_TOKEN"); val != "" {
		cfg.Auth.RefreshToken = val
	}
	if val := os.Getenv("KIRO_CREDS_FILE"); val != "" {
		cfg.Auth.CredsFile = val
	}
	if val := os.Getenv("KIRO_CLI_DB_FILE"); val != "" {
		cfg.Auth.CLIDBFile = val
	}
	setDuration(&cfg.Auth.RefreshThreshold, "TOKEN_REFRESH_THRESHOLD")
	setInt(&cfg.Auth.AccountErrorThreshold, "ACCOUNT_ERROR_THRESHOLD")

	// Rate limiting
	setInt(&cfg.RateLimit.MaxConcurrent, "RATE_LIMIT_MAX_CONCURRENT")
	setDuration(&cfg.RateLimit.MinInterval, "RATE_LIMIT_MIN_INTERVAL")
	setDuration(&cfg.RateLimit.Backoff429, "RATE_LIMIT_429_BACKOFF")

	// Streaming
	setDuration(&cfg.Streaming.FirstTokenTimeout, "FIRST_TOKEN_TIMEOUT")
	setInt(&cfg.Streaming.FirstTokenMaxRetries, "FIRST_TOKEN_MAX_RETRIES")
	setDuration(&cfg.Streaming.ReadTimeout, "STREAMING_READ_TIMEOUT")

	// Reasoning
	if val := os.Getenv("FAKE_REASONING"); val != "" {
		enabled := parseSwitch(val)
		cfg.Reasoning.Enabled = &enabled
	}
	setInt(&cfg.Reasoning.MaxTokens, "FAKE_REASONING_MAX_TOKENS")
	if val := os.Getenv("FAKE_REASONING_HANDLING"); val != "" {
		cfg.Reasoning.Handling = val
	}
	setInt(&cfg.Reasoning.InitialBufferSize, "FAKE_REASONING_INITIAL_BUFFER_SIZE")

	// Models
	setDuration(&cfg.Models.CacheTTL, "MODEL_CACHE_TTL")

	// Convert, tokens, recovery
	setInt(&cfg.Convert.ToolDescriptionMaxLength, "TOOL_DESCRIPTION_MAX_LENGTH")
	setFloat(&cfg.Tokens.EstimateCorrection, "TOKEN_ESTIMATE_CORRECTION")
	if val := os.Getenv("TRUNCATION_RECOVERY"); val != "" {
		enabled := parseSwitch(val)
		cfg.Recovery.Enabled = &enabled
	}

	// Database and admin
	if val := os.Getenv("DATABASE_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("ADMIN_JWT_SECRET"); val != "" {
		cfg.Admin.JWTSecret = val
	}

	// Telemetry
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
}

// splitListen splits a listen address, tolerating the empty string.
func splitListen(addr string) (host, port string) {
	if addr == "" {
		return "0.0.0.0", "8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0", "8080"
	}
	return host, port
}

// parseSwitch treats everything except the conventional off words as
// enabled.
func parseSwitch(val string) bool {
	switch val {
	case "false", "0", "no", "disabled", "off", "False", "No", "Off":
		return false
	}
	return true
}

func setInt(dst *int, name string) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring invalid integer environment value", "name", name, "value", val)
		return
	}
	*dst = n
}

func setFloat(dst *float64, name string) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("ignoring invalid float environment value", "name", name, "value", val)
		return
	}
	*dst = f
}

// setDuration accepts a Go duration string or a bare number of seconds
// (the legacy format).
func setDuration(dst *time.Duration, name string) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	slog.Warn("ignoring invalid duration environment value", "name", name, "value", val)
}
