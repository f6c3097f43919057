package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects all validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// validReasoningHandling are the accepted thinking-text handling modes.
var validReasoningHandling = map[string]bool{
	"as_reasoning_content": true,
	"remove":               true,
	"pass":                 true,
	"strip_tags":           true,
}

// Validate checks the whole configuration. All errors are collected
// and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateStreaming(&cfg.Streaming)...)
	errs = append(errs, validateReasoning(&cfg.Reasoning)...)
	errs = append(errs, validateTokens(&cfg.Tokens)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid host:port: %v", err),
		})
	}
	if cfg.ReadHeaderTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_header_timeout",
			Message: "must be non-negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "must be non-negative",
		})
	}
	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.Region == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.region",
			Message: "region is required",
		})
	}
	if cfg.MaxRetries < 1 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_retries",
			Message: "must be at least 1",
		})
	}
	if cfg.BaseRetryDelay < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.base_retry_delay",
			Message: "must be non-negative",
		})
	}
	if cfg.VPNProxyURL != "" {
		if u, err := url.Parse(cfg.VPNProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "upstream.vpn_proxy_url",
				Message: "must be an absolute URL",
			})
		}
	}
	if cfg.MaxConnections < 1 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_connections",
			Message: "must be at least 1",
		})
	}
	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxConcurrent < 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.max_concurrent",
			Message: "must be non-negative (0 disables)",
		})
	}
	if cfg.MinInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.min_interval",
			Message: "must be non-negative (0 disables)",
		})
	}
	if cfg.Backoff429 < 0 {
		errs = append(errs, FieldError{
			Field:   "rate_limit.backoff_429",
			Message: "must be non-negative (0 disables)",
		})
	}
	return errs
}

func validateStreaming(cfg *StreamingConfig) []FieldError {
	var errs []FieldError

	if cfg.FirstTokenTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "streaming.first_token_timeout",
			Message: "must be positive",
		})
	}
	if cfg.FirstTokenMaxRetries < 1 {
		errs = append(errs, FieldError{
			Field:   "streaming.first_token_max_retries",
			Message: "must be at least 1",
		})
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "streaming.read_timeout",
			Message: "must be positive",
		})
	}
	if cfg.FirstTokenTimeout > 0 && cfg.ReadTimeout > 0 && cfg.FirstTokenTimeout >= cfg.ReadTimeout {
		slog.Warn("first_token_timeout is not below read_timeout; first-token retries will never fire",
			"first_token_timeout", cfg.FirstTokenTimeout, "read_timeout", cfg.ReadTimeout)
	}
	return errs
}

func validateReasoning(cfg *ReasoningConfig) []FieldError {
	var errs []FieldError

	if cfg.Handling != "" && !validReasoningHandling[cfg.Handling] {
		errs = append(errs, FieldError{
			Field:   "reasoning.handling",
			Message: fmt.Sprintf("unknown mode %q (want as_reasoning_content, remove, pass or strip_tags)", cfg.Handling),
		})
	}
	if cfg.MaxTokens < 0 {
		errs = append(errs, FieldError{
			Field:   "reasoning.max_tokens",
			Message: "must be non-negative",
		})
	}
	if cfg.InitialBufferSize < 0 {
		errs = append(errs, FieldError{
			Field:   "reasoning.initial_buffer_size",
			Message: "must be non-negative",
		})
	}
	return errs
}

func validateTokens(cfg *TokensConfig) []FieldError {
	var errs []FieldError

	if cfg.EstimateCorrection <= 0 || cfg.EstimateCorrection > 2 {
		errs = append(errs, FieldError{
			Field:   "tokens.estimate_correction",
			Message: "must be in (0, 2]",
		})
	}
	return errs
}

func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "database.path",
			Message: "path is required",
		})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (want json or text)", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "must start with /",
		})
	}
	return errs
}
