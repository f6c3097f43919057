package config

import (
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("PROXY_API_KEY", "sk-env")
	t.Setenv("KIRO_REGION", "ap-southeast-2")
	t.Setenv("PROFILE_ARN", "arn:aws:codewhisperer:::profile/env")
	t.Setenv("MAX_RETRIES", "4")
	t.Setenv("BASE_RETRY_DELAY", "2.5")
	t.Setenv("REFRESH_TOKEN", "rt-env")
	t.Setenv("KIRO_CLI_DB_FILE", "/tmp/cli.sqlite3")
	t.Setenv("RATE_LIMIT_MAX_CONCURRENT", "8")
	t.Setenv("RATE_LIMIT_MIN_INTERVAL", "250ms")
	t.Setenv("FIRST_TOKEN_TIMEOUT", "30")
	t.Setenv("STREAMING_READ_TIMEOUT", "5m")
	t.Setenv("FAKE_REASONING", "false")
	t.Setenv("FAKE_REASONING_HANDLING", "strip_tags")
	t.Setenv("TOKEN_ESTIMATE_CORRECTION", "0.9")
	t.Setenv("TRUNCATION_RECOVERY", "off")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:9100" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ProxyAPIKey != "sk-env" {
		t.Errorf("proxy api key = %q", cfg.Server.ProxyAPIKey)
	}
	if cfg.Upstream.Region != "ap-southeast-2" {
		t.Errorf("region = %q", cfg.Upstream.Region)
	}
	if cfg.Upstream.ProfileArn != "arn:aws:codewhisperer:::profile/env" {
		t.Errorf("profile arn = %q", cfg.Upstream.ProfileArn)
	}
	if cfg.Upstream.MaxRetries != 4 {
		t.Errorf("max retries = %d", cfg.Upstream.MaxRetries)
	}
	// Bare numbers are seconds.
	if cfg.Upstream.BaseRetryDelay != 2500*time.Millisecond {
		t.Errorf("base retry delay = %v", cfg.Upstream.BaseRetryDelay)
	}
	if cfg.Auth.RefreshToken != "rt-env" || cfg.Auth.CLIDBFile != "/tmp/cli.sqlite3" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.RateLimit.MaxConcurrent != 8 || cfg.RateLimit.MinInterval != 250*time.Millisecond {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Streaming.FirstTokenTimeout != 30*time.Second {
		t.Errorf("first token timeout = %v", cfg.Streaming.FirstTokenTimeout)
	}
	if cfg.Streaming.ReadTimeout != 5*time.Minute {
		t.Errorf("read timeout = %v", cfg.Streaming.ReadTimeout)
	}
	if cfg.ReasoningEnabled() {
		t.Error("FAKE_REASONING=false should disable reasoning")
	}
	if cfg.Reasoning.Handling != "strip_tags" {
		t.Errorf("handling = %q", cfg.Reasoning.Handling)
	}
	if cfg.Tokens.EstimateCorrection != 0.9 {
		t.Errorf("estimate correction = %v", cfg.Tokens.EstimateCorrection)
	}
	if cfg.RecoveryEnabled() {
		t.Error("TRUNCATION_RECOVERY=off should disable recovery")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestEnvOverridesIgnoreInvalidValues(t *testing.T) {
	t.Setenv("MAX_RETRIES", "many")
	t.Setenv("FIRST_TOKEN_TIMEOUT", "soon")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.Upstream.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want default", cfg.Upstream.MaxRetries)
	}
	if cfg.Streaming.FirstTokenTimeout != DefaultFirstTokenTimeout {
		t.Errorf("first token timeout = %v, want default", cfg.Streaming.FirstTokenTimeout)
	}
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"anything", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"disabled", false},
		{"off", false},
		{"False", false},
	}
	for _, tt := range tests {
		if got := parseSwitch(tt.value); got != tt.want {
			t.Errorf("parseSwitch(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSetDurationFormats(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90", 90 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		var d time.Duration
		setDuration(&d, "TEST_DURATION")
		if d != tt.want {
			t.Errorf("setDuration(%q) = %v, want %v", tt.value, d, tt.want)
		}
	}
}
