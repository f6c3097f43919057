// Package config provides configuration management for the gateway.
//
// Configuration is loaded from an optional YAML file, then flat
// environment variables are applied on top. The file is optional so a
// bare `kirogw run` with a handful of environment variables works.
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides (flat names like KIRO_REGION,
//     PROXY_API_KEY, FIRST_TOKEN_TIMEOUT)
//  4. Validation (fails fast if invalid)
//
// Environment variables that hold durations accept either a Go
// duration string ("90s", "2m") or a bare number of seconds.
//
// # Singleton Pattern
//
// For application-wide access, use the singleton:
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config
// instances rather than the global singleton.
package config
