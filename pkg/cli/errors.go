package cli

import (
	"errors"
	"fmt"
)

// ExitError carries a process exit code alongside the underlying
// error. Commands return it when a plain exit(1) is wrong, such as
// validation failures that scripts want to distinguish.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ConfigError is a configuration problem surfaced to the operator with
// the offending field named.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ExitCode maps an error to the process exit code: 0 for nil, the
// carried code for ExitError, 2 for configuration problems, 1
// otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return 2
	}
	return 1
}
