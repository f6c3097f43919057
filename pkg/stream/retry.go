package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// RetriesExhaustedError reports that every first-token retry attempt
// timed out. Handlers map it to 504 (OpenAI) or a typed error event
// (Anthropic).
type RetriesExhaustedError struct {
	Attempts int
	Timeout  time.Duration
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("model did not respond within %s after %d attempts", e.Timeout, e.Attempts)
}

// RequestFunc issues the upstream POST, re-acquiring credentials as
// needed, and returns the response body. It is called once per attempt.
type RequestFunc func(ctx context.Context) (io.ReadCloser, error)

// AttemptFunc runs one emitter pass over body. It reports whether any
// bytes reached the client; a first-token timeout with nothing emitted is
// the only retryable outcome.
type AttemptFunc func(ctx context.Context, body io.ReadCloser) (emitted bool, err error)

// RunWithFirstTokenRetry wraps an emitter in the first-token retry loop:
// on ErrFirstTokenTimeout before any downstream byte, the upstream
// response is closed and the request re-issued, up to maxRetries
// attempts total.
func RunWithFirstTokenRetry(ctx context.Context, maxRetries int, timeout time.Duration, request RequestFunc, attempt AttemptFunc) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			slog.Warn("retrying after first token timeout",
				"attempt", i+1,
				"max_retries", maxRetries,
				"timeout", timeout,
			)
		}

		body, err := request(ctx)
		if err != nil {
			return err
		}

		emitted, err := attempt(ctx, body)
		body.Close()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrFirstTokenTimeout) && !emitted {
			continue
		}
		return err
	}

	slog.Error("all first-token retry attempts exhausted",
		"attempts", maxRetries,
		"timeout", timeout,
	)
	return &RetriesExhaustedError{Attempts: maxRetries, Timeout: timeout}
}
