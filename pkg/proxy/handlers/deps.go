package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/config"
	"kirohq/gateway/pkg/limits/ratelimit"
	"kirohq/gateway/pkg/models"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/recovery"
	"kirohq/gateway/pkg/storage"
	"kirohq/gateway/pkg/stream"
	"kirohq/gateway/pkg/telemetry/metrics"
	"kirohq/gateway/pkg/tokens"
	"kirohq/gateway/pkg/upstream"
	"kirohq/gateway/pkg/usage"
)

// Deps carries everything the dialect handlers need. The server wires
// it once at startup; tests wire fakes.
type Deps struct {
	// Config returns the current configuration. Wired to the config
	// singleton so hot reloads take effect per request.
	Config func() *config.Config

	// Resolver maps client model names to upstream identifiers.
	Resolver *models.Resolver

	// Pool selects a healthy upstream account per request.
	Pool *pool.Pool

	// Gate is the global upstream admission gate. Nil disables it.
	Gate *ratelimit.Gate

	// Upstream is the retry and timeout configuration for upstream calls.
	Upstream upstream.Config

	// AssistantURL maps a region to the chat endpoint. Nil uses the
	// production endpoint; tests point it at a local server.
	AssistantURL func(region string) string

	// Estimator supplies local token estimates.
	Estimator *tokens.CharEstimator

	// Recovery persists truncation diagnostics across turns.
	Recovery *recovery.Store

	// Usage records per-request usage rows.
	Usage *usage.Recorder

	// Metrics is nil-safe and may be left unset.
	Metrics *metrics.Metrics

	// Version and StartedAt feed the health endpoint.
	Version   string
	StartedAt time.Time
}

func (d *Deps) cfg() *config.Config {
	if d.Config != nil {
		return d.Config()
	}
	return config.MustGetConfig()
}

// newClient builds an upstream client bound to one account's
// credentials, with 429 notifications fanned out to the gate.
func (d *Deps) newClient(mgr *auth.Manager) *upstream.Client {
	client := upstream.New(d.Upstream, mgr)
	client.SetRateLimitNotify(func(delay time.Duration) {
		d.Metrics.SetBackoffActive(true)
		if d.Gate != nil {
			d.Gate.Notify429()
		}
	})
	return client
}

// acquireGate admits the request through the global gate and returns
// the paired release. The release also refreshes the inflight gauge.
func (d *Deps) acquireGate(ctx context.Context) (func(), error) {
	if d.Gate == nil {
		return func() {}, nil
	}
	if err := d.Gate.Acquire(ctx); err != nil {
		return nil, err
	}
	d.Metrics.SetLimiterInflight(d.Gate.Stats().Active)
	return func() {
		d.Gate.Release()
		d.Metrics.SetLimiterInflight(d.Gate.Stats().Active)
		d.Metrics.SetBackoffActive(false)
	}, nil
}

// completion is the bookkeeping shared by both dialect endpoints after
// the upstream stream finished or failed.
type completion struct {
	deps     *Deps
	dialect  string
	endpoint string
	model    string
	account  *storage.Account
	key      *storage.APIKey
	limiter  *ratelimit.KeyLimiter
	start    time.Time
}

// succeed reports account health, records usage and updates metrics
// for a finished stream.
func (c *completion) succeed(ctx context.Context, out *stream.Outcome, status int) {
	if c.account != nil {
		c.deps.Pool.ReportSuccess(ctx, c.account.ID)
	}

	acct := out.Accounting
	if c.limiter != nil {
		c.limiter.RecordTokens(acct.TotalTokens)
	}

	rec := storage.UsageRecord{
		AccountID:    accountID(c.account),
		Model:        c.model,
		Endpoint:     c.endpoint,
		InputTokens:  acct.PromptTokens,
		OutputTokens: acct.CompletionTokens,
		TotalTokens:  acct.TotalTokens,
		StatusCode:   status,
		DurationMS:   time.Since(c.start).Milliseconds(),
		Timestamp:    time.Now(),
	}
	if c.key != nil {
		rec.APIKeyID = c.key.ID
	}
	if c.deps.Usage != nil {
		c.deps.Usage.Record(ctx, rec)
	}

	c.deps.Metrics.RecordRequest(c.dialect, c.model, strconv.Itoa(status), time.Since(c.start))
	c.deps.Metrics.RecordTokens(c.model, acct.PromptTokens, acct.CompletionTokens)

	c.persistTruncation(out)
}

// fail reports the error against the account when the upstream caused
// it, and updates request metrics.
func (c *completion) fail(ctx context.Context, err error, status int) {
	if c.account != nil && upstreamCaused(err) {
		c.deps.Pool.ReportError(ctx, c.account.ID, err.Error())
	}
	c.deps.Metrics.RecordRequest(c.dialect, c.model, strconv.Itoa(status), time.Since(c.start))
	c.deps.Metrics.RecordUpstreamError(errorReason(err))

	slog.ErrorContext(ctx, "request failed",
		"dialect", c.dialect,
		"model", c.model,
		"status", status,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
}

// persistTruncation stores truncation diagnostics so the next turn can
// rewrite the affected messages.
func (c *completion) persistTruncation(out *stream.Outcome) {
	store := c.deps.Recovery
	if store == nil || !store.Enabled() || out.Summary == nil {
		return
	}
	for _, tc := range out.Summary.ToolCalls {
		if tc.Truncation != nil {
			store.RecordTool(tc.ID, tc.Name, tc.Truncation.Reason, tc.Truncation.SizeBytes)
		}
	}
	if out.Summary.ContentTruncated() {
		store.RecordContent(out.Summary.Content)
	}
}

// upstreamCaused reports whether an error should count against the
// selected account's health. Client mistakes and local limits do not.
func upstreamCaused(err error) bool {
	var transport *upstream.TransportError
	var status *upstream.StatusError
	var exhausted *upstream.RetriesExhaustedError
	var firstToken *stream.RetriesExhaustedError
	return errors.As(err, &transport) ||
		errors.As(err, &status) ||
		errors.As(err, &exhausted) ||
		errors.As(err, &firstToken) ||
		errors.Is(err, auth.ErrAuthRequired)
}

// errorReason buckets an error for the upstream error counter.
func errorReason(err error) string {
	var transport *upstream.TransportError
	if errors.As(err, &transport) {
		return transport.Category
	}
	var status *upstream.StatusError
	if errors.As(err, &status) {
		if status.StatusCode == 429 {
			return "throttled"
		}
		return "upstream_status"
	}
	var exhausted *upstream.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return "retries_exhausted"
	}
	var firstToken *stream.RetriesExhaustedError
	if errors.As(err, &firstToken) {
		return "first_token_timeout"
	}
	if errors.Is(err, auth.ErrAuthRequired) {
		return "auth_required"
	}
	if errors.Is(err, pool.ErrNoAccounts) {
		return "no_accounts"
	}
	return "other"
}

func accountID(a *storage.Account) int64 {
	if a == nil {
		return 0
	}
	return a.ID
}

