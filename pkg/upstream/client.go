package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"kirohq/gateway/pkg/models"
)

// TokenSource supplies bearer credentials for upstream calls and can be
// told to refresh them when the upstream rejects one.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) error
}

// Config holds the client's retry and timeout knobs.
type Config struct {
	// MaxRetries is the number of attempts per request.
	MaxRetries int

	// BaseRetryDelay seeds the exponential backoff: attempt n sleeps
	// BaseRetryDelay * 2^n.
	BaseRetryDelay time.Duration

	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the whole request/response envelope for
	// non-streaming calls.
	RequestTimeout time.Duration

	// StreamingHeaderTimeout bounds the wait for response headers on
	// streaming calls. Body reads are bounded by the caller's context.
	StreamingHeaderTimeout time.Duration

	// ProxyURL routes all requests through an outbound HTTP proxy.
	// Empty uses the environment's proxy settings.
	ProxyURL string
}

// DefaultConfig returns the production retry and timeout settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:             3,
		BaseRetryDelay:         time.Second,
		ConnectTimeout:         30 * time.Second,
		RequestTimeout:         300 * time.Second,
		StreamingHeaderTimeout: 300 * time.Second,
	}
}

// Client issues authenticated requests against the assistant-response
// API with retry, refresh-on-403, and transport error classification.
//
// Non-streaming requests share a pooled client. Streaming requests get
// a fresh single-use client each time: pooled connections that went
// half-closed during a network transition otherwise surface as
// mid-stream resets, so streaming also asks the server not to keep the
// connection alive.
type Client struct {
	config Config
	tokens TokenSource
	proxy  func(*http.Request) (*url.URL, error)
	shared *http.Client

	// onRateLimited, when set, is called with the attempt's backoff
	// whenever the upstream answers 429.
	onRateLimited func(delay time.Duration)
}

// New creates a client with the given configuration. Zero-value fields
// in cfg fall back to DefaultConfig.
func New(cfg Config, tokens TokenSource) *Client {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = def.BaseRetryDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.StreamingHeaderTimeout <= 0 {
		cfg.StreamingHeaderTimeout = def.StreamingHeaderTimeout
	}

	proxy := http.ProxyFromEnvironment
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			slog.Warn("invalid proxy url, using environment proxy settings",
				"proxy_url", cfg.ProxyURL, "error", err)
		} else {
			proxy = http.ProxyURL(u)
		}
	}

	return &Client{
		config: cfg,
		tokens: tokens,
		proxy:  proxy,
		shared: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy: proxy,
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetRateLimitNotify registers a callback invoked on every 429 with the
// backoff delay about to be observed.
func (c *Client) SetRateLimitNotify(fn func(delay time.Duration)) {
	c.onRateLimited = fn
}

// Do sends a non-streaming request and returns the response body.
func (c *Client) Do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	resp, err := c.send(ctx, method, url, payload, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// DoStream sends a streaming POST and returns the response body for the
// caller to consume. The caller owns closing the body.
func (c *Client) DoStream(ctx context.Context, url string, payload []byte) (io.ReadCloser, error) {
	resp, err := c.send(ctx, http.MethodPost, url, payload, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// streamingClient builds a single-use client. Keep-alives are disabled
// so the connection is torn down when the stream ends.
func (c *Client) streamingClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: c.proxy,
			DialContext: (&net.Dialer{
				Timeout: c.config.ConnectTimeout,
			}).DialContext,
			DisableKeepAlives:     true,
			ResponseHeaderTimeout: c.config.StreamingHeaderTimeout,
		},
	}
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte, streaming bool) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, method, url, payload, streaming)
		if err != nil {
			return nil, err
		}

		httpClient := c.shared
		if streaming {
			httpClient = c.streamingClient()
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			te := ClassifyTransportError(err)
			lastErr = te
			slog.Warn("upstream transport error",
				"category", te.Category,
				"retryable", te.Retryable,
				"attempt", attempt+1,
				"error", err)
			if !te.Retryable {
				break
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil

		case resp.StatusCode == http.StatusForbidden:
			drainAndClose(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			slog.Info("upstream returned 403, refreshing credentials", "attempt", attempt+1)
			if err := c.tokens.ForceRefresh(ctx); err != nil {
				return nil, fmt.Errorf("refresh after 403: %w", err)
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			drainAndClose(resp)
			delay := c.delay(attempt)
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			slog.Warn("upstream rate limited", "attempt", attempt+1, "backoff", delay)
			if c.onRateLimited != nil {
				c.onRateLimited(delay)
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			body := readSnippet(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: body}
			slog.Warn("upstream server error", "status", resp.StatusCode, "attempt", attempt+1)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue

		default:
			// Remaining 4xx are terminal: retrying the same request
			// cannot change the answer.
			body := readSnippet(resp)
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
		}
	}

	status := http.StatusBadGateway
	if streaming {
		status = http.StatusGatewayTimeout
	}
	return nil, &RetriesExhaustedError{
		Attempts:        c.config.MaxRetries,
		SuggestedStatus: status,
		LastErr:         lastErr,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload []byte, streaming bool) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if streaming {
		req.Header.Set("Connection", "close")
	}
	return req, nil
}

func (c *Client) delay(attempt int) time.Duration {
	return c.config.BaseRetryDelay * (1 << attempt)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	return sleepCtx(ctx, c.delay(attempt))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func readSnippet(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(b)
}

// listModelsResponse tolerates both the flat and nested window shapes
// the upstream has been observed to return.
type listModelsResponse struct {
	Models []struct {
		ModelID     string `json:"modelId"`
		ModelName   string `json:"modelName"`
		TokenLimits struct {
			MaxInputTokens int `json:"maxInputTokens"`
		} `json:"tokenLimits"`
		MaxInputTokens int `json:"maxInputTokens"`
	} `json:"models"`
}

// ListModels fetches the available model list for a region and maps it
// into catalog entries.
func (c *Client) ListModels(ctx context.Context, region, profileArn string) ([]models.Entry, error) {
	body, err := c.Do(ctx, http.MethodGet, ListModelsURL(region, profileArn), nil)
	if err != nil {
		return nil, err
	}

	return parseModelList(body)
}

func parseModelList(body []byte) ([]models.Entry, error) {
	var parsed listModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	entries := make([]models.Entry, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if m.ModelID == "" {
			continue
		}
		window := m.TokenLimits.MaxInputTokens
		if window == 0 {
			window = m.MaxInputTokens
		}
		entries = append(entries, models.Entry{ID: m.ModelID, MaxInputTokens: window})
	}
	return entries, nil
}
