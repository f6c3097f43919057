package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type staticTokens struct {
	token     string
	refreshes atomic.Int32
}

func (s *staticTokens) AccessToken(ctx context.Context) (string, error) {
	return s.token, nil
}

func (s *staticTokens) ForceRefresh(ctx context.Context) error {
	s.refreshes.Add(1)
	return nil
}

func testClient(t *testing.T) (*Client, *staticTokens) {
	t.Helper()
	tokens := &staticTokens{token: "tok-1"}
	c := New(Config{
		MaxRetries:     3,
		BaseRetryDelay: time.Millisecond,
	}, tokens)
	return c, tokens
}

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := testClient(t)
	body, err := c.Do(context.Background(), http.MethodPost, srv.URL, []byte(`{}`))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestDoRefreshesOn403(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, tokens := testClient(t)
	body, err := c.Do(context.Background(), http.MethodPost, srv.URL, []byte(`{}`))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if tokens.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", tokens.refreshes.Load())
	}
}

func TestDoBacksOffOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := testClient(t)
	var notices []time.Duration
	c.SetRateLimitNotify(func(d time.Duration) { notices = append(notices, d) })

	if _, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("rate limit notices = %d, want 2", len(notices))
	}
	// Backoff doubles per attempt.
	if notices[1] != 2*notices[0] {
		t.Errorf("notices = %v", notices)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := testClient(t)
	body, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestDoTerminalClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := testClient(t)
	_, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestDoExhaustionStatusByMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := testClient(t)

	_, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil)
	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want RetriesExhaustedError", err)
	}
	if exhausted.SuggestedStatus != http.StatusBadGateway {
		t.Errorf("non-streaming status = %d, want 502", exhausted.SuggestedStatus)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("attempts = %d", exhausted.Attempts)
	}

	_, err = c.DoStream(context.Background(), srv.URL, []byte(`{}`))
	if !errors.As(err, &exhausted) {
		t.Fatalf("stream err = %v, want RetriesExhaustedError", err)
	}
	if exhausted.SuggestedStatus != http.StatusGatewayTimeout {
		t.Errorf("streaming status = %d, want 504", exhausted.SuggestedStatus)
	}
}

func TestDoStreamReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "stream-bytes")
	}))
	defer srv.Close()

	c, _ := testClient(t)
	body, err := c.DoStream(context.Background(), srv.URL, []byte(`{}`))
	if err != nil {
		t.Fatalf("DoStream: %v", err)
	}
	defer body.Close()

	got, _ := io.ReadAll(body)
	if string(got) != "stream-bytes" {
		t.Errorf("body = %q", got)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "origin=AI_EDITOR") {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		io.WriteString(w, `{"models":[
			{"modelId":"claude-sonnet-4.5","tokenLimits":{"maxInputTokens":200000}},
			{"modelId":"claude-sonnet-4.5-1m","maxInputTokens":1000000},
			{"modelId":""}
		]}`)
	}))
	defer srv.Close()

	c, _ := testClient(t)
	body, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/ListAvailableModels?origin=AI_EDITOR", nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	entries, err := parseModelList(body)
	if err != nil {
		t.Fatalf("parseModelList: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].ID != "claude-sonnet-4.5" || entries[0].MaxInputTokens != 200000 {
		t.Errorf("entry[0] = %+v", entries[0])
	}
	if entries[1].ID != "claude-sonnet-4.5-1m" || entries[1].MaxInputTokens != 1000000 {
		t.Errorf("entry[1] = %+v", entries[1])
	}
}

func TestListModelsURLCarriesProfileArn(t *testing.T) {
	u := ListModelsURL("us-east-1", "arn:aws:codewhisperer:us-east-1:123:profile/abc")
	if !strings.Contains(u, "origin=AI_EDITOR") {
		t.Errorf("url = %q", u)
	}
	if !strings.Contains(u, "profileArn=arn%3Aaws") {
		t.Errorf("url = %q", u)
	}
}

func TestDoUsesConfiguredProxy(t *testing.T) {
	var hosts []string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts = append(hosts, r.URL.Host)
		w.Write([]byte("via-proxy"))
	}))
	defer proxy.Close()

	tokens := &staticTokens{token: "tok-1"}
	c := New(Config{
		MaxRetries:     1,
		BaseRetryDelay: time.Millisecond,
		ProxyURL:       proxy.URL,
	}, tokens)

	body, err := c.Do(context.Background(), http.MethodGet, "http://upstream.invalid/models", nil)
	if err != nil {
		t.Fatalf("Do via proxy: %v", err)
	}
	if string(body) != "via-proxy" {
		t.Errorf("body = %q", body)
	}

	stream, err := c.DoStream(context.Background(), "http://upstream.invalid/stream", []byte(`{}`))
	if err != nil {
		t.Fatalf("DoStream via proxy: %v", err)
	}
	stream.Close()

	if len(hosts) != 2 {
		t.Fatalf("proxied requests = %d, want 2", len(hosts))
	}
	for _, h := range hosts {
		if h != "upstream.invalid" {
			t.Errorf("proxied host = %q, want upstream.invalid", h)
		}
	}
}
