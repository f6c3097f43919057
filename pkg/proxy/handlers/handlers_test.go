package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/config"
	"kirohq/gateway/pkg/limits/ratelimit"
	"kirohq/gateway/pkg/models"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/types"
	"kirohq/gateway/pkg/recovery"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
	"kirohq/gateway/pkg/tokens"
	"kirohq/gateway/pkg/upstream"
	"kirohq/gateway/pkg/usage"
)

// fixture wires real components against a fake upstream.
type fixture struct {
	deps  *Deps
	store *storage.Store
}

// newFixture builds deps over a temp database. upstreamBody is what
// the fake upstream answers with; withAccount seeds one healthy
// account.
func newFixture(t *testing.T, upstreamBody string, withAccount bool) *fixture {
	t.Helper()

	store, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "gw.db")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := secrets.NewCipher("handler-test-key")
	if err != nil {
		t.Fatal(err)
	}
	accounts := pool.New(store, cipher, pool.Config{Auth: auth.Config{}})

	if withAccount {
		refreshEnc, _ := cipher.EncryptString("refresh-token")
		accessEnc, _ := cipher.EncryptString("access-token")
		if _, err := store.InsertAccount(context.Background(), &storage.Account{
			Name:            "primary",
			AuthKind:        storage.AuthKindSimpleRefresh,
			RefreshTokenEnc: refreshEnc,
			AccessTokenEnc:  accessEnc,
			ExpiresAt:       time.Now().Add(time.Hour),
			IsActive:        true,
		}); err != nil {
			t.Fatalf("InsertAccount: %v", err)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(upstreamBody))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Streaming.FirstTokenTimeout = 2 * time.Second
	cfg.Streaming.FirstTokenMaxRetries = 1

	catalog := models.NewCatalog(time.Hour)
	catalog.UseFallback()

	deps := &Deps{
		Config:       func() *config.Config { return cfg },
		Resolver:     models.NewResolver(catalog, cfg.Models.Hidden, cfg.Models.Aliases, cfg.Models.HiddenFromList),
		Pool:         accounts,
		Gate:         ratelimit.NewGate(ratelimit.GateConfig{}),
		Upstream:     upstream.Config{MaxRetries: 1, BaseRetryDelay: time.Millisecond},
		AssistantURL: func(string) string { return server.URL },
		Estimator:    tokens.NewCharEstimator(tokens.DefaultConfig()),
		Recovery:     recovery.NewStore(true),
		Usage:        usage.NewRecorder(store, 100),
		Version:      "test",
		StartedAt:    time.Now(),
	}
	return &fixture{deps: deps, store: store}
}

const happyUpstream = `{"content":"hello"}{"content":" there"}{"contextUsagePercentage":1.0}`

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := postJSON(t, f.deps.ChatCompletions, "/v1/chat/completions",
		`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q", resp.Object)
	}
	if resp.Model != "claude-sonnet-4.5" {
		t.Errorf("model not echoed: %q", resp.Model)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hello there" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("usage not accounted")
	}

	if f.deps.Usage.PendingCount() != 1 {
		t.Errorf("pending usage rows = %d, want 1", f.deps.Usage.PendingCount())
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := postJSON(t, f.deps.ChatCompletions, "/v1/chat/completions",
		`{"model":"claude-sonnet-4.5","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"object":"chat.completion.chunk"`) {
		t.Errorf("no chunk frames in %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("missing [DONE] terminator: %q", body)
	}
}

func TestChatCompletionsValidation(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"claude-sonnet-4.5","messages":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, f.deps.ChatCompletions, "/v1/chat/completions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "invalid_request_error") {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestChatCompletionsNoAccounts(t *testing.T) {
	f := newFixture(t, happyUpstream, false)

	rec := postJSON(t, f.deps.ChatCompletions, "/v1/chat/completions",
		`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "service_unavailable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMessagesNonStreaming(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := postJSON(t, f.deps.Messages, "/v1/messages",
		`{"model":"claude-sonnet-4.5","max_tokens":1024,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Type != "message" || resp.Role != "assistant" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text != "hello there" {
		t.Errorf("content = %+v", resp.Content)
	}
}

func TestMessagesValidation(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := postJSON(t, f.deps.Messages, "/v1/messages",
		`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing max_tokens status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Errorf("not an anthropic envelope: %s", rec.Body.String())
	}
}

func TestMessagesStreaming(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := postJSON(t, f.deps.Messages, "/v1/messages",
		`{"model":"claude-sonnet-4.5","max_tokens":1024,"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	for _, event := range []string{"event: message_start", "event: content_block_delta", "event: message_stop"} {
		if !strings.Contains(body, event) {
			t.Errorf("stream missing %q:\n%s", event, body)
		}
	}
}

func TestListModels(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	req := httptest.NewRequest("GET", "/v1/models", nil)
	rec := httptest.NewRecorder()
	f.deps.ListModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list struct {
		Object string `json:"object"`
		Data   []struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if list.Object != "list" || len(list.Data) == 0 {
		t.Fatalf("list = %+v", list)
	}
	for _, m := range list.Data {
		if m.Object != "model" {
			t.Errorf("entry %q object = %q", m.ID, m.Object)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, happyUpstream, true)

	rec := httptest.NewRecorder()
	f.deps.Health(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

// Without a context-usage report from the upstream, prompt accounting
// falls back to a direct re-count of the request, not the payload-level
// pre-request estimate.
func TestChatCompletionsUsageFallback(t *testing.T) {
	f := newFixture(t, `{"content":"hello"}`, true)

	rec := postJSON(t, f.deps.ChatCompletions, "/v1/chat/completions",
		`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	internalID := f.deps.Resolver.Resolve("claude-sonnet-4.5").InternalID
	wantPrompt := f.deps.Estimator.CountConversation(
		[]types.UnifiedMessage{{Role: types.RoleUser, Content: "hi"}}, "", nil, internalID)
	if resp.Usage.PromptTokens != wantPrompt {
		t.Errorf("prompt_tokens = %d, want %d (request re-count)", resp.Usage.PromptTokens, wantPrompt)
	}
	if resp.Usage.CompletionTokens == 0 {
		t.Error("completion tokens not counted")
	}
	if resp.Usage.TotalTokens != wantPrompt+resp.Usage.CompletionTokens {
		t.Errorf("total_tokens = %d, want %d", resp.Usage.TotalTokens, wantPrompt+resp.Usage.CompletionTokens)
	}
}
