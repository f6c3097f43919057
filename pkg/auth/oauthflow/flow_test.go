package oauthflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// fakeOIDC serves the register and token endpoints and records what the
// flow sent.
type fakeOIDC struct {
	srv      *httptest.Server
	register map[string]any
	exchange map[string]any
}

func newFakeOIDC(t *testing.T) *fakeOIDC {
	t.Helper()
	f := &fakeOIDC{}
	mux := http.NewServeMux()
	mux.HandleFunc("/client/register", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.register); err != nil {
			t.Fatalf("decode register: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"clientId": "cid-1", "clientSecret": "csec-1"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.exchange); err != nil {
			t.Fatalf("decode token request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "at-1",
			"refreshToken": "rt-1",
			"expiresIn":    28800,
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOIDC) config() Config {
	return Config{
		RegisterURL:  f.srv.URL + "/client/register",
		AuthorizeURL: f.srv.URL + "/authorize",
		TokenURL:     f.srv.URL + "/token",
	}
}

func TestStartAndExchange(t *testing.T) {
	oidc := newFakeOIDC(t)
	flow := New(oidc.config())
	ctx := context.Background()

	redirect := "http://127.0.0.1:8080/admin/oauth/callback"
	authURL, state, err := flow.Start(ctx, redirect)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if flow.PendingCount() != 1 {
		t.Errorf("pending = %d", flow.PendingCount())
	}

	// Registration uses the portless loopback redirect.
	if uris, ok := oidc.register["redirectUris"].([]any); !ok || uris[0] != "http://127.0.0.1/oauth/callback" {
		t.Errorf("registered redirectUris = %v", oidc.register["redirectUris"])
	}
	if oidc.register["clientType"] != "public" {
		t.Errorf("clientType = %v", oidc.register["clientType"])
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	q := parsed.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != "cid-1" {
		t.Errorf("authorize params = %v", q)
	}
	if q.Get("redirect_uri") != redirect {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("state") != state {
		t.Errorf("state mismatch: %q vs %q", q.Get("state"), state)
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("challenge method = %q", q.Get("code_challenge_method"))
	}

	tokens, err := flow.Exchange(ctx, "auth-code", state)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tokens.AccessToken != "at-1" || tokens.RefreshToken != "rt-1" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens.ClientID != "cid-1" || tokens.ClientSecret != "csec-1" {
		t.Errorf("client credentials not carried through: %+v", tokens)
	}
	if flow.PendingCount() != 0 {
		t.Error("state not consumed")
	}

	// The verifier sent to the token endpoint must hash to the
	// challenge from the authorize URL.
	verifier, _ := oidc.exchange["codeVerifier"].(string)
	sum := sha256.Sum256([]byte(verifier))
	if got := base64.RawURLEncoding.EncodeToString(sum[:]); got != q.Get("code_challenge") {
		t.Errorf("challenge %q does not match verifier hash %q", q.Get("code_challenge"), got)
	}
	if oidc.exchange["grantType"] != "authorization_code" {
		t.Errorf("grantType = %v", oidc.exchange["grantType"])
	}
	if oidc.exchange["redirectUri"] != redirect {
		t.Errorf("redirectUri = %v", oidc.exchange["redirectUri"])
	}
}

func TestExchangeUnknownState(t *testing.T) {
	flow := New(newFakeOIDC(t).config())
	if _, err := flow.Exchange(context.Background(), "code", "never-issued"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("err = %v, want ErrUnknownState", err)
	}
}

func TestExchangeExpiredFlow(t *testing.T) {
	cfg := newFakeOIDC(t).config()
	cfg.TTL = -time.Minute
	flow := New(cfg)

	_, state, err := flow.Start(context.Background(), "http://127.0.0.1:9/cb")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Exchange(context.Background(), "code", state); !errors.Is(err, ErrFlowExpired) {
		t.Errorf("err = %v, want ErrFlowExpired", err)
	}
	// A second attempt finds the state already consumed.
	if _, err := flow.Exchange(context.Background(), "code", state); !errors.Is(err, ErrUnknownState) {
		t.Errorf("err = %v, want ErrUnknownState", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	cfg := newFakeOIDC(t).config()
	cfg.TTL = -time.Minute
	flow := New(cfg)

	for i := 0; i < 3; i++ {
		if _, _, err := flow.Start(context.Background(), "http://127.0.0.1:9/cb"); err != nil {
			t.Fatal(err)
		}
	}
	if removed := flow.CleanupExpired(); removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if flow.PendingCount() != 0 {
		t.Errorf("pending = %d", flow.PendingCount())
	}
}
