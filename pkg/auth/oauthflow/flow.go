// Package oauthflow implements the SSO OIDC authorization-code flow
// with PKCE and dynamic client registration, used to onboard new
// accounts through the admin UI.
package oauthflow

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"kirohq/gateway/pkg/upstream"
)

const (
	defaultStartURL = "https://view.awsapps.com/start"

	// stateTTL bounds how long a started flow waits for its callback.
	stateTTL = 10 * time.Minute
)

var defaultScopes = []string{
	"codewhisperer:completions",
	"codewhisperer:analysis",
	"codewhisperer:conversations",
}

// Flow state errors surfaced to the callback handler.
var (
	ErrUnknownState = errors.New("unknown or already used oauth state")
	ErrFlowExpired  = errors.New("oauth flow expired, start again")
)

// Config holds the flow's knobs. The URL fields override the
// region-derived endpoints.
type Config struct {
	Region   string
	StartURL string
	TTL      time.Duration

	RegisterURL  string
	AuthorizeURL string
	TokenURL     string
}

// Tokens is the result of a completed flow. The client credentials are
// included because OIDC refresh needs them later.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	ClientID     string
	ClientSecret string
}

type pendingAuth struct {
	clientID     string
	clientSecret string
	verifier     string
	redirectURI  string
	expiresAt    time.Time
}

// Flow runs authorization-code flows. Pending state lives in memory
// only; a restart aborts unfinished flows.
type Flow struct {
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	pending map[string]pendingAuth
}

// New creates a flow manager. Zero config fields take defaults.
func New(cfg Config) *Flow {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.StartURL == "" {
		cfg.StartURL = defaultStartURL
	}
	if cfg.TTL == 0 {
		cfg.TTL = stateTTL
	}
	if cfg.RegisterURL == "" {
		cfg.RegisterURL = upstream.OIDCRegisterURL(cfg.Region)
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = upstream.OIDCAuthorizeURL(cfg.Region)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = upstream.OIDCTokenURL(cfg.Region)
	}
	return &Flow{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		pending: make(map[string]pendingAuth),
	}
}

// Start registers a fresh OIDC client, generates the PKCE pair, and
// returns the authorization URL plus the state the callback must echo.
// redirectURI is the gateway's callback URL including its port.
func (f *Flow) Start(ctx context.Context, redirectURI string) (authURL, state string, err error) {
	clientID, clientSecret, err := f.registerClient(ctx)
	if err != nil {
		return "", "", err
	}

	verifier := randomToken()
	challenge := codeChallenge(verifier)
	state = randomToken()

	f.mu.Lock()
	f.pending[state] = pendingAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		verifier:     verifier,
		redirectURI:  redirectURI,
		expiresAt:    time.Now().Add(f.cfg.TTL),
	}
	f.mu.Unlock()

	// The authorize endpoint takes a comma-separated "scopes"
	// parameter, not the space-separated "scope" of standard OAuth.
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"scopes":                {strings.Join(defaultScopes, ",")},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	slog.Info("oauth flow started", "state", state)
	return f.cfg.AuthorizeURL + "?" + params.Encode(), state, nil
}

// registerClient performs dynamic client registration. Public clients
// must register the loopback redirect without a port; the real callback
// port goes only in the authorize request.
func (f *Flow) registerClient(ctx context.Context) (clientID, clientSecret string, err error) {
	body, err := json.Marshal(map[string]any{
		"clientName":   "Kiro Gateway",
		"clientType":   "public",
		"scopes":       defaultScopes,
		"grantTypes":   []string{"authorization_code", "refresh_token"},
		"redirectUris": []string{"http://127.0.0.1/oauth/callback"},
		"issuerUrl":    f.cfg.StartURL,
	})
	if err != nil {
		return "", "", err
	}

	resp, err := f.postJSON(ctx, f.cfg.RegisterURL, body)
	if err != nil {
		return "", "", fmt.Errorf("client registration: %w", err)
	}

	var reg struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.Unmarshal(resp, &reg); err != nil {
		return "", "", fmt.Errorf("decode registration response: %w", err)
	}
	if reg.ClientID == "" || reg.ClientSecret == "" {
		return "", "", errors.New("registration response missing client credentials")
	}
	slog.Info("registered oidc client", "client_id_prefix", prefix(reg.ClientID, 12))
	return reg.ClientID, reg.ClientSecret, nil
}

// Exchange trades the callback's authorization code for tokens. The
// state is single-use: it is consumed whether or not the exchange
// succeeds.
func (f *Flow) Exchange(ctx context.Context, code, state string) (*Tokens, error) {
	f.mu.Lock()
	flow, ok := f.pending[state]
	if ok {
		delete(f.pending, state)
	}
	f.mu.Unlock()

	if !ok {
		return nil, ErrUnknownState
	}
	if time.Now().After(flow.expiresAt) {
		return nil, ErrFlowExpired
	}

	body, err := json.Marshal(map[string]string{
		"clientId":     flow.clientID,
		"clientSecret": flow.clientSecret,
		"grantType":    "authorization_code",
		"redirectUri":  flow.redirectURI,
		"code":         code,
		"codeVerifier": flow.verifier,
	})
	if err != nil {
		return nil, err
	}

	resp, err := f.postJSON(ctx, f.cfg.TokenURL, body)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	var result struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, errors.New("token response missing access token")
	}

	slog.Info("oauth flow completed", "state", state)
	return &Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		ClientID:     flow.clientID,
		ClientSecret: flow.clientSecret,
	}, nil
}

// CleanupExpired drops flows whose callback never arrived and returns
// how many were removed.
func (f *Flow) CleanupExpired() int {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for state, flow := range f.pending {
		if now.After(flow.expiresAt) {
			delete(f.pending, state)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("cleaned up expired oauth flows", "count", removed)
	}
	return removed
}

// PendingCount returns the number of flows awaiting their callback.
func (f *Flow) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Flow) postJSON(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, prefix(string(data), 200))
	}
	return data, nil
}

// randomToken returns a 43-character urlsafe token, which also
// satisfies the PKCE verifier length rule.
func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// codeChallenge is the S256 transform of a PKCE verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
