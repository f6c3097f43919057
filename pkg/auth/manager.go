package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"kirohq/gateway/pkg/storage"
)

// RefreshThreshold is how close to expiry a token may get before
// AccessToken refreshes it proactively.
const RefreshThreshold = 600 * time.Second

// ErrAuthRequired means the refresh token is no longer accepted and the
// cached access token has expired; the account must re-login.
var ErrAuthRequired = errors.New("authentication required: token expired and refresh failed, re-login to restore credentials")

// RefreshError is a non-200 response from a token refresh endpoint.
type RefreshError struct {
	Kind       string
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("token refresh failed (kind=%s, status=%d): %s", e.Kind, e.StatusCode, body)
}

// Config holds the manager's knobs. Zero values take defaults; the URL
// fields override the region-derived endpoints.
type Config struct {
	RefreshThreshold time.Duration
	HTTPTimeout      time.Duration
	Fingerprint      string
	RefreshURL       string
	OIDCTokenURL     string

	// ProxyURL routes refresh calls through an outbound HTTP proxy.
	// Empty uses the environment's proxy settings.
	ProxyURL string
}

// Manager owns one account's credentials and implements
// upstream.TokenSource. All state is guarded by a single mutex so
// concurrent callers never race a refresh.
type Manager struct {
	cfg    Config
	client *http.Client
	origin Origin

	mu    sync.Mutex
	creds Credentials
}

// NewManager creates a manager seeded with creds. origin may be nil for
// purely in-memory accounts.
func NewManager(cfg Config, creds Credentials, origin Origin) *Manager {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = RefreshThreshold
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = machineFingerprint()
	}
	if creds.Region == "" {
		creds.Region = "us-east-1"
	}
	if creds.AuthKind == "" {
		creds.AuthKind = creds.DetectKind()
	}
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			slog.Warn("invalid proxy url, using environment proxy settings",
				"proxy_url", cfg.ProxyURL, "error", err)
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport},
		origin: origin,
		creds:  creds,
	}
}

// LoadManager creates a manager whose credentials come from the origin.
func LoadManager(ctx context.Context, cfg Config, origin Origin) (*Manager, error) {
	creds, err := origin.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return NewManager(cfg, creds, origin), nil
}

// AccessToken returns a valid access token, refreshing first when the
// cached one is missing or expiring soon. When the refresh fails but
// the cached token has not actually expired yet, the cached token is
// returned so a transient refresh outage does not take the account
// down.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds.AccessToken != "" && !m.creds.ExpiringSoon(m.cfg.RefreshThreshold) {
		return m.creds.AccessToken, nil
	}

	// Another local process may have rotated the tokens already.
	if m.origin != nil && m.origin.External() {
		m.reloadLocked(ctx)
		if m.creds.AccessToken != "" && !m.creds.ExpiringSoon(m.cfg.RefreshThreshold) {
			slog.Debug("external origin provided a fresh token, refresh skipped")
			return m.creds.AccessToken, nil
		}
	}

	if err := m.refreshLocked(ctx); err != nil {
		if m.creds.AccessToken != "" && !m.creds.Expired() {
			slog.Warn("token refresh failed, serving cached access token until expiry",
				"kind", m.creds.AuthKind, "expires_at", m.creds.ExpiresAt, "error", err)
			return m.creds.AccessToken, nil
		}
		return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	if m.creds.AccessToken == "" {
		return "", errors.New("refresh succeeded but no access token is set")
	}
	return m.creds.AccessToken, nil
}

// ForceRefresh refreshes unconditionally. Called when the upstream
// rejects a token with 403 that local expiry tracking still considered
// valid.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// ProfileArn returns the account's profile ARN, which a refresh may
// rotate.
func (m *Manager) ProfileArn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.ProfileArn
}

// Region returns the account's API region.
func (m *Manager) Region() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Region
}

// Snapshot returns a copy of the current credentials.
func (m *Manager) Snapshot() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

func (m *Manager) reloadLocked(ctx context.Context) {
	fresh, err := m.origin.Load(ctx)
	if err != nil {
		slog.Warn("failed to reload credentials from origin", "error", err)
		return
	}
	m.creds.merge(fresh)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.creds.AuthKind == "" {
		m.creds.AuthKind = m.creds.DetectKind()
	}

	var err error
	if m.creds.AuthKind == storage.AuthKindOIDC {
		err = m.refreshOIDC(ctx)
		// 400 usually means another local process rotated the refresh
		// token after we loaded it. Reload the origin and retry once.
		var rerr *RefreshError
		if errors.As(err, &rerr) && rerr.StatusCode == http.StatusBadRequest &&
			m.origin != nil && m.origin.External() {
			slog.Warn("OIDC refresh rejected with 400, reloading origin and retrying")
			m.reloadLocked(ctx)
			err = m.refreshOIDC(ctx)
		}
	} else {
		err = m.refreshSimple(ctx)
	}
	if err != nil {
		return err
	}

	m.saveLocked(ctx)
	return nil
}

func (m *Manager) saveLocked(ctx context.Context) {
	if m.origin == nil {
		return
	}
	if err := m.origin.Save(ctx, m.creds); err != nil {
		slog.Error("failed to persist refreshed credentials", "kind", m.creds.AuthKind, "error", err)
	}
}

// machineFingerprint derives a stable per-host identifier for the
// refresh endpoint's User-Agent.
func machineFingerprint() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	sum := sha256.Sum256([]byte(host))
	return hex.EncodeToString(sum[:16])
}
