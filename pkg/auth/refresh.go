package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kirohq/gateway/pkg/storage"
	"kirohq/gateway/pkg/upstream"
)

// expiryBuffer is shaved off the reported expiresIn so a token is never
// presented in its final seconds of validity.
const expiryBuffer = 60 * time.Second

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

// refreshSimple refreshes against the desktop auth endpoint:
// POST {"refreshToken": ...} as JSON.
func (m *Manager) refreshSimple(ctx context.Context) error {
	if m.creds.RefreshToken == "" {
		return errors.New("refresh token is not set")
	}

	url := m.cfg.RefreshURL
	if url == "" {
		url = upstream.RefreshURL(m.creds.Region)
	}

	slog.Info("refreshing upstream token", "kind", storage.AuthKindSimpleRefresh)
	body, err := json.Marshal(map[string]string{"refreshToken": m.creds.RefreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "KiroIDE-0.7.45-"+m.cfg.Fingerprint)

	result, err := m.doRefresh(req, storage.AuthKindSimpleRefresh)
	if err != nil {
		return err
	}

	m.applyRefresh(result)
	if result.ProfileArn != "" {
		m.creds.ProfileArn = result.ProfileArn
	}
	slog.Info("upstream token refreshed", "kind", storage.AuthKindSimpleRefresh, "expires_at", m.creds.ExpiresAt)
	return nil
}

// refreshOIDC refreshes against the SSO OIDC CreateToken API. The API
// takes a JSON body with camelCase parameter names, not the
// form-encoded shape standard OAuth token endpoints use.
func (m *Manager) refreshOIDC(ctx context.Context) error {
	switch {
	case m.creds.RefreshToken == "":
		return errors.New("refresh token is not set")
	case m.creds.ClientID == "":
		return errors.New("client id is not set")
	case m.creds.ClientSecret == "":
		return errors.New("client secret is not set")
	}

	url := m.cfg.OIDCTokenURL
	if url == "" {
		region := m.creds.SSORegion
		if region == "" {
			region = m.creds.Region
		}
		url = upstream.OIDCTokenURL(region)
	}

	slog.Info("refreshing upstream token", "kind", storage.AuthKindOIDC)
	body, err := json.Marshal(map[string]string{
		"grantType":    "refresh_token",
		"clientId":     m.creds.ClientID,
		"clientSecret": m.creds.ClientSecret,
		"refreshToken": m.creds.RefreshToken,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	result, err := m.doRefresh(req, storage.AuthKindOIDC)
	if err != nil {
		return err
	}

	m.applyRefresh(result)
	slog.Info("upstream token refreshed", "kind", storage.AuthKindOIDC, "expires_at", m.creds.ExpiresAt)
	return nil
}

func (m *Manager) doRefresh(req *http.Request, kind string) (*refreshResponse, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &detail) == nil && detail.Error != "" {
			slog.Error("token refresh rejected", "kind", kind,
				"status", resp.StatusCode, "error", detail.Error, "description", detail.Description)
		} else {
			slog.Error("token refresh rejected", "kind", kind, "status", resp.StatusCode)
		}
		return nil, &RefreshError{Kind: kind, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result refreshResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, errors.New("refresh response does not contain an access token")
	}
	return &result, nil
}

func (m *Manager) applyRefresh(result *refreshResponse) {
	m.creds.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		m.creds.RefreshToken = result.RefreshToken
	}
	expiresIn := result.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	m.creds.ExpiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - expiryBuffer)
}
