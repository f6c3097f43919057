package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileOrigin is a desktop-style JSON credentials file. Saving rewrites
// only the token fields and preserves everything else in the file.
type FileOrigin struct {
	Path string

	// DeviceRegistrationDir is where enterprise device registrations
	// live, one JSON file per clientIdHash. Empty means
	// ~/.aws/sso/cache.
	DeviceRegistrationDir string
}

func (o *FileOrigin) External() bool { return false }

// Load reads the credentials file. Field names follow the desktop
// client: refreshToken, accessToken, profileArn, region, expiresAt,
// and for OIDC clientId/clientSecret either inline or referenced via
// clientIdHash.
func (o *FileOrigin) Load(ctx context.Context) (Credentials, error) {
	raw, err := os.ReadFile(o.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var data struct {
		RefreshToken string `json:"refreshToken"`
		AccessToken  string `json:"accessToken"`
		ProfileArn   string `json:"profileArn"`
		Region       string `json:"region"`
		ExpiresAt    string `json:"expiresAt"`
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
		ClientIDHash string `json:"clientIdHash"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file: %w", err)
	}

	creds := Credentials{
		RefreshToken: data.RefreshToken,
		AccessToken:  data.AccessToken,
		ProfileArn:   data.ProfileArn,
		Region:       data.Region,
		ClientID:     data.ClientID,
		ClientSecret: data.ClientSecret,
	}
	if data.ExpiresAt != "" {
		t, err := parseTimestamp(data.ExpiresAt)
		if err != nil {
			slog.Warn("failed to parse expiresAt in credentials file", "path", o.Path, "error", err)
		} else {
			creds.ExpiresAt = t
		}
	}

	// Enterprise desktop installs keep the OIDC device registration in
	// a separate cache file named by its hash.
	if data.ClientIDHash != "" && creds.ClientID == "" {
		if err := o.loadDeviceRegistration(data.ClientIDHash, &creds); err != nil {
			slog.Warn("failed to load enterprise device registration", "hash", data.ClientIDHash, "error", err)
		}
	}

	creds.AuthKind = creds.DetectKind()
	slog.Info("credentials loaded from file", "path", o.Path, "kind", creds.AuthKind)
	return creds, nil
}

func (o *FileOrigin) loadDeviceRegistration(hash string, creds *Credentials) error {
	dir := o.DeviceRegistrationDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".aws", "sso", "cache")
	}

	raw, err := os.ReadFile(filepath.Join(dir, hash+".json"))
	if err != nil {
		return err
	}
	var reg struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.Unmarshal(raw, &reg); err != nil {
		return err
	}
	if reg.ClientID != "" {
		creds.ClientID = reg.ClientID
	}
	if reg.ClientSecret != "" {
		creds.ClientSecret = reg.ClientSecret
	}
	return nil
}

// Save updates the token fields in place, keeping any fields the file
// carries that the gateway does not understand.
func (o *FileOrigin) Save(ctx context.Context, creds Credentials) error {
	existing := map[string]any{}
	if raw, err := os.ReadFile(o.Path); err == nil {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("parse existing credentials file: %w", err)
		}
	}

	existing["accessToken"] = creds.AccessToken
	existing["refreshToken"] = creds.RefreshToken
	if !creds.ExpiresAt.IsZero() {
		existing["expiresAt"] = creds.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if creds.ProfileArn != "" {
		existing["profileArn"] = creds.ProfileArn
	}

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.Path, out, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	slog.Debug("credentials saved to file", "path", o.Path)
	return nil
}

// parseTimestamp accepts RFC3339 with or without fractional seconds and
// a trailing Z.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z0700", s)
}
