package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Token and device-registration keys in the CLI's auth_kv table, in
// lookup priority order. Social login, current OIDC, then the legacy
// OIDC key.
var (
	cliTokenKeys = []string{
		"kirocli:social:token",
		"kirocli:odic:token",
		"codewhisperer:odic:token",
	}
	cliRegistrationKeys = []string{
		"kirocli:odic:device-registration",
		"codewhisperer:odic:device-registration",
	}
)

// CLIDBOrigin reads and writes the Kiro CLI's SQLite token database.
// The CLI itself rotates tokens in that database, so this origin is
// external: the manager reloads it before refreshing.
type CLIDBOrigin struct {
	Path string

	mu        sync.Mutex
	loadedKey string
}

func (o *CLIDBOrigin) External() bool { return true }

// cliToken is the snake_case token value the CLI stores.
type cliToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ProfileArn   string   `json:"profile_arn,omitempty"`
	Region       string   `json:"region,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	ExpiresAt    string   `json:"expires_at,omitempty"`
}

// Load reads the highest-priority token row plus the device
// registration, remembering which key held the token so Save can write
// it back to the same place.
func (o *CLIDBOrigin) Load(ctx context.Context) (Credentials, error) {
	if _, err := os.Stat(o.Path); err != nil {
		return Credentials{}, fmt.Errorf("cli token database: %w", err)
	}

	db, err := sql.Open("sqlite", o.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("open cli token database: %w", err)
	}
	defer db.Close()

	var creds Credentials
	for _, key := range cliTokenKeys {
		var value string
		err := db.QueryRowContext(ctx, "SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("query cli token: %w", err)
		}

		var tok cliToken
		if err := json.Unmarshal([]byte(value), &tok); err != nil {
			return Credentials{}, fmt.Errorf("parse cli token %s: %w", key, err)
		}
		creds.AccessToken = tok.AccessToken
		creds.RefreshToken = tok.RefreshToken
		creds.ProfileArn = tok.ProfileArn
		// The region in the token row is the SSO region only. The API
		// itself is served from the configured API region regardless.
		creds.SSORegion = tok.Region
		creds.Scopes = tok.Scopes
		if tok.ExpiresAt != "" {
			if t, err := parseTimestamp(tok.ExpiresAt); err == nil {
				creds.ExpiresAt = t
			} else {
				slog.Warn("failed to parse expires_at in cli token", "key", key, "error", err)
			}
		}

		o.mu.Lock()
		o.loadedKey = key
		o.mu.Unlock()
		slog.Debug("credentials loaded from cli token database", "key", key)
		break
	}

	for _, key := range cliRegistrationKeys {
		var value string
		err := db.QueryRowContext(ctx, "SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("query cli device registration: %w", err)
		}

		var reg struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			Region       string `json:"region"`
		}
		if err := json.Unmarshal([]byte(value), &reg); err != nil {
			return Credentials{}, fmt.Errorf("parse cli device registration %s: %w", key, err)
		}
		creds.ClientID = reg.ClientID
		creds.ClientSecret = reg.ClientSecret
		if creds.SSORegion == "" {
			creds.SSORegion = reg.Region
		}
		break
	}

	creds.AuthKind = creds.DetectKind()
	return creds, nil
}

// Save writes rotated tokens back to the row they were loaded from so
// the CLI and the gateway stay in sync. Falls back to any known token
// key when the original row is gone.
func (o *CLIDBOrigin) Save(ctx context.Context, creds Credentials) error {
	db, err := sql.Open("sqlite", o.Path)
	if err != nil {
		return fmt.Errorf("open cli token database: %w", err)
	}
	defer db.Close()

	region := creds.SSORegion
	if region == "" {
		region = creds.Region
	}
	tok := cliToken{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Region:       region,
		Scopes:       creds.Scopes,
	}
	if !creds.ExpiresAt.IsZero() {
		tok.ExpiresAt = creds.ExpiresAt.UTC().Format(time.RFC3339)
	}
	value, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	o.mu.Lock()
	loadedKey := o.loadedKey
	o.mu.Unlock()

	keys := cliTokenKeys
	if loadedKey != "" {
		keys = append([]string{loadedKey}, keys...)
	}
	for _, key := range keys {
		res, err := db.ExecContext(ctx, "UPDATE auth_kv SET value = ? WHERE key = ?", string(value), key)
		if err != nil {
			return fmt.Errorf("update cli token: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Debug("credentials saved to cli token database", "key", key)
			return nil
		}
	}
	return errors.New("no matching token row in cli database")
}
