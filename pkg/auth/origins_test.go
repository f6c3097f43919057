package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
)

func TestFileOriginRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	seed := map[string]any{
		"refreshToken": "r1",
		"accessToken":  "a1",
		"profileArn":   "arn:p1",
		"region":       "eu-west-1",
		"expiresAt":    "2026-01-02T15:04:05Z",
		"vendor":       "kiro-desktop",
	}
	raw, _ := json.Marshal(seed)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	origin := &FileOrigin{Path: path}
	creds, err := origin.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.RefreshToken != "r1" || creds.AccessToken != "a1" {
		t.Errorf("tokens = %q %q", creds.RefreshToken, creds.AccessToken)
	}
	if creds.Region != "eu-west-1" {
		t.Errorf("region = %q", creds.Region)
	}
	if creds.AuthKind != storage.AuthKindSimpleRefresh {
		t.Errorf("kind = %q", creds.AuthKind)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if !creds.ExpiresAt.Equal(want) {
		t.Errorf("expires = %v", creds.ExpiresAt)
	}

	creds.AccessToken = "a2"
	creds.RefreshToken = "r2"
	creds.ExpiresAt = want.Add(time.Hour)
	if err := origin.Save(context.Background(), creds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var after map[string]any
	raw, _ = os.ReadFile(path)
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatal(err)
	}
	if after["accessToken"] != "a2" || after["refreshToken"] != "r2" {
		t.Errorf("saved tokens = %v %v", after["accessToken"], after["refreshToken"])
	}
	if after["vendor"] != "kiro-desktop" {
		t.Error("unrelated field dropped on save")
	}
}

func TestFileOriginEnterpriseRegistration(t *testing.T) {
	dir := t.TempDir()
	regDir := filepath.Join(dir, "cache")
	if err := os.Mkdir(regDir, 0o700); err != nil {
		t.Fatal(err)
	}

	reg, _ := json.Marshal(map[string]string{"clientId": "cid", "clientSecret": "csec"})
	if err := os.WriteFile(filepath.Join(regDir, "abc123.json"), reg, 0o600); err != nil {
		t.Fatal(err)
	}
	credsFile := filepath.Join(dir, "creds.json")
	seed, _ := json.Marshal(map[string]string{"refreshToken": "r1", "clientIdHash": "abc123"})
	if err := os.WriteFile(credsFile, seed, 0o600); err != nil {
		t.Fatal(err)
	}

	origin := &FileOrigin{Path: credsFile, DeviceRegistrationDir: regDir}
	creds, err := origin.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.ClientID != "cid" || creds.ClientSecret != "csec" {
		t.Errorf("registration = %q %q", creds.ClientID, creds.ClientSecret)
	}
	if creds.AuthKind != storage.AuthKindOIDC {
		t.Errorf("kind = %q", creds.AuthKind)
	}
}

func seedCLIDB(t *testing.T, rows map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.sqlite3")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE auth_kv (key TEXT PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatal(err)
	}
	for key, value := range rows {
		raw, _ := json.Marshal(value)
		if _, err := db.Exec("INSERT INTO auth_kv (key, value) VALUES (?, ?)", key, string(raw)); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestCLIDBOriginLoadsOIDC(t *testing.T) {
	path := seedCLIDB(t, map[string]any{
		"kirocli:odic:token": map[string]any{
			"access_token":  "a1",
			"refresh_token": "r1",
			"region":        "ap-southeast-1",
			"scopes":        []string{"codewhisperer:completions"},
			"expires_at":    "2026-01-02T15:04:05Z",
		},
		"kirocli:odic:device-registration": map[string]string{
			"client_id":     "cid",
			"client_secret": "csec",
		},
	})

	origin := &CLIDBOrigin{Path: path}
	creds, err := origin.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.AccessToken != "a1" || creds.RefreshToken != "r1" {
		t.Errorf("tokens = %q %q", creds.AccessToken, creds.RefreshToken)
	}
	if creds.SSORegion != "ap-southeast-1" {
		t.Errorf("sso region = %q", creds.SSORegion)
	}
	if creds.ClientID != "cid" || creds.ClientSecret != "csec" {
		t.Errorf("registration = %q %q", creds.ClientID, creds.ClientSecret)
	}
	if creds.AuthKind != storage.AuthKindOIDC {
		t.Errorf("kind = %q", creds.AuthKind)
	}
}

func TestCLIDBOriginPrefersSocialToken(t *testing.T) {
	path := seedCLIDB(t, map[string]any{
		"kirocli:social:token": map[string]string{"access_token": "social", "refresh_token": "rs"},
		"kirocli:odic:token":   map[string]string{"access_token": "oidc", "refresh_token": "ro"},
	})

	origin := &CLIDBOrigin{Path: path}
	creds, err := origin.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "social" {
		t.Errorf("access token = %q, want the social row", creds.AccessToken)
	}
}

func TestCLIDBOriginSaveWritesBackToLoadedKey(t *testing.T) {
	path := seedCLIDB(t, map[string]any{
		"codewhisperer:odic:token": map[string]string{"access_token": "a1", "refresh_token": "r1", "region": "us-west-2"},
	})

	origin := &CLIDBOrigin{Path: path}
	creds, err := origin.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	creds.AccessToken = "a2"
	creds.RefreshToken = "r2"
	creds.ExpiresAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := origin.Save(context.Background(), creds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var value string
	if err := db.QueryRow("SELECT value FROM auth_kv WHERE key = ?", "codewhisperer:odic:token").Scan(&value); err != nil {
		t.Fatal(err)
	}
	var tok cliToken
	if err := json.Unmarshal([]byte(value), &tok); err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "a2" || tok.RefreshToken != "r2" {
		t.Errorf("saved tokens = %q %q", tok.AccessToken, tok.RefreshToken)
	}
	if tok.Region != "us-west-2" {
		t.Errorf("saved region = %q", tok.Region)
	}
	if tok.ExpiresAt != "2026-03-04T05:06:07Z" {
		t.Errorf("saved expires_at = %q", tok.ExpiresAt)
	}
}

func TestStoreOriginRoundTrip(t *testing.T) {
	store, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "gw.db")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := secrets.NewCipher("test-master-key")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	refreshEnc, _ := cipher.EncryptString("r1")
	accessEnc, _ := cipher.EncryptString("a1")
	expires := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	id, err := store.InsertAccount(ctx, &storage.Account{
		Name:            "acct",
		AuthKind:        storage.AuthKindSimpleRefresh,
		RefreshTokenEnc: refreshEnc,
		AccessTokenEnc:  accessEnc,
		Region:          "us-east-1",
		ExpiresAt:       expires,
		IsActive:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	origin := &StoreOrigin{Store: store, Cipher: cipher, AccountID: id}
	creds, err := origin.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.RefreshToken != "r1" || creds.AccessToken != "a1" {
		t.Errorf("decrypted tokens = %q %q", creds.RefreshToken, creds.AccessToken)
	}
	if !creds.ExpiresAt.Equal(expires) {
		t.Errorf("expires = %v, want %v", creds.ExpiresAt, expires)
	}

	creds.RefreshToken = "r2"
	creds.AccessToken = "a2"
	creds.ExpiresAt = expires.Add(time.Hour)
	if err := origin.Save(ctx, creds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := origin.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.RefreshToken != "r2" || reloaded.AccessToken != "a2" {
		t.Errorf("reloaded tokens = %q %q", reloaded.RefreshToken, reloaded.AccessToken)
	}
}
