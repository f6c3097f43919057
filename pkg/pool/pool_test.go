package pool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
)

type fixture struct {
	store  *storage.Store
	cipher *secrets.Cipher
	pool   *Pool
}

func newFixture(t *testing.T, authCfg auth.Config) *fixture {
	t.Helper()
	store, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "gw.db")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := secrets.NewCipher("pool-test-key")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		store:  store,
		cipher: cipher,
		pool:   New(store, cipher, Config{Auth: authCfg}),
	}
}

func (f *fixture) addAccount(t *testing.T, name string, priority int, accessToken string, expiresAt time.Time) int64 {
	t.Helper()
	refreshEnc, _ := f.cipher.EncryptString("refresh-" + name)
	accessEnc, _ := f.cipher.EncryptString(accessToken)
	id, err := f.store.InsertAccount(context.Background(), &storage.Account{
		Name:            name,
		AuthKind:        storage.AuthKindSimpleRefresh,
		RefreshTokenEnc: refreshEnc,
		AccessTokenEnc:  accessEnc,
		ExpiresAt:       expiresAt,
		IsActive:        true,
		Priority:        priority,
	})
	if err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	return id
}

func TestSelectRoundRobinByPriority(t *testing.T) {
	f := newFixture(t, auth.Config{})
	fresh := time.Now().Add(time.Hour)
	high := f.addAccount(t, "high", 10, "tok-high", fresh)
	mid := f.addAccount(t, "mid", 5, "tok-mid", fresh)
	low := f.addAccount(t, "low", 1, "tok-low", fresh)

	want := []int64{high, mid, low, high, mid, low}
	for i, wantID := range want {
		acct, mgr, err := f.pool.Select(context.Background())
		if err != nil {
			t.Fatalf("Select %d: %v", i, err)
		}
		if acct.ID != wantID {
			t.Errorf("selection %d = account %d, want %d", i, acct.ID, wantID)
		}
		if mgr == nil {
			t.Fatal("nil manager")
		}
	}
	if got := f.pool.ManagerCount(); got != 3 {
		t.Errorf("cached managers = %d, want 3", got)
	}
}

func TestSelectSeedsManagerFromStoredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh endpoint should not be called for a still-valid token")
	}))
	defer srv.Close()

	f := newFixture(t, auth.Config{RefreshURL: srv.URL})
	f.addAccount(t, "seeded", 0, "stored-token", time.Now().Add(time.Hour))

	_, mgr, err := f.pool.Select(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tok, err := mgr.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != "stored-token" {
		t.Errorf("token = %q, want the seeded one", tok)
	}
}

func TestSelectEmptyPool(t *testing.T) {
	f := newFixture(t, auth.Config{})
	if _, _, err := f.pool.Select(context.Background()); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("err = %v, want ErrNoAccounts", err)
	}
}

func TestReportErrorDeactivatesAtThreshold(t *testing.T) {
	f := newFixture(t, auth.Config{})
	id := f.addAccount(t, "flaky", 0, "tok", time.Now().Add(time.Hour))
	ctx := context.Background()

	if _, _, err := f.pool.Select(ctx); err != nil {
		t.Fatal(err)
	}
	if f.pool.ManagerCount() != 1 {
		t.Fatal("manager not cached")
	}

	for i := 0; i < DefaultErrorThreshold; i++ {
		f.pool.ReportError(ctx, id, "upstream exploded")
	}

	acct, err := f.store.GetAccount(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.IsActive {
		t.Error("account still active after threshold")
	}
	if acct.LastError != "upstream exploded" {
		t.Errorf("last_error = %q", acct.LastError)
	}
	if f.pool.ManagerCount() != 0 {
		t.Error("manager not evicted on deactivation")
	}
	if _, _, err := f.pool.Select(ctx); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("err = %v, want ErrNoAccounts", err)
	}
}

func TestReportSuccessClearsErrors(t *testing.T) {
	f := newFixture(t, auth.Config{})
	id := f.addAccount(t, "recovers", 0, "tok", time.Now().Add(time.Hour))
	ctx := context.Background()

	f.pool.ReportError(ctx, id, "transient")
	f.pool.ReportSuccess(ctx, id)

	acct, err := f.store.GetAccount(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.ErrorCount != 0 || acct.LastError != "" {
		t.Errorf("error state = %d %q", acct.ErrorCount, acct.LastError)
	}
	if acct.LastSuccessAt.IsZero() {
		t.Error("last_success_at not stamped")
	}
}

func TestRefreshAccountWritesBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "refreshed",
			"refreshToken": "rotated",
			"expiresIn":    3600,
		})
	}))
	defer srv.Close()

	f := newFixture(t, auth.Config{RefreshURL: srv.URL})
	id := f.addAccount(t, "stale", 0, "old", time.Now().Add(-time.Minute))
	ctx := context.Background()

	if err := f.pool.RefreshAccount(ctx, id); err != nil {
		t.Fatalf("RefreshAccount: %v", err)
	}

	origin := &auth.StoreOrigin{Store: f.store, Cipher: f.cipher, AccountID: id}
	creds, err := origin.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "refreshed" || creds.RefreshToken != "rotated" {
		t.Errorf("stored tokens = %q %q", creds.AccessToken, creds.RefreshToken)
	}
	if !creds.ExpiresAt.After(time.Now().Add(30 * time.Minute)) {
		t.Errorf("expiry not advanced: %v", creds.ExpiresAt)
	}

	acct, err := f.store.GetAccount(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.LastSuccessAt.IsZero() {
		t.Error("refresh did not report success")
	}
}

func TestRefreshAccountMissing(t *testing.T) {
	f := newFixture(t, auth.Config{})
	if err := f.pool.RefreshAccount(context.Background(), 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
