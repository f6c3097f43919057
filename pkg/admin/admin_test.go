package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/auth/oauthflow"
	"kirohq/gateway/pkg/keys"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
)

type adminFixture struct {
	api      *API
	store    *storage.Store
	sessions *Sessions
	mux      *http.ServeMux
}

// newAdminFixture builds the admin API over a temp database with one
// admin user ("root" / "hunter2") and the route layout the server uses.
func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	store, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "gw.db")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateUser(context.Background(), &storage.User{
		Username:     "root",
		PasswordHash: string(hash),
		IsAdmin:      true,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	cipher, err := secrets.NewCipher("admin-test-key")
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := NewSessions("admin-test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	api := &API{
		Store:    store,
		Pool:     pool.New(store, cipher, pool.Config{Auth: auth.Config{}}),
		Keys:     keys.NewManager(store),
		Cipher:   cipher,
		Flow:     oauthflow.New(oauthflow.Config{Region: "us-east-1"}),
		Sessions: sessions,
		Limiters: middleware.NewRegistry(),
		Region:   "us-east-1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/api/login", api.Login)
	mux.HandleFunc("POST /admin/api/logout", api.Logout)
	protected := http.NewServeMux()
	protected.HandleFunc("GET /admin/api/stats", api.Stats)
	protected.HandleFunc("GET /admin/api/keys", api.ListKeys)
	protected.HandleFunc("POST /admin/api/keys", api.CreateKey)
	protected.HandleFunc("POST /admin/api/keys/{id}/toggle", api.ToggleKey)
	protected.HandleFunc("DELETE /admin/api/keys/{id}", api.DeleteKey)
	protected.HandleFunc("GET /admin/api/keys/{id}/usage", api.KeyUsage)
	protected.HandleFunc("GET /admin/api/accounts", api.ListAccounts)
	protected.HandleFunc("POST /admin/api/accounts/{id}/toggle", api.ToggleAccount)
	protected.HandleFunc("DELETE /admin/api/accounts/{id}", api.DeleteAccount)
	protected.HandleFunc("GET /admin/api/oauth/callback", api.OAuthCallback)
	mux.Handle("/admin/api/", sessions.Middleware(protected))

	return &adminFixture{api: api, store: store, sessions: sessions, mux: mux}
}

// login performs the login handshake and returns the session cookie.
func (f *adminFixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := f.do(t, "POST", "/admin/api/login",
		`{"username":"root","password":"hunter2"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (f *adminFixture) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	f := newAdminFixture(t)

	t.Run("success sets cookie", func(t *testing.T) {
		cookie := f.login(t)
		if cookie.Value == "" || !cookie.HttpOnly {
			t.Errorf("cookie = %+v", cookie)
		}
		claims, err := f.sessions.Verify(cookie.Value)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if claims.Username != "root" || !claims.IsAdmin {
			t.Errorf("claims = %+v", claims)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, "POST", "/admin/api/login",
			`{"username":"root","password":"wrong"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("unknown user gets same message", func(t *testing.T) {
		bad := f.do(t, "POST", "/admin/api/login",
			`{"username":"root","password":"wrong"}`, nil)
		unknown := f.do(t, "POST", "/admin/api/login",
			`{"username":"ghost","password":"wrong"}`, nil)
		if bad.Body.String() != unknown.Body.String() {
			t.Errorf("responses differ: %s vs %s", bad.Body.String(), unknown.Body.String())
		}
	})

	t.Run("non-admin user rejected", func(t *testing.T) {
		hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
		if _, err := f.store.CreateUser(context.Background(), &storage.User{
			Username:     "viewer",
			PasswordHash: string(hash),
			IsAdmin:      false,
		}); err != nil {
			t.Fatal(err)
		}
		rec := f.do(t, "POST", "/admin/api/login",
			`{"username":"viewer","password":"pw"}`, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestSessionMiddleware(t *testing.T) {
	f := newAdminFixture(t)

	t.Run("no cookie", func(t *testing.T) {
		rec := f.do(t, "GET", "/admin/api/stats", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := f.do(t, "GET", "/admin/api/stats", "",
			&http.Cookie{Name: CookieName, Value: "not-a-jwt"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("valid session passes", func(t *testing.T) {
		rec := f.do(t, "GET", "/admin/api/stats", "", f.login(t))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestKeyLifecycle(t *testing.T) {
	f := newAdminFixture(t)
	cookie := f.login(t)

	rec := f.do(t, "POST", "/admin/api/keys",
		`{"name":"ci","rate_limit_rpm":60}`, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Key     string `json:"key"`
		Details struct {
			ID       int64  `json:"id"`
			KeyID    string `json:"key_id"`
			Name     string `json:"name"`
			IsActive bool   `json:"is_active"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !strings.HasPrefix(created.Key, "sk-") {
		t.Errorf("plaintext key = %q", created.Key)
	}
	if created.Details.Name != "ci" || !created.Details.IsActive {
		t.Errorf("details = %+v", created.Details)
	}

	// The plaintext must validate against the stored hash.
	if _, err := f.api.Keys.Validate(context.Background(), created.Key); err != nil {
		t.Errorf("Validate: %v", err)
	}

	rec = f.do(t, "GET", "/admin/api/keys", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "key_hash") {
		t.Error("list response leaks the key hash")
	}

	id := created.Details.ID
	rec = f.do(t, "POST", "/admin/api/keys/"+itoa(id)+"/toggle",
		`{"active":false}`, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	if _, err := f.api.Keys.Validate(context.Background(), created.Key); !errors.Is(err, keys.ErrKeyInactive) {
		t.Errorf("Validate after disable = %v, want ErrKeyInactive", err)
	}

	rec = f.do(t, "GET", "/admin/api/keys/"+itoa(id)+"/usage", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d", rec.Code)
	}

	rec = f.do(t, "DELETE", "/admin/api/keys/"+itoa(id), "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = f.do(t, "DELETE", "/admin/api/keys/"+itoa(id), "", cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", rec.Code)
	}
}

func TestCreateKeyRequiresName(t *testing.T) {
	f := newAdminFixture(t)
	rec := f.do(t, "POST", "/admin/api/keys", `{}`, f.login(t))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	f := newAdminFixture(t)

	if _, err := f.store.InsertAccount(context.Background(), &storage.Account{
		Name:            "acct",
		AuthKind:        storage.AuthKindSimpleRefresh,
		RefreshTokenEnc: "enc",
		IsActive:        true,
	}); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, "GET", "/admin/api/stats", "", f.login(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		AccountsTotal  int `json:"accounts_total"`
		AccountsActive int `json:"accounts_active"`
		APIKeysActive  int `json:"api_keys_active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stats.AccountsTotal != 1 || stats.AccountsActive != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAccountToggle(t *testing.T) {
	f := newAdminFixture(t)
	cookie := f.login(t)

	id, err := f.store.InsertAccount(context.Background(), &storage.Account{
		Name:            "acct",
		AuthKind:        storage.AuthKindSimpleRefresh,
		RefreshTokenEnc: "enc",
		IsActive:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, "POST", "/admin/api/accounts/"+itoa(id)+"/toggle",
		`{"active":false}`, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle status = %d", rec.Code)
	}

	accounts, err := f.store.ListAccounts(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 0 {
		t.Errorf("active accounts = %d, want 0", len(accounts))
	}
}

func TestOAuthCallbackBadState(t *testing.T) {
	f := newAdminFixture(t)
	cookie := f.login(t)

	rec := f.do(t, "GET", "/admin/api/oauth/callback?code=abc&state=unknown", "", cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown state status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "GET", "/admin/api/oauth/callback", "", cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing params status = %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
