package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kirohq/gateway/pkg/auth/oauthflow"
	"kirohq/gateway/pkg/keys"
	"kirohq/gateway/pkg/pool"
	"kirohq/gateway/pkg/proxy/middleware"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
	"kirohq/gateway/pkg/usage"
)

// API is the admin JSON surface: login, dashboard stats, API-key CRUD,
// account management and OAuth onboarding.
type API struct {
	Store    *storage.Store
	Pool     *pool.Pool
	Keys     *keys.Manager
	Cipher   *secrets.Cipher
	Flow     *oauthflow.Flow
	Sessions *Sessions

	// Limiters, when set, drops cached per-key limiters on key deletion.
	Limiters *middleware.Registry

	// Region is stamped on accounts onboarded through OAuth.
	Region string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write admin response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// Login handles POST /admin/api/login. Failed attempts get a uniform
// message so usernames cannot be probed.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := a.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !user.IsAdmin {
		writeError(w, http.StatusForbidden, "not an admin account")
		return
	}

	token, err := a.Sessions.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	a.Sessions.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"username": user.Username,
		"is_admin": user.IsAdmin,
	})
}

// Logout handles POST /admin/api/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /admin/api/stats: the dashboard aggregate.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := a.Store.ListAccounts(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load accounts")
		return
	}
	active := 0
	for _, acct := range accounts {
		if acct.IsActive {
			active++
		}
	}

	keyCount, err := a.Store.CountActiveAPIKeys(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count keys")
		return
	}

	byModel, err := a.Store.UsageByModel(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	type modelRow struct {
		Model        string  `json:"model"`
		Requests     int64   `json:"requests"`
		TotalTokens  int64   `json:"total_tokens"`
		EstimatedUSD float64 `json:"estimated_usd"`
	}
	modelRows := make([]modelRow, 0, len(byModel))
	for _, m := range byModel {
		row := modelRow{
			Model:       m.Model,
			Requests:    m.Requests,
			TotalTokens: m.InputTokens + m.OutputTokens,
		}
		if cost, ok := usage.EstimateCost(m.Model, int(m.InputTokens), int(m.OutputTokens)); ok {
			row.EstimatedUSD = cost.Total
		}
		modelRows = append(modelRows, row)
	}

	recent, err := a.Store.RecentUsage(ctx, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load recent usage")
		return
	}
	type usageRow struct {
		Model        string    `json:"model"`
		Endpoint     string    `json:"endpoint"`
		InputTokens  int       `json:"input_tokens"`
		OutputTokens int       `json:"output_tokens"`
		StatusCode   int       `json:"status_code"`
		DurationMS   int64     `json:"duration_ms"`
		Timestamp    time.Time `json:"timestamp"`
	}
	recentRows := make([]usageRow, 0, len(recent))
	for _, u := range recent {
		recentRows = append(recentRows, usageRow{
			Model:        u.Model,
			Endpoint:     u.Endpoint,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			StatusCode:   u.StatusCode,
			DurationMS:   u.DurationMS,
			Timestamp:    u.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts_total":  len(accounts),
		"accounts_active": active,
		"managers_cached": a.Pool.ManagerCount(),
		"api_keys_active": keyCount,
		"usage_by_model":  modelRows,
		"recent_usage":    recentRows,
	})
}

// keyView is an API key with the hash stripped.
type keyView struct {
	ID                 int64      `json:"id"`
	KeyID              string     `json:"key_id"`
	Name               string     `json:"name"`
	IsActive           bool       `json:"is_active"`
	RateLimitRPM       int        `json:"rate_limit_rpm,omitempty"`
	RateLimitTPM       int        `json:"rate_limit_tpm,omitempty"`
	UsageLimitTokens   int64      `json:"usage_limit_tokens,omitempty"`
	UsageLimitRequests int64      `json:"usage_limit_requests,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
}

func viewKey(k *storage.APIKey) keyView {
	v := keyView{
		ID:                 k.ID,
		KeyID:              k.KeyID,
		Name:               k.Name,
		IsActive:           k.IsActive,
		RateLimitRPM:       k.RateLimitRPM,
		RateLimitTPM:       k.RateLimitTPM,
		UsageLimitTokens:   k.UsageLimitTokens,
		UsageLimitRequests: k.UsageLimitRequests,
		CreatedAt:          k.CreatedAt,
	}
	if !k.LastUsedAt.IsZero() {
		t := k.LastUsedAt
		v.LastUsedAt = &t
	}
	return v
}

// ListKeys handles GET /admin/api/keys.
func (a *API) ListKeys(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	views := make([]keyView, 0, len(list))
	for _, k := range list {
		views = append(views, viewKey(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": views})
}

// CreateKey handles POST /admin/api/keys. The plaintext key appears in
// this response only and is never retrievable again.
func (a *API) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string `json:"name"`
		RateLimitRPM       int    `json:"rate_limit_rpm"`
		RateLimitTPM       int    `json:"rate_limit_tpm"`
		UsageLimitTokens   int64  `json:"usage_limit_tokens"`
		UsageLimitRequests int64  `json:"usage_limit_requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	claims := SessionClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	plaintext, key, err := a.Keys.Create(r.Context(), keys.CreateParams{
		UserID:             claims.UserID,
		Name:               req.Name,
		RateLimitRPM:       req.RateLimitRPM,
		RateLimitTPM:       req.RateLimitTPM,
		UsageLimitTokens:   req.UsageLimitTokens,
		UsageLimitRequests: req.UsageLimitRequests,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create key")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     plaintext,
		"details": viewKey(key),
	})
}

// ToggleKey handles POST /admin/api/keys/{id}/toggle.
func (a *API) ToggleKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := a.Store.SetAPIKeyActive(r.Context(), id, req.Active); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteKey handles DELETE /admin/api/keys/{id}.
func (a *API) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	key, err := a.Store.GetAPIKeyByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	if err := a.Store.DeleteAPIKey(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	if a.Limiters != nil {
		a.Limiters.Forget(key.KeyID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// KeyUsage handles GET /admin/api/keys/{id}/usage.
func (a *API) KeyUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	totals, err := a.Store.UsageTotalsForKey(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":     totals.Requests,
		"total_tokens": totals.TotalTokens,
	})
}

// accountView is an account row with the encrypted columns stripped.
type accountView struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	AuthKind      string     `json:"auth_kind"`
	Region        string     `json:"region,omitempty"`
	ProfileArn    string     `json:"profile_arn,omitempty"`
	IsActive      bool       `json:"is_active"`
	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	ExpiresAt     *time.Time `json:"token_expires_at,omitempty"`
	Priority      int        `json:"priority"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewAccount(acct *storage.Account) accountView {
	v := accountView{
		ID:         acct.ID,
		Name:       acct.Name,
		AuthKind:   acct.AuthKind,
		Region:     acct.Region,
		ProfileArn: acct.ProfileArn,
		IsActive:   acct.IsActive,
		ErrorCount: acct.ErrorCount,
		LastError:  acct.LastError,
		Priority:   acct.Priority,
		CreatedAt:  acct.CreatedAt,
	}
	if !acct.LastSuccessAt.IsZero() {
		t := acct.LastSuccessAt
		v.LastSuccessAt = &t
	}
	if !acct.ExpiresAt.IsZero() {
		t := acct.ExpiresAt
		v.ExpiresAt = &t
	}
	return v
}

// ListAccounts handles GET /admin/api/accounts.
func (a *API) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.Store.ListAccounts(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		views = append(views, viewAccount(acct))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

// ToggleAccount handles POST /admin/api/accounts/{id}/toggle.
func (a *API) ToggleAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := a.Store.SetAccountActive(r.Context(), id, req.Active); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	a.Pool.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAccount handles POST /admin/api/accounts/{id}/refresh: an
// immediate credential refresh, bypassing the expiry threshold.
func (a *API) RefreshAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := a.Pool.RefreshAccount(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /admin/api/accounts/{id}.
func (a *API) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := a.Pool.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OAuthStart handles POST /admin/api/oauth/start and returns the URL
// the operator must open in a browser.
func (a *API) OAuthStart(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	redirectURI := scheme + "://" + r.Host + "/admin/api/oauth/callback"

	authURL, state, err := a.Flow.Start(r.Context(), redirectURI)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to start oauth flow: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": authURL,
		"state":    state,
	})
}

// OAuthCallback handles GET /admin/api/oauth/callback: exchanges the
// code, encrypts the credentials and persists the new account.
func (a *API) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	tokens, err := a.Flow.Exchange(r.Context(), code, state)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, oauthflow.ErrUnknownState) || errors.Is(err, oauthflow.ErrFlowExpired) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "token exchange failed: "+err.Error())
		return
	}

	account, err := a.persistOAuthAccount(r, tokens)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save account: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": account,
		"message":    "account onboarded",
	})
}

func (a *API) persistOAuthAccount(r *http.Request, tokens *oauthflow.Tokens) (int64, error) {
	refreshEnc, err := a.Cipher.EncryptString(tokens.RefreshToken)
	if err != nil {
		return 0, err
	}
	accessEnc, err := a.Cipher.EncryptString(tokens.AccessToken)
	if err != nil {
		return 0, err
	}
	clientIDEnc, err := a.Cipher.EncryptString(tokens.ClientID)
	if err != nil {
		return 0, err
	}
	clientSecretEnc, err := a.Cipher.EncryptString(tokens.ClientSecret)
	if err != nil {
		return 0, err
	}

	return a.Store.InsertAccount(r.Context(), &storage.Account{
		Name:            "sso-" + time.Now().Format("20060102-150405"),
		AuthKind:        storage.AuthKindOIDC,
		RefreshTokenEnc: refreshEnc,
		AccessTokenEnc:  accessEnc,
		ClientIDEnc:     clientIDEnc,
		ClientSecretEnc: clientSecretEnc,
		Region:          a.Region,
		ExpiresAt:       time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
		IsActive:        true,
	})
}
