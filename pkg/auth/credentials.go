package auth

import (
	"time"

	"kirohq/gateway/pkg/storage"
)

// Credentials is one account's upstream credential set. Region is the
// API region; SSORegion is only used for the OIDC token endpoint and
// may differ from it.
type Credentials struct {
	AuthKind     string
	AccessToken  string
	RefreshToken string
	ProfileArn   string
	Region       string
	SSORegion    string
	ClientID     string
	ClientSecret string
	Scopes       []string
	ExpiresAt    time.Time
}

// DetectKind infers the auth kind from the credential shape: only OIDC
// accounts carry a client id and secret.
func (c *Credentials) DetectKind() string {
	if c.ClientID != "" && c.ClientSecret != "" {
		return storage.AuthKindOIDC
	}
	return storage.AuthKindSimpleRefresh
}

// ExpiringSoon reports whether the access token expires within the
// threshold. Missing expiry information counts as expiring.
func (c *Credentials) ExpiringSoon(threshold time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(time.Now().Add(threshold))
}

// Expired reports whether the access token has actually expired, as
// opposed to merely expiring soon. Used for graceful degradation when
// a refresh fails but the old token may still be accepted upstream.
func (c *Credentials) Expired() bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(c.ExpiresAt)
}

// merge overlays non-empty fields from fresh onto c. Used when an
// external origin is reloaded: another process may have rotated only
// some of the fields.
func (c *Credentials) merge(fresh Credentials) {
	if fresh.AccessToken != "" {
		c.AccessToken = fresh.AccessToken
	}
	if fresh.RefreshToken != "" {
		c.RefreshToken = fresh.RefreshToken
	}
	if fresh.ProfileArn != "" {
		c.ProfileArn = fresh.ProfileArn
	}
	if fresh.Region != "" {
		c.Region = fresh.Region
	}
	if fresh.SSORegion != "" {
		c.SSORegion = fresh.SSORegion
	}
	if fresh.ClientID != "" {
		c.ClientID = fresh.ClientID
	}
	if fresh.ClientSecret != "" {
		c.ClientSecret = fresh.ClientSecret
	}
	if len(fresh.Scopes) > 0 {
		c.Scopes = fresh.Scopes
	}
	if !fresh.ExpiresAt.IsZero() {
		c.ExpiresAt = fresh.ExpiresAt
	}
}
