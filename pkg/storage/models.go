package storage

import "time"

// Account auth kinds.
const (
	AuthKindSimpleRefresh = "kiro_desktop"
	AuthKindOIDC          = "aws_sso_oidc"
)

// User is an admin user.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// APIKey is a client-facing gateway key. The full key is never stored;
// KeyID is its plaintext prefix and KeyHash the bcrypt digest.
type APIKey struct {
	ID                 int64
	KeyID              string
	KeyHash            string
	UserID             int64
	Name               string
	IsActive           bool
	RateLimitRPM       int
	RateLimitTPM       int
	UsageLimitTokens   int64
	UsageLimitRequests int64
	CreatedAt          time.Time
	LastUsedAt         time.Time
}

// Account is one upstream credential set in the pool. Token and OIDC
// fields hold ciphertext.
type Account struct {
	ID              int64
	Name            string
	AuthKind        string
	RefreshTokenEnc string
	AccessTokenEnc  string
	ClientIDEnc     string
	ClientSecretEnc string
	ProfileArn      string
	Region          string
	ExpiresAt       time.Time
	IsActive        bool
	ErrorCount      int
	LastError       string
	LastSuccessAt   time.Time
	Priority        int
	CreatedAt       time.Time
}

// UsageRecord is one append-only usage row.
type UsageRecord struct {
	ID           int64
	APIKeyID     int64
	AccountID    int64
	Model        string
	Endpoint     string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	StatusCode   int
	DurationMS   int64
	Timestamp    time.Time
}

// UsageTotals aggregates usage rows.
type UsageTotals struct {
	Requests    int64
	TotalTokens int64
}

// ModelUsage is one row of a by-model aggregation.
type ModelUsage struct {
	Model        string
	Requests     int64
	InputTokens  int64
	OutputTokens int64
}
