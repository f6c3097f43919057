// Package keys manages gateway-facing API keys: generation, bcrypt
// validation by prefix, and usage-limit enforcement.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"kirohq/gateway/pkg/storage"
)

const (
	// keyPrefix starts every gateway key.
	keyPrefix = "sk-"

	// keyIDLen is how many leading characters of the full key are
	// stored in plaintext as the lookup index.
	keyIDLen = 15

	// bcryptCost matches the stored hashes; changing it only affects
	// new keys.
	bcryptCost = 12

	// randomBytes yields a 43-character urlsafe suffix.
	randomBytes = 32
)

// Validation and limit errors.
var (
	ErrInvalidKey    = errors.New("invalid api key")
	ErrKeyInactive   = errors.New("api key is inactive")
	ErrLimitExceeded = errors.New("usage limit exceeded")
)

// Manager creates and validates API keys against the store.
type Manager struct {
	store *storage.Store
}

// NewManager creates a key manager.
func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store}
}

// CreateParams carries the optional limits for a new key.
type CreateParams struct {
	UserID             int64
	Name               string
	RateLimitRPM       int
	RateLimitTPM       int
	UsageLimitTokens   int64
	UsageLimitRequests int64
}

// Create generates a key, stores its prefix and bcrypt hash, and
// returns the plaintext exactly once.
func (m *Manager) Create(ctx context.Context, p CreateParams) (string, *storage.APIKey, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	plaintext := keyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	key := &storage.APIKey{
		KeyID:              plaintext[:keyIDLen],
		KeyHash:            string(hash),
		UserID:             p.UserID,
		Name:               p.Name,
		IsActive:           true,
		RateLimitRPM:       p.RateLimitRPM,
		RateLimitTPM:       p.RateLimitTPM,
		UsageLimitTokens:   p.UsageLimitTokens,
		UsageLimitRequests: p.UsageLimitRequests,
	}
	id, err := m.store.InsertAPIKey(ctx, key)
	if err != nil {
		return "", nil, err
	}
	key.ID = id

	slog.Info("api key created", "key_id", key.KeyID, "name", p.Name, "user_id", p.UserID)
	return plaintext, key, nil
}

// Validate checks a presented key and returns its metadata. The
// last-used stamp is updated on success.
func (m *Manager) Validate(ctx context.Context, plaintext string) (*storage.APIKey, error) {
	if !strings.HasPrefix(plaintext, keyPrefix) || len(plaintext) < keyIDLen {
		return nil, ErrInvalidKey
	}

	key, err := m.store.GetAPIKeyByKeyID(ctx, plaintext[:keyIDLen])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) != nil {
		return nil, ErrInvalidKey
	}
	if !key.IsActive {
		return nil, ErrKeyInactive
	}

	if err := m.store.TouchAPIKey(ctx, key.ID); err != nil {
		slog.Warn("failed to stamp key last_used_at", "key_id", key.KeyID, "error", err)
	}
	return key, nil
}

// CheckUsageLimits compares summed historical usage against the key's
// total token and request limits. Returns ErrLimitExceeded (wrapped
// with the exceeded limit) when a limit is hit.
func (m *Manager) CheckUsageLimits(ctx context.Context, key *storage.APIKey) error {
	if key.UsageLimitTokens == 0 && key.UsageLimitRequests == 0 {
		return nil
	}

	totals, err := m.store.UsageTotalsForKey(ctx, key.ID)
	if err != nil {
		return err
	}

	if key.UsageLimitTokens > 0 && totals.TotalTokens >= key.UsageLimitTokens {
		return fmt.Errorf("%w: %d of %d tokens used", ErrLimitExceeded, totals.TotalTokens, key.UsageLimitTokens)
	}
	if key.UsageLimitRequests > 0 && totals.Requests >= key.UsageLimitRequests {
		return fmt.Errorf("%w: %d of %d requests used", ErrLimitExceeded, totals.Requests, key.UsageLimitRequests)
	}
	return nil
}
