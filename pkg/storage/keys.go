package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const apiKeyColumns = `id, key_id, key_hash, COALESCE(user_id, 0), COALESCE(name, ''), is_active,
	COALESCE(rate_limit_rpm, 0), COALESCE(rate_limit_tpm, 0),
	COALESCE(usage_limit_tokens, 0), COALESCE(usage_limit_requests, 0),
	created_at, last_used_at`

// InsertAPIKey stores a newly created key and returns its id.
func (s *Store) InsertAPIKey(ctx context.Context, k *APIKey) (int64, error) {
	if k.KeyID == "" || k.KeyHash == "" {
		return 0, fmt.Errorf("key id and hash are required")
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_id, key_hash, user_id, name, is_active,
			rate_limit_rpm, rate_limit_tpm, usage_limit_tokens, usage_limit_requests, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.KeyID, k.KeyHash, nullInt64(k.UserID), k.Name, k.IsActive,
		nullInt(k.RateLimitRPM), nullInt(k.RateLimitTPM),
		nullInt64(k.UsageLimitTokens), nullInt64(k.UsageLimitRequests),
		k.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert api key: %w", err)
	}
	return res.LastInsertId()
}

// GetAPIKeyByID looks up a key by its row id.
func (s *Store) GetAPIKeyByID(ctx context.Context, id int64) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
	return scanAPIKey(row)
}

// GetAPIKeyByKeyID looks up a key by its plaintext prefix.
func (s *Store) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = ?`, keyID)
	return scanAPIKey(row)
}

// ListAPIKeys returns all keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchAPIKey stamps last_used_at.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// SetAPIKeyActive toggles a key.
func (s *Store) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set api key active: %w", err)
	}
	return nil
}

// CountActiveAPIKeys reports how many active keys exist. Client auth
// is open only while this is zero and no static key is configured.
func (s *Store) CountActiveAPIKeys(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE is_active = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// DeleteAPIKey removes a key and, via cascade, its usage rows.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var k APIKey
	var createdAt int64
	var lastUsed sql.NullInt64
	err := row.Scan(&k.ID, &k.KeyID, &k.KeyHash, &k.UserID, &k.Name, &k.IsActive,
		&k.RateLimitRPM, &k.RateLimitTPM, &k.UsageLimitTokens, &k.UsageLimitRequests,
		&createdAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	k.CreatedAt = time.Unix(createdAt, 0)
	k.LastUsedAt = timeFrom(lastUsed)
	return &k, nil
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
