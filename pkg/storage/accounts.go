package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const accountColumns = `id, name, auth_kind, COALESCE(refresh_token_enc, ''),
	COALESCE(access_token_enc, ''), COALESCE(client_id_enc, ''), COALESCE(client_secret_enc, ''),
	COALESCE(profile_arn, ''), region, expires_at, is_active, error_count,
	COALESCE(last_error, ''), last_success_at, priority, created_at`

// InsertAccount adds an account to the pool and returns its id.
func (s *Store) InsertAccount(ctx context.Context, a *Account) (int64, error) {
	if a.Name == "" || a.AuthKind == "" {
		return 0, fmt.Errorf("account name and auth kind are required")
	}
	if a.AuthKind == AuthKindOIDC && (a.ClientIDEnc == "" || a.ClientSecretEnc == "") {
		return 0, fmt.Errorf("oidc accounts require client id and client secret")
	}
	if a.Region == "" {
		a.Region = "us-east-1"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kiro_accounts (name, auth_kind, refresh_token_enc, access_token_enc,
			client_id_enc, client_secret_enc, profile_arn, region, expires_at,
			is_active, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.AuthKind, a.RefreshTokenEnc, a.AccessTokenEnc,
		a.ClientIDEnc, a.ClientSecretEnc, a.ProfileArn, a.Region, nullTime(a.ExpiresAt),
		a.IsActive, a.Priority, a.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return res.LastInsertId()
}

// GetAccount loads one account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM kiro_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccounts returns accounts ordered for selection: priority
// descending, then id ascending. activeOnly filters out deactivated
// accounts.
func (s *Store) ListAccounts(ctx context.Context, activeOnly bool) ([]*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM kiro_accounts`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY priority DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountTokens writes back refreshed credentials.
func (s *Store) UpdateAccountTokens(ctx context.Context, id int64, refreshTokenEnc, accessTokenEnc string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE kiro_accounts
		SET refresh_token_enc = ?, access_token_enc = ?, expires_at = ?
		WHERE id = ?`,
		refreshTokenEnc, accessTokenEnc, nullTime(expiresAt), id)
	if err != nil {
		return fmt.Errorf("update account tokens: %w", err)
	}
	return nil
}

// RecordAccountSuccess clears error state and stamps last_success_at.
func (s *Store) RecordAccountSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE kiro_accounts
		SET error_count = 0, last_error = NULL, last_success_at = ?
		WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("record account success: %w", err)
	}
	return nil
}

// RecordAccountError increments the error counter, stores the message,
// and deactivates the account when the counter reaches threshold.
// Returns the new error count.
func (s *Store) RecordAccountError(ctx context.Context, id int64, message string, threshold int) (int, error) {
	if len(message) > 500 {
		message = message[:500]
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE kiro_accounts SET error_count = error_count + 1, last_error = ? WHERE id = ?`,
		message, id)
	if err != nil {
		return 0, fmt.Errorf("record account error: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT error_count FROM kiro_accounts WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read error count: %w", err)
	}

	if threshold > 0 && count >= threshold {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE kiro_accounts SET is_active = 0 WHERE id = ?`, id); err != nil {
			return count, fmt.Errorf("deactivate account: %w", err)
		}
	}
	return count, nil
}

// SetAccountActive toggles an account, clearing error state on
// reactivation.
func (s *Store) SetAccountActive(ctx context.Context, id int64, active bool) error {
	q := `UPDATE kiro_accounts SET is_active = ? WHERE id = ?`
	if active {
		q = `UPDATE kiro_accounts SET is_active = ?, error_count = 0, last_error = NULL WHERE id = ?`
	}
	if _, err := s.db.ExecContext(ctx, q, active, id); err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	return nil
}

// DeleteAccount removes an account from the pool.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kiro_accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var expiresAt, lastSuccess sql.NullInt64
	var createdAt int64
	err := row.Scan(&a.ID, &a.Name, &a.AuthKind, &a.RefreshTokenEnc,
		&a.AccessTokenEnc, &a.ClientIDEnc, &a.ClientSecretEnc,
		&a.ProfileArn, &a.Region, &expiresAt, &a.IsActive, &a.ErrorCount,
		&a.LastError, &lastSuccess, &a.Priority, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.ExpiresAt = timeFrom(expiresAt)
	a.LastSuccessAt = timeFrom(lastSuccess)
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}
