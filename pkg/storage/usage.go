package storage

import (
	"context"
	"fmt"
	"time"
)

// InsertUsageBatch appends usage rows in one transaction.
func (s *Store) InsertUsageBatch(ctx context.Context, records []UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (api_key_id, account_id, model, endpoint,
			input_tokens, output_tokens, total_tokens, status_code, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare usage insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			nullInt64(r.APIKeyID), nullInt64(r.AccountID), r.Model, r.Endpoint,
			r.InputTokens, r.OutputTokens, r.TotalTokens,
			r.StatusCode, r.DurationMS, ts.Unix()); err != nil {
			return fmt.Errorf("insert usage row: %w", err)
		}
	}
	return tx.Commit()
}

// UsageTotalsForKey sums all historical usage for one API key.
func (s *Store) UsageTotalsForKey(ctx context.Context, apiKeyID int64) (UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0)
		FROM usage_records WHERE api_key_id = ?`, apiKeyID).
		Scan(&t.Requests, &t.TotalTokens)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("sum usage: %w", err)
	}
	return t, nil
}

// UsageByModel aggregates usage per model since the given time.
func (s *Store) UsageByModel(ctx context.Context, since time.Time) ([]ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(model, ''), COUNT(*),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records
		WHERE timestamp >= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("usage by model: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var m ModelUsage
		if err := rows.Scan(&m.Model, &m.Requests, &m.InputTokens, &m.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentUsage returns the newest n usage rows.
func (s *Store) RecentUsage(ctx context.Context, n int) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(api_key_id, 0), COALESCE(account_id, 0),
			COALESCE(model, ''), COALESCE(endpoint, ''),
			input_tokens, output_tokens, total_tokens,
			COALESCE(status_code, 0), COALESCE(duration_ms, 0), timestamp
		FROM usage_records ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var r UsageRecord
		var ts int64
		if err := rows.Scan(&r.ID, &r.APIKeyID, &r.AccountID, &r.Model, &r.Endpoint,
			&r.InputTokens, &r.OutputTokens, &r.TotalTokens,
			&r.StatusCode, &r.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
