package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Config configures the store.
type Config struct {
	// Path is the SQLite database file. ":memory:" for tests.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	BusyTimeout time.Duration

	// CheckpointInterval is how often the WAL is checkpointed.
	CheckpointInterval time.Duration
}

// DefaultConfig returns the production store settings.
func DefaultConfig(path string) Config {
	return Config{
		Path:               path,
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
	}
}

// Store is the gateway database. SQLite supports one writer, so the
// pool is pinned to a single connection.
type Store struct {
	db        *sql.DB
	done      chan struct{}
	closeOnce sync.Once
}

// Open opens the database, applies the schema, and starts the WAL
// checkpoint loop.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, done: make(chan struct{})}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	go s.checkpointLoop(cfg.CheckpointInterval)
	return s, nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_id TEXT NOT NULL UNIQUE,
		key_hash TEXT NOT NULL,
		user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
		name TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		rate_limit_rpm INTEGER,
		rate_limit_tpm INTEGER,
		usage_limit_tokens INTEGER,
		usage_limit_requests INTEGER,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_key_id ON api_keys(key_id);

	CREATE TABLE IF NOT EXISTS kiro_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		auth_kind TEXT NOT NULL,
		refresh_token_enc TEXT,
		access_token_enc TEXT,
		client_id_enc TEXT,
		client_secret_enc TEXT,
		profile_arn TEXT,
		region TEXT NOT NULL DEFAULT 'us-east-1',
		expires_at INTEGER,
		is_active INTEGER NOT NULL DEFAULT 1,
		error_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_success_at INTEGER,
		priority INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key_id INTEGER REFERENCES api_keys(id) ON DELETE CASCADE,
		account_id INTEGER,
		model TEXT,
		endpoint TEXT,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER,
		duration_ms INTEGER,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_api_key ON usage_records(api_key_id);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) checkpointLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// nullTime maps zero times to NULL and back.
func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFrom(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}
