// Package storage is the gateway's SQLite persistence layer.
//
// It holds admin users, client API keys, the upstream account pool,
// and append-only usage records. Credentials are stored encrypted; the
// cipher lives in pkg/security/secrets and callers pass ciphertext in.
// The database opens in WAL mode with a single writer connection.
package storage
