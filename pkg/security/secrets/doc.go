// Package secrets protects account credentials at rest.
//
// Refresh tokens, access tokens, and OIDC client credentials are stored
// encrypted with AES-256-GCM. The AEAD key is derived from a master
// passphrase (environment variable or owner-only key file) via PBKDF2,
// so operators configure a passphrase rather than raw key bytes.
package secrets
