// Package auth holds per-account upstream credentials and keeps them
// fresh. A Manager owns one account's tokens, serializes refreshes
// behind a mutex, and persists rotated tokens back to the origin they
// were loaded from: a JSON credentials file, the Kiro CLI token
// database, or an encrypted gateway account row.
//
// The oauthflow subpackage implements the authorization-code flow used
// to onboard new OIDC accounts.
package auth
