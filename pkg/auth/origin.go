package auth

import "context"

// Origin is where an account's credentials live between gateway runs.
// Save is called after every successful refresh so rotated tokens
// survive a restart; Save failures are logged, never fatal.
type Origin interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error

	// External reports whether another process may rotate the stored
	// tokens while the gateway runs. External origins are reloaded
	// before a refresh is attempted.
	External() bool
}
