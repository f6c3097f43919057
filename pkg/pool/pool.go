// Package pool maintains the live set of upstream accounts, selects
// one per request with priority-ordered round-robin, and tracks
// account health.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kirohq/gateway/pkg/auth"
	"kirohq/gateway/pkg/security/secrets"
	"kirohq/gateway/pkg/storage"
)

// DefaultErrorThreshold deactivates an account after this many
// consecutive errors.
const DefaultErrorThreshold = 3

// ErrNoAccounts means no active account is below the error threshold.
// Handlers map it to 503.
var ErrNoAccounts = errors.New("no healthy upstream accounts available")

// Config holds the pool's knobs. Auth is passed through to the
// managers the pool creates.
type Config struct {
	ErrorThreshold int
	Auth           auth.Config
}

// Pool owns one auth.Manager per selected account. Selection and the
// manager cache are serialized by a single mutex; the managers
// themselves do their own locking.
type Pool struct {
	store  *storage.Store
	cipher *secrets.Cipher
	cfg    Config

	mu       sync.Mutex
	managers map[int64]*auth.Manager
	counter  uint64
}

// New creates a pool over the given store. Credentials columns are
// decrypted with cipher when a manager is first needed.
func New(store *storage.Store, cipher *secrets.Cipher, cfg Config) *Pool {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultErrorThreshold
	}
	return &Pool{
		store:    store,
		cipher:   cipher,
		cfg:      cfg,
		managers: make(map[int64]*auth.Manager),
	}
}

// Select returns the next healthy account and its auth manager.
// Accounts are ordered by priority descending then id, and the pool
// round-robins over that order.
func (p *Pool) Select(ctx context.Context) (*storage.Account, *auth.Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accounts, err := p.healthyAccountsLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(accounts) == 0 {
		return nil, nil, ErrNoAccounts
	}

	selected := accounts[p.counter%uint64(len(accounts))]
	p.counter++

	mgr, err := p.managerForLocked(ctx, selected)
	if err != nil {
		return nil, nil, err
	}
	return selected, mgr, nil
}

// ReportError records a failed request against the account. Reaching
// the error threshold deactivates it and drops its cached manager.
func (p *Pool) ReportError(ctx context.Context, accountID int64, message string) {
	count, err := p.store.RecordAccountError(ctx, accountID, message, p.cfg.ErrorThreshold)
	if err != nil {
		slog.Error("failed to record account error", "account_id", accountID, "error", err)
		return
	}
	slog.Warn("account error recorded", "account_id", accountID, "error_count", count, "message", message)

	if count >= p.cfg.ErrorThreshold {
		slog.Error("account exceeded error threshold, deactivated",
			"account_id", accountID, "error_count", count, "threshold", p.cfg.ErrorThreshold)
		p.Invalidate(accountID)
	}
}

// ReportSuccess clears the account's error state.
func (p *Pool) ReportSuccess(ctx context.Context, accountID int64) {
	if err := p.store.RecordAccountSuccess(ctx, accountID); err != nil {
		slog.Error("failed to record account success", "account_id", accountID, "error", err)
	}
}

// RefreshAccount forces a token refresh for one account, creating its
// manager if needed. Used by the admin surface and the background
// refresh sweep.
func (p *Pool) RefreshAccount(ctx context.Context, accountID int64) error {
	p.mu.Lock()
	mgr, ok := p.managers[accountID]
	if !ok {
		acct, err := p.store.GetAccount(ctx, accountID)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		if mgr, err = p.managerForLocked(ctx, acct); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.mu.Unlock()

	if err := mgr.ForceRefresh(ctx); err != nil {
		p.ReportError(ctx, accountID, err.Error())
		return fmt.Errorf("refresh account %d: %w", accountID, err)
	}
	p.ReportSuccess(ctx, accountID)
	return nil
}

// Invalidate drops the cached manager so the next selection rebuilds
// it from the stored row. Call after editing an account's credentials.
func (p *Pool) Invalidate(accountID int64) {
	p.mu.Lock()
	delete(p.managers, accountID)
	p.mu.Unlock()
}

// DeleteAccount removes the account row and its cached manager.
func (p *Pool) DeleteAccount(ctx context.Context, accountID int64) error {
	p.Invalidate(accountID)
	return p.store.DeleteAccount(ctx, accountID)
}

// ManagerCount returns how many auth managers are cached. Exposed as a
// gauge.
func (p *Pool) ManagerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.managers)
}

func (p *Pool) healthyAccountsLocked(ctx context.Context) ([]*storage.Account, error) {
	active, err := p.store.ListAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	healthy := active[:0]
	for _, a := range active {
		if a.ErrorCount < p.cfg.ErrorThreshold {
			healthy = append(healthy, a)
		}
	}
	return healthy, nil
}

// managerForLocked returns the cached manager or builds one from the
// account row. The StoreOrigin binds refresh write-backs to the same
// row, and loading it seeds the manager with any still-valid access
// token so the first request skips a refresh round-trip.
func (p *Pool) managerForLocked(ctx context.Context, acct *storage.Account) (*auth.Manager, error) {
	if mgr, ok := p.managers[acct.ID]; ok {
		return mgr, nil
	}

	slog.Info("creating auth manager", "account_id", acct.ID, "name", acct.Name, "kind", acct.AuthKind)
	origin := &auth.StoreOrigin{Store: p.store, Cipher: p.cipher, AccountID: acct.ID}
	mgr, err := auth.LoadManager(ctx, p.cfg.Auth, origin)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", acct.ID, err)
	}
	p.managers[acct.ID] = mgr
	return mgr, nil
}
