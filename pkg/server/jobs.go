package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// startJobs schedules the background maintenance work: usage flushes,
// credential refresh ahead of expiry, catalog refresh when stale and
// the OAuth state sweep.
func (s *Server) startJobs() {
	s.cron = cron.New()

	flushEvery := s.cfg.Usage.FlushInterval
	if flushEvery <= 0 {
		flushEvery = time.Minute
	}
	s.addJob(every(flushEvery), "usage flush", s.flushUsage)
	s.addJob(every(time.Minute), "account refresh sweep", s.refreshExpiring)
	s.addJob(every(10*time.Minute), "catalog refresh", s.refreshStaleCatalog)
	if s.flow != nil {
		s.addJob(every(5*time.Minute), "oauth state sweep", s.sweepOAuthStates)
	}

	s.cron.Start()
}

func (s *Server) addJob(spec, name string, fn func(context.Context)) {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		slog.Error("schedule job", "job", name, "error", err)
	}
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func (s *Server) flushUsage(ctx context.Context) {
	before := s.usage.PendingCount()
	s.usage.Flush(ctx)
	if flushed := before - s.usage.PendingCount(); flushed > 0 {
		s.metrics.RecordUsageFlush(flushed)
	}
}

// refreshExpiring refreshes accounts whose tokens are inside the
// refresh threshold, and refreshes the pool gauges as a side effect.
func (s *Server) refreshExpiring(ctx context.Context) {
	accounts, err := s.store.ListAccounts(ctx, true)
	if err != nil {
		slog.Error("refresh sweep: list accounts", "error", err)
		return
	}
	s.metrics.SetPoolGauges(len(accounts), s.accounts.ManagerCount())

	threshold := s.cfg.Auth.RefreshThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	for _, acct := range accounts {
		if acct.ExpiresAt.IsZero() || time.Until(acct.ExpiresAt) > threshold {
			continue
		}
		if err := s.accounts.RefreshAccount(ctx, acct.ID); err != nil {
			slog.Warn("scheduled refresh failed",
				"account", acct.Name, "error", err)
			s.metrics.RecordAuthRefresh(acct.AuthKind, "error")
			continue
		}
		s.metrics.RecordAuthRefresh(acct.AuthKind, "ok")
		slog.Info("refreshed credentials ahead of expiry", "account", acct.Name)
	}
}

// refreshStaleCatalog refetches when the cache aged out, and keeps
// retrying while the catalog still holds the fallback list.
func (s *Server) refreshStaleCatalog(ctx context.Context) {
	if !s.catalog.Stale() && !s.catalog.FromFallback() {
		return
	}
	s.refreshCatalog(ctx)
}

func (s *Server) sweepOAuthStates(ctx context.Context) {
	if n := s.flow.CleanupExpired(); n > 0 {
		slog.Debug("expired oauth states removed", "count", n)
	}
}
