// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Sweeper periodically purges terminal reset tokens. It only reclaims
// storage: token validity is always decided at lookup time.
type Sweeper struct {
	store     CredentialStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides the clock used to compute the purge cutoff.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

// NewSweeper creates a Sweeper that runs every interval and removes tokens
// that have been terminal for longer than retention.
func NewSweeper(store CredentialStore, interval, retention time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, oops.Code("SWEEPER_INVALID_CONFIG").Errorf("credential store is required")
	}
	if interval <= 0 {
		return nil, oops.Code("SWEEPER_INVALID_CONFIG").With("interval", interval).Errorf("sweep interval must be positive")
	}
	if retention < 0 {
		return nil, oops.Code("SWEEPER_INVALID_CONFIG").With("retention", retention).Errorf("retention must not be negative")
	}
	s := &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepOnce purges once and records the result.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, oops.Code(CodeStoreUnavailable).With("operation", "PurgeExpired").Wrap(err)
	}
	RecordPurged(n)
	s.logger.DebugContext(ctx, "purged reset tokens", "count", n, "cutoff", cutoff)
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is canceled.
// Failures are reported to onSweep (if set) and logged; they never stop the loop.
func (s *Sweeper) Run(ctx context.Context, onSweep func(n int64, err error)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "token sweep failed", "error", err)
		}
		if onSweep != nil && ctx.Err() == nil {
			onSweep(n, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
