// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the purge cycle runs.
const DefaultSweepInterval = time.Hour

// Sweeper periodically hard-deletes expired or inactive sessions. The
// sweep is idempotent and has no ordering dependency on live traffic:
// sessions are never reactivated, so delete-where-expired-or-inactive is
// safe to run concurrently with session operations.
type Sweeper struct {
	sessions SessionRepository
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. A non-positive interval falls back to
// DefaultSweepInterval.
func NewSweeper(sessions SessionRepository, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		clock:    time.Now,
	}
}

// RunOnce executes a single purge cycle.
func (w *Sweeper) RunOnce(ctx context.Context) error {
	start := w.clock()
	purged, err := w.sessions.PurgeExpiredOrInactive(ctx)
	if err != nil {
		w.logger.Error("session purge failed", "event", "sweep", "error", err)
		return err
	}
	w.metrics.recordPurged(purged)
	if purged > 0 {
		w.logger.Info("purged sessions",
			"event", "sweep",
			"count", purged,
			"elapsed", w.clock().Sub(start).String(),
		)
	}
	return nil
}

// Start launches the periodic sweep loop in a background goroutine.
func (w *Sweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Errors are logged inside; the loop keeps running.
				_ = w.RunOnce(ctx) //nolint:errcheck
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
