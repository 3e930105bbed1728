package payment

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically re-verifies payments whose confirmation never arrived.
type Sweeper struct {
	reconciler *Reconciler
	every      time.Duration
	after      time.Duration
	batch      int
	log        *slog.Logger
}

func NewSweeper(r *Reconciler, every, after time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{reconciler: r, every: every, after: after, batch: 50, log: log}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.log.Info("payment sweeper started", "interval", s.every.String(), "after", s.after.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("payment sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	settled, err := s.reconciler.ReconcilePending(ctx, time.Now().UTC().Add(-s.after), s.batch)
	if err != nil {
		s.log.Error("payment sweep failed", "error", err)
		return
	}
	if settled > 0 {
		s.log.Info("payment sweep settled orders", "count", settled)
	}
}
