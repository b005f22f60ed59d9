package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Notifier delivers human-readable outcomes to players. The core calls it
// after a transition commits; delivery failures are logged, never rolled
// back into the ledger.
type Notifier interface {
	NotifyParticipants(ctx context.Context, ch *Challenge, text string)
	NotifyPlayer(ctx context.Context, playerID int64, text string)
}

// NopNotifier drops every notification. Used in tests and tooling.
type NopNotifier struct{}

func (NopNotifier) NotifyParticipants(context.Context, *Challenge, string) {}
func (NopNotifier) NotifyPlayer(context.Context, int64, string)           {}

// Sweeper periodically aborts created challenges whose timeout has passed.
// Each abort is independent: one failing challenge is logged and the sweep
// moves on to the next.
type Sweeper struct {
	engine   *Engine
	notifier Notifier
	interval time.Duration
}

// NewSweeper creates a sweeper; interval is how often timed-out challenges
// are collected.
func NewSweeper(engine *Engine, notifier Notifier, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, notifier: notifier, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("timeout sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep aborts every timed-out challenge once. Exported so tests and admin
// tooling can trigger a pass directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	timedOut, err := s.engine.TimedOut(ctx)
	if err != nil {
		slog.Error("failed to collect timed-out challenges", "error", err)
		return
	}

	for _, ch := range timedOut {
		// byPlayer 0 marks a system abort: nobody gets penalized.
		aborted, err := s.engine.Abort(ctx, ch.ID, 0)
		if err != nil {
			slog.Error("failed to abort timed-out challenge", "challenge", ch.ID, "error", err)
			continue
		}
		slog.Info("challenge aborted due to timeout", "challenge", ch.ID)
		s.notifier.NotifyParticipants(ctx, aborted,
			fmt.Sprintf("Challenge %d has been aborted because nobody accepted it in time. Your bet was refunded.", ch.ID))
	}
}
