// Package monitor reschedules radars whose check time has come. Check
// delivery itself (fetching, summarizing, notifying) is the hosted
// backend's job; this worker keeps the local schedule honest.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radarhq/radar/internal/radar"
)

// RadarStore abstracts the schedule queries the worker needs.
type RadarStore interface {
	DueRadars(now time.Time, limit int) ([]radar.Radar, error)
	MarkChecked(id string, checkedAt, nextCheckAt time.Time) error
}

// Checker runs one check for a due radar.
type Checker interface {
	Check(ctx context.Context, r radar.Radar) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, r radar.Radar) error

func (f CheckerFunc) Check(ctx context.Context, r radar.Radar) error { return f(ctx, r) }

// LogChecker is the default checker: it only records that the radar
// came due.
func LogChecker(logger *slog.Logger) Checker {
	return CheckerFunc(func(ctx context.Context, r radar.Radar) error {
		logger.Info("radar due", "radar_id", r.ID, "topic", r.Topic, "cadence", r.Cadence)
		return nil
	})
}

// Worker polls for due radars and runs checks.
type Worker struct {
	store   RadarStore
	checker Checker
	poll    time.Duration
	batch   int
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 30s.
func NewWorker(store RadarStore, checker Checker, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Worker{
		store:   store,
		checker: checker,
		poll:    pollInterval,
		batch:   10,
		logger:  slog.Default(),
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		busy, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("monitor iteration failed", "error", err)
		}
		if busy {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce processes one batch of due radars. Returns true if any radar
// was processed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	due, err := w.store.DueRadars(now, w.batch)
	if err != nil {
		return false, fmt.Errorf("listing due radars: %w", err)
	}
	if len(due) == 0 {
		return false, nil
	}

	for _, r := range due {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		if err := w.checker.Check(ctx, r); err != nil {
			// A failed check is rescheduled like a successful one; the
			// radar stays active and comes due again next interval.
			w.logger.Warn("check failed", "radar_id", r.ID, "error", err)
		}

		next := now.Add(radar.CadenceInterval(r.Cadence))
		if err := w.store.MarkChecked(r.ID, now, next); err != nil {
			return true, fmt.Errorf("rescheduling radar %s: %w", r.ID, err)
		}
	}

	return true, nil
}
