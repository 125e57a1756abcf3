package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/radarhq/radar/internal/radar"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeStore struct {
	mu      sync.Mutex
	due     []radar.Radar
	checked map[string]time.Time
	next    map[string]time.Time
}

func newFakeStore(due ...radar.Radar) *fakeStore {
	return &fakeStore{
		due:     due,
		checked: make(map[string]time.Time),
		next:    make(map[string]time.Time),
	}
}

func (f *fakeStore) DueRadars(now time.Time, limit int) ([]radar.Radar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.due
	f.due = nil
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MarkChecked(id string, checkedAt, nextCheckAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked[id] = checkedAt
	f.next[id] = nextCheckAt
	return nil
}

func TestRunOnce_NoDueRadars(t *testing.T) {
	w := NewWorker(newFakeStore(), LogChecker(discardLogger()), 0)

	busy, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if busy {
		t.Error("RunOnce() = busy with empty queue")
	}
}

func TestRunOnce_ChecksAndReschedules(t *testing.T) {
	r := radar.Radar{ID: "r-1", Topic: "AI news", Cadence: radar.CadenceDaily}
	store := newFakeStore(r)

	var checkedTopics []string
	checker := CheckerFunc(func(ctx context.Context, r radar.Radar) error {
		checkedTopics = append(checkedTopics, r.Topic)
		return nil
	})

	w := NewWorker(store, checker, 0)
	busy, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if !busy {
		t.Error("RunOnce() = idle, want busy")
	}
	if len(checkedTopics) != 1 || checkedTopics[0] != "AI news" {
		t.Errorf("checked topics = %v", checkedTopics)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	checkedAt, ok := store.checked["r-1"]
	if !ok {
		t.Fatal("radar not marked checked")
	}
	wantNext := checkedAt.Add(24 * time.Hour)
	if got := store.next["r-1"]; !got.Equal(wantNext) {
		t.Errorf("next check = %v, want %v", got, wantNext)
	}
}

func TestRunOnce_FailedCheckStillReschedules(t *testing.T) {
	r := radar.Radar{ID: "r-1", Topic: "AI news", Cadence: radar.CadenceHourly}
	store := newFakeStore(r)

	checker := CheckerFunc(func(ctx context.Context, r radar.Radar) error {
		return fmt.Errorf("upstream down")
	})

	w := NewWorker(store, checker, 0)
	w.logger = discardLogger()
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.checked["r-1"]; !ok {
		t.Error("failed check did not reschedule the radar")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	w := NewWorker(newFakeStore(), LogChecker(discardLogger()), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
