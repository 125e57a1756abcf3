// Package debounce delays propagation of a rapidly changing value until
// it has been quiescent for a fixed window.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the quiescence window used when none is configured.
const DefaultWindow = 800 * time.Millisecond

// Debouncer emits the latest observed value once no new observation has
// arrived for the configured window. The output channel is conflated:
// if the consumer is slow, an unread emission is replaced by the newer
// one rather than queued behind it.
type Debouncer struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
	out   chan string
}

// New creates a Debouncer. If window <= 0 it defaults to DefaultWindow.
func New(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window: window,
		out:    make(chan string, 1),
	}
}

// C returns the channel on which settled values are delivered.
func (d *Debouncer) C() <-chan string {
	return d.out
}

// Observe records a new value. Any pending emission is cancelled. The
// empty string is delivered immediately: clearing input must not wait
// out the window.
func (d *Debouncer) Observe(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if value == "" {
		d.deliver(value)
		return
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.deliver(value)
	})
}

// Stop cancels any pending emission. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// deliver replaces any unread value on the output channel with v.
// Callers must hold d.mu.
func (d *Debouncer) deliver(v string) {
	select {
	case <-d.out:
	default:
	}
	d.out <- v
}
