// Package watch re-runs change detection and rebuilds when files inside
// watched modules change.
package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPending is the maximum number of distinct keys held before a flush is
// forced, bounding memory under bursts of events.
const MaxPending = 1000

// Debouncer coalesces rapid change events into batches of keys (module
// names). A batch is flushed once the window passes with no new event.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(keys []string)
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
// onFlush receives the sorted, distinct keys of a batch. It is never called
// with the lock held.
func NewDebouncer(window time.Duration, onFlush func(keys []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change for key and restarts the window.
func (d *Debouncer) Add(key string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[key] = struct{}{}

	if len(d.pending) >= MaxPending {
		keys := d.takeLocked()
		d.mu.Unlock()
		d.emit(keys)
		return
	}

	// A timer that already fired may still run flush; it finds nothing
	// pending or takes the batch early, both harmless.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
	d.mu.Unlock()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	var keys []string
	if !d.stopped {
		keys = d.takeLocked()
	}
	d.mu.Unlock()
	d.emit(keys)
}

// FlushNow flushes pending keys without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.flush()
}

// Stop stops the debouncer. Pending keys are flushed once; later Adds are
// ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	keys := d.takeLocked()
	d.stopped = true
	d.mu.Unlock()
	d.emit(keys)
}

// PendingCount returns the number of keys waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// takeLocked stops the timer and drains pending keys. Caller holds d.mu.
func (d *Debouncer) takeLocked() []string {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]struct{})
	slices.Sort(keys)
	return keys
}

func (d *Debouncer) emit(keys []string) {
	if len(keys) > 0 && d.onFlush != nil {
		d.onFlush(keys)
	}
}
