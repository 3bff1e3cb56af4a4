package listctl

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet window applied to search input.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer runs only the trailing call of a burst, once the window has
// passed without a new call.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	pending  func()
	gen      uint64
	duration time.Duration
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Debounce schedules fn, cancelling any call scheduled earlier.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.duration, func() { d.fire(gen) })
}

// fire runs the pending call unless a newer Debounce, Cancel or Flush
// replaced it after the timer was already committed to firing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}

// Flush runs the pending call now, if any. It reports whether one ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
