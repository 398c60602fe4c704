// Package debounce coalesces bursts of calls into one trailing call.
//
// A dimmer slider dragged across its range produces dozens of brightness
// writes per second; wrapping the outbound write in a Debouncer sends only
// the last one, delay after the burst ends.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once after delay has passed without another Call.
//
// Thread Safety: all methods are safe for concurrent use. fn runs on a
// timer goroutine, never while the Debouncer's lock is held.
type Debouncer struct {
	mu      sync.Mutex
	fn      func()
	delay   time.Duration
	timer   *time.Timer
	pending bool
	// gen invalidates timers that fired after being superseded.
	gen uint64
}

// New creates a Debouncer for fn.
func New(fn func(), delay time.Duration) *Debouncer {
	return &Debouncer{fn: fn, delay: delay}
}

// Debounce returns a function that debounces fn by delay.
func Debounce(fn func(), delay time.Duration) func() {
	return New(fn, delay).Call
}

// Call (re)starts the quiet period.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.fn()
}

// Pending reports whether a call is waiting for its quiet period.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels a pending call without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = false
}

// Flush runs a pending call immediately on the caller's goroutine.
// It does nothing when no call is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = false
	d.mu.Unlock()

	d.fn()
}
