// debounce.go — Debounced scheduler that coalesces bursts of "flush soon"
// requests into one delayed invocation, with an optional hard maximum wait.
// Each Invoke resets the wait timer; the maxWait timer (if configured) is
// armed on the first Invoke of a burst and guarantees the callback runs at
// least once per maxWait no matter how often the wait timer is reset.
package debounce

import (
	"sync"
	"time"
)

// Debouncer wraps a zero-argument callback. Thread-safe.
type Debouncer struct {
	mu      sync.Mutex
	fn      func() error
	wait    time.Duration
	maxWait time.Duration
	pending bool
	lastErr error
	waitTmr *time.Timer
	maxTmr  *time.Timer
}

// New creates a debouncer for fn. wait is the quiet period after the most
// recent Invoke; maxWait (0 = disabled) bounds the total delay of a burst.
func New(fn func() error, wait, maxWait time.Duration) *Debouncer {
	return &Debouncer{fn: fn, wait: wait, maxWait: maxWait}
}

// Invoke schedules (or reschedules) the callback after the wait period.
func (d *Debouncer) Invoke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	if d.maxWait > 0 && d.maxTmr == nil {
		d.maxTmr = time.AfterFunc(d.maxWait, d.timerFire)
	}
	if d.waitTmr != nil {
		d.waitTmr.Stop()
	}
	d.waitTmr = time.AfterFunc(d.wait, d.timerFire)
}

// Flush invokes the callback now if an invocation is pending, otherwise it
// returns the result of the most recent invocation.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	if !d.pending {
		err := d.lastErr
		d.mu.Unlock()
		return err
	}
	fn := d.takeLocked()
	d.mu.Unlock()

	return d.run(fn)
}

// Cancel clears both timers without invoking the callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	d.stopTimersLocked()
}

// timerFire runs when either timer expires. A timer stopped too late may
// still fire, so the pending flag is re-checked under the lock.
func (d *Debouncer) timerFire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	fn := d.takeLocked()
	d.mu.Unlock()

	_ = d.run(fn)
}

// takeLocked consumes the pending invocation and disarms both timers.
// Caller must hold mu.
func (d *Debouncer) takeLocked() func() error {
	d.pending = false
	d.stopTimersLocked()
	return d.fn
}

func (d *Debouncer) stopTimersLocked() {
	if d.waitTmr != nil {
		d.waitTmr.Stop()
		d.waitTmr = nil
	}
	if d.maxTmr != nil {
		d.maxTmr.Stop()
		d.maxTmr = nil
	}
}

// run executes fn outside the lock (fn may re-enter Invoke) and records
// its result for later Flush calls.
func (d *Debouncer) run(fn func() error) error {
	err := fn()

	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}
