package navwatch

import "time"

// DefaultQuiescence lets the host finish its own re-render before the panel
// is mounted.
const DefaultQuiescence = time.Second

// Debouncer is the scheduling policy of the watcher, free of timers: every
// observed signal replaces the pending one and pushes the deadline to
// ObservedAt + window. Repeated changes inside the window collapse into one
// (debounce, not queue).
type Debouncer struct {
	window   time.Duration
	pending  Signal
	has      bool
	deadline time.Time
}

// NewDebouncer returns a policy with the given quiescence window.
// A non-positive window means DefaultQuiescence.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultQuiescence
	}
	return &Debouncer{window: window}
}

// Window returns the quiescence window.
func (d *Debouncer) Window() time.Duration { return d.window }

// Observe records sig as the pending signal and returns the new deadline.
func (d *Debouncer) Observe(sig Signal) time.Time {
	d.pending = sig
	d.has = true
	d.deadline = sig.ObservedAt.Add(d.window)
	return d.deadline
}

// Due returns the pending signal and clears it once now has reached the
// deadline.
func (d *Debouncer) Due(now time.Time) (Signal, bool) {
	if !d.has || now.Before(d.deadline) {
		return Signal{}, false
	}
	sig := d.pending
	d.pending = Signal{}
	d.has = false
	return sig, true
}

// Deadline returns the deadline of the pending signal, if any.
func (d *Debouncer) Deadline() (time.Time, bool) {
	return d.deadline, d.has
}
