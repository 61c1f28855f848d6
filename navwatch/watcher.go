package navwatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Trigger runs the mount cycle for a signal. It is called from the watcher
// loop; long work belongs on another goroutine.
type Trigger func(ctx context.Context, sig Signal)

// Config for creating a Watcher.
type Config struct {
	Feed    Feed
	Locator Locator
	Trigger Trigger
	// Quiescence is the debounce window. Default: 1s.
	Quiescence time.Duration
	Logger     *slog.Logger
	// Now overrides time.Now.
	Now func() time.Time
}

// Watcher turns mutation notifications into debounced navigation triggers.
// It lives for the whole page session; there is no teardown beyond
// cancelling the context passed to Run.
type Watcher struct {
	feed     Feed
	locator  Locator
	trigger  Trigger
	logger   *slog.Logger
	now      func() time.Time
	cell     LocationCell
	debounce *Debouncer
	fired    atomic.Uint64
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Trigger == nil {
		cfg.Trigger = func(context.Context, Signal) {}
	}
	return &Watcher{
		feed:     cfg.Feed,
		locator:  cfg.Locator,
		trigger:  cfg.Trigger,
		logger:   cfg.Logger,
		now:      cfg.Now,
		debounce: NewDebouncer(cfg.Quiescence),
	}
}

// Last returns the last location the watcher recorded.
func (w *Watcher) Last() (string, bool) { return w.cell.Load() }

// Fired returns how many times the trigger was invoked.
func (w *Watcher) Fired() uint64 { return w.fired.Load() }

// Run triggers the initial mount cycle, then processes notifications until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("navwatch: started", "quiescence", w.debounce.Window())
	w.initial(ctx)

	var notes <-chan Notification
	if w.feed != nil {
		notes = w.feed.Notifications()
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("navwatch: stopped")
			return

		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			deadline, changed := w.observe(ctx, n)
			if !changed {
				continue
			}
			wait := deadline.Sub(w.now())
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			timerC = timer.C

		case <-timerC:
			sig, ok := w.debounce.Due(w.now())
			if !ok {
				// Woke early; sleep until the real deadline.
				if deadline, pending := w.debounce.Deadline(); pending {
					timer.Reset(deadline.Sub(w.now()))
				}
				continue
			}
			timerC = nil
			w.fire(ctx, sig)
		}
	}
}

// initial records the starting location and fires without comparing it.
func (w *Watcher) initial(ctx context.Context) {
	if w.locator == nil {
		return
	}
	loc, err := w.readLocation(ctx)
	if err != nil {
		w.logger.Warn("navwatch: initial location unavailable", "error", err)
		return
	}
	w.cell.Swap(loc)
	w.fire(ctx, Signal{URL: loc, ObservedAt: w.now()})
}

// observe handles one notification. A panic raised while reading the host
// page is logged and the notification dropped.
func (w *Watcher) observe(ctx context.Context, n Notification) (deadline time.Time, changed bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("navwatch: notification handler panicked", "panic", r)
			deadline, changed = time.Time{}, false
		}
	}()

	loc := n.Location
	if loc == "" {
		if w.locator == nil {
			return time.Time{}, false
		}
		var err error
		loc, err = w.readLocation(ctx)
		if err != nil {
			w.logger.Warn("navwatch: read location", "error", err)
			return time.Time{}, false
		}
	}

	if !w.cell.Swap(loc) {
		return time.Time{}, false
	}

	sig := Signal{URL: loc, ObservedAt: w.now()}
	w.logger.Debug("navwatch: location changed", "url", loc)
	return w.debounce.Observe(sig), true
}

func (w *Watcher) readLocation(ctx context.Context) (string, error) {
	return w.locator.Location(ctx)
}

func (w *Watcher) fire(ctx context.Context, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("navwatch: trigger panicked", "url", sig.URL, "panic", r)
		}
	}()
	w.fired.Add(1)
	w.logger.Info("navwatch: mount cycle triggered", "url", sig.URL)
	w.trigger(ctx, sig)
}
