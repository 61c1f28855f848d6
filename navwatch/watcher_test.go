package navwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type chanFeed chan Notification

func (f chanFeed) Notifications() <-chan Notification { return f }

type fakeLocator struct {
	mu    sync.Mutex
	url   string
	err   error
	panic bool
}

func (l *fakeLocator) Location(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panic {
		panic("host document is malformed")
	}
	return l.url, l.err
}

type recorder struct {
	mu   sync.Mutex
	sigs []Signal
}

func (r *recorder) trigger(ctx context.Context, sig Signal) {
	r.mu.Lock()
	r.sigs = append(r.sigs, sig)
	r.mu.Unlock()
}

func (r *recorder) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sigs))
	for i, s := range r.sigs {
		out[i] = s.URL
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, cfg Config) (*Watcher, func()) {
	t.Helper()
	cfg.Logger = quietLogger()
	w := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return w, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcher_InitialRunUnconditional(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	loc := &fakeLocator{url: "https://github.com/acme/widgets"}
	_, stop := startWatcher(t, Config{Feed: make(chanFeed), Locator: loc, Trigger: rec.trigger, Quiescence: 50 * time.Millisecond})
	defer stop()

	waitFor(t, time.Second, func() bool { return len(rec.urls()) == 1 })
	if got := rec.urls()[0]; got != "https://github.com/acme/widgets" {
		t.Errorf("initial trigger URL: got %q", got)
	}
}

func TestWatcher_BurstTriggersOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	feed := make(chanFeed, 32)
	loc := &fakeLocator{url: "https://github.com/start/page"}
	w, stop := startWatcher(t, Config{Feed: feed, Locator: loc, Trigger: rec.trigger, Quiescence: 100 * time.Millisecond})
	defer stop()
	waitFor(t, time.Second, func() bool { return len(rec.urls()) == 1 })

	// k notifications inside one window: two navigations plus host churn.
	feed <- Notification{Location: "https://github.com/acme/one"}
	for i := 0; i < 8; i++ {
		feed <- Notification{Location: "https://github.com/acme/one"}
	}
	feed <- Notification{Location: "https://github.com/acme/two"}

	waitFor(t, time.Second, func() bool { return len(rec.urls()) == 2 })
	time.Sleep(250 * time.Millisecond)

	got := rec.urls()
	if len(got) != 2 {
		t.Fatalf("triggers: got %v, want initial + one", got)
	}
	if got[1] != "https://github.com/acme/two" {
		t.Errorf("debounced URL: got %q, want .../acme/two", got[1])
	}
	if w.Fired() != 2 {
		t.Errorf("Fired: got %d, want 2", w.Fired())
	}
}

func TestWatcher_RapidNavigationScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Scaled version of /a/b -> /c/d within 500ms under a 1000ms window.
	rec := &recorder{}
	feed := make(chanFeed, 4)
	_, stop := startWatcher(t, Config{Feed: feed, Trigger: rec.trigger, Quiescence: 200 * time.Millisecond})
	defer stop()

	feed <- Notification{Location: "/a/b"}
	time.Sleep(100 * time.Millisecond)
	feed <- Notification{Location: "/c/d"}

	waitFor(t, time.Second, func() bool { return len(rec.urls()) == 1 })
	time.Sleep(400 * time.Millisecond)

	got := rec.urls()
	if len(got) != 1 || got[0] != "/c/d" {
		t.Fatalf("triggers: got %v, want [/c/d]", got)
	}
}

func TestWatcher_UnchangedLocationIgnored(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	feed := make(chanFeed, 8)
	loc := &fakeLocator{url: "https://github.com/acme/widgets"}
	w, stop := startWatcher(t, Config{Feed: feed, Locator: loc, Trigger: rec.trigger, Quiescence: 30 * time.Millisecond})
	defer stop()
	waitFor(t, time.Second, func() bool { return len(rec.urls()) == 1 })

	// Location-less notifications fall back to the locator.
	for i := 0; i < 5; i++ {
		feed <- Notification{}
	}
	time.Sleep(150 * time.Millisecond)

	if n := len(rec.urls()); n != 1 {
		t.Errorf("triggers: got %d, want 1", n)
	}
	if last, _ := w.Last(); last != "https://github.com/acme/widgets" {
		t.Errorf("Last: got %q", last)
	}
}

func TestWatcher_SurvivesPanicsAndErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls int
	var mu sync.Mutex
	trigger := func(ctx context.Context, sig Signal) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			panic("trigger blew up")
		}
	}

	feed := make(chanFeed, 8)
	loc := &fakeLocator{url: "/x/y"}
	_, stop := startWatcher(t, Config{Feed: feed, Locator: loc, Trigger: trigger, Quiescence: 30 * time.Millisecond})
	defer stop()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	loc.mu.Lock()
	loc.panic = true
	loc.mu.Unlock()
	feed <- Notification{}

	loc.mu.Lock()
	loc.panic = false
	loc.err = errors.New("target closed")
	loc.mu.Unlock()
	feed <- Notification{}

	feed <- Notification{Location: "/z/w"}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestPollFeed_EmitsLocation(t *testing.T) {
	defer goleak.VerifyNone(t)

	loc := &fakeLocator{url: "/acme/widgets"}
	p := NewPollFeed(loc, 10*time.Millisecond, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case n := <-p.Notifications():
		if n.Location != "/acme/widgets" {
			t.Errorf("Location: got %q", n.Location)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification from poll feed")
	}
}
