package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/augment/content"
	"github.com/hazyhaar/augment/dom"
	"github.com/hazyhaar/augment/internal/sink"
	"github.com/hazyhaar/augment/mount"
	"github.com/hazyhaar/augment/navwatch"
)

const repoPage = `<!DOCTYPE html><html><head></head><body>
<div class="Layout-sidebar">
  <div class="BorderGrid-row" id="about">About</div>
</div>
</body></html>`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mapFetcher struct {
	mu      sync.Mutex
	results map[string][]content.SearchResult
	queries []string
}

func (f *mapFetcher) Search(_ context.Context, query string, _ int) ([]content.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

func (f *mapFetcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func item(name string) content.SearchResult {
	return content.SearchResult{Repo: content.Repo{URL: "https://github.com/" + name, FullName: name}}
}

type eventLog struct {
	mu     sync.Mutex
	events []sink.Event
}

func (l *eventLog) Send(_ context.Context, ev sink.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) Close() error { return nil }

func (l *eventLog) mounted() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var urls []string
	for _, ev := range l.events {
		if ev.Visit.State == mount.StateMounted {
			urls = append(urls, ev.Visit.URL)
		}
	}
	return urls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_MountsAndFollowsNavigation(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc, err := dom.NewMemory("https://github.com/acme/widgets", repoPage)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	fetch := &mapFetcher{results: map[string][]content.SearchResult{
		"acme/widgets": {item("x/one"), item("x/two")},
		"acme/gadgets": {item("y/three")},
	}}
	events := &eventLog{}

	s := NewSession(SessionConfig{
		ID:         "github",
		PageURL:    "https://github.com/acme/widgets",
		Document:   doc,
		Feed:       doc,
		Fetcher:    fetch,
		Target:     mount.GitHubSidebar(),
		Quiescence: 20 * time.Millisecond,
		Sink:       events,
		Logger:     quiet(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, "initial mount", func() bool { return doc.Count("#repoboard-similar") == 1 })
	if got := doc.Count("#repoboard-similar .repoboard-repo-item"); got != 2 {
		t.Errorf("rows: got %d, want 2", got)
	}

	// The host re-renders its sidebar on client-side navigation, dropping
	// the panel with it.
	if _, err := doc.SetInner(".Layout-sidebar", `<div class="BorderGrid-row" id="about">About</div>`); err != nil {
		t.Fatalf("SetInner: %v", err)
	}
	doc.Navigate("https://github.com/acme/gadgets")

	waitFor(t, "remount", func() bool { return s.Current().URL == "https://github.com/acme/gadgets" && s.Current().State == mount.StateMounted })
	if got := doc.Count("#repoboard-similar"); got != 1 {
		t.Errorf("markers: got %d, want 1", got)
	}
	if got := doc.Attrs("#repoboard-similar a.text-bold", "href"); len(got) != 1 || got[0] != "https://github.com/y/three" {
		t.Errorf("hrefs: %v", got)
	}

	st := s.Status()
	if st.Session != "github" || st.Location != "https://github.com/acme/gadgets" || st.Fired < 2 {
		t.Errorf("status: %+v", st)
	}

	cancel()
	<-done

	if got := events.mounted(); len(got) != 2 || got[1] != "https://github.com/acme/gadgets" {
		t.Errorf("mounted events: %v", got)
	}
	if q := fetch.Queries(); len(q) != 2 {
		t.Errorf("queries: %v", q)
	}
}

func TestSession_RepeatedNotificationsDoNotRefetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc, err := dom.NewMemory("https://github.com/acme/widgets", repoPage)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	fetch := &mapFetcher{results: map[string][]content.SearchResult{
		"acme/widgets": {item("x/one")},
	}}
	s := NewSession(SessionConfig{
		ID:         "github",
		Document:   doc,
		Feed:       doc,
		Fetcher:    fetch,
		Target:     mount.GitHubSidebar(),
		Quiescence: 10 * time.Millisecond,
		Logger:     quiet(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, "initial mount", func() bool { return doc.Count("#repoboard-similar") == 1 })
	for i := 0; i < 10; i++ {
		doc.Navigate("https://github.com/acme/widgets")
	}
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if q := fetch.Queries(); len(q) != 1 {
		t.Errorf("queries: got %v, want one", q)
	}
	if got := doc.Count("#repoboard-similar"); got != 1 {
		t.Errorf("markers: got %d, want 1", got)
	}
}

// stuckSink blocks every delivery until its context ends.
type stuckSink struct {
	mu      sync.Mutex
	calls   int
	aborted int
}

func (s *stuckSink) Send(ctx context.Context, _ sink.Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	s.aborted++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *stuckSink) Close() error { return nil }

func (s *stuckSink) counts() (calls, aborted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.aborted
}

func TestSession_StuckSinkDoesNotBlockShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc, err := dom.NewMemory("https://github.com/acme/widgets", repoPage)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	out := &stuckSink{}
	s := NewSession(SessionConfig{
		ID:            "github",
		Document:      doc,
		Feed:          doc,
		Fetcher:       &mapFetcher{results: map[string][]content.SearchResult{"acme/widgets": {item("x/one")}}},
		Target:        mount.GitHubSidebar(),
		Quiescence:    10 * time.Millisecond,
		Sink:          out,
		ShutdownGrace: 50 * time.Millisecond,
		Logger:        quiet(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, "initial mount", func() bool { return doc.Count("#repoboard-similar") == 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel with a stuck sink")
	}
	// Only the first event reached the sink; the rest were dropped once
	// the grace expired.
	if calls, aborted := out.counts(); calls != 1 || aborted != 1 {
		t.Errorf("sink: calls=%d aborted=%d, want 1 and 1", calls, aborted)
	}
}

func TestSession_GenerationsFollowDetectionOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc, err := dom.NewMemory("https://github.com/acme/widgets", repoPage)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	s := NewSession(SessionConfig{
		ID:       "github",
		Document: doc,
		Feed:     doc,
		Fetcher: &mapFetcher{results: map[string][]content.SearchResult{
			"acme/widgets": {item("x/one")},
			"acme/gadgets": {item("y/two")},
		}},
		Target: mount.GitHubSidebar(),
		Logger: quiet(),
	})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		s.trigger(ctx, navwatch.Signal{URL: "https://github.com/acme/widgets"})
		s.trigger(ctx, navwatch.Signal{URL: "https://github.com/acme/gadgets"})
		// The later detection is current as soon as trigger returns.
		if cur := s.Current(); cur.URL != "https://github.com/acme/gadgets" {
			t.Fatalf("round %d: current visit %s", i, cur.URL)
		}
		s.Wait()
		if cur := s.Current(); cur.URL != "https://github.com/acme/gadgets" || cur.Generation != uint64(2*i+2) {
			t.Fatalf("round %d: settled visit %+v", i, cur)
		}
	}
}
