// Package engine wires the augmentation pipeline for each observed host
// page: a navwatch.Watcher detects virtual navigations and a
// mount.Controller renders the similar-items panel for each one.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/augment/content"
	"github.com/hazyhaar/augment/dom"
	"github.com/hazyhaar/augment/internal/sink"
	"github.com/hazyhaar/augment/internal/statusapi"
	"github.com/hazyhaar/augment/mount"
	"github.com/hazyhaar/augment/navwatch"
)

const (
	// eventBuffer bounds visit events waiting for the sink.
	eventBuffer = 256
	// defaultShutdownGrace bounds sink delivery once the session is stopping.
	defaultShutdownGrace = 5 * time.Second
)

// SessionConfig for creating a Session.
type SessionConfig struct {
	ID         string
	PageURL    string
	Document   dom.Document
	Feed       navwatch.Feed
	Fetcher    mount.Fetcher
	Service    content.BaseURLSource
	Target     mount.Target
	Quiescence time.Duration
	Sink       sink.Sink
	// ShutdownGrace bounds pending sink deliveries after cancellation.
	// Events still queued when it expires are dropped.
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

// Session augments one host page for as long as its context lives.
type Session struct {
	id      string
	pageURL string
	watcher *navwatch.Watcher
	ctrl    *mount.Controller
	sink    sink.Sink
	grace   time.Duration
	logger  *slog.Logger

	events chan sink.Event
	runs   sync.WaitGroup
}

// NewSession creates a Session. Run starts it.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	log := cfg.Logger.With("session", cfg.ID)

	s := &Session{
		id:      cfg.ID,
		pageURL: cfg.PageURL,
		sink:    cfg.Sink,
		grace:   cfg.ShutdownGrace,
		logger:  log,
		events:  make(chan sink.Event, eventBuffer),
	}
	s.ctrl = mount.New(mount.Config{
		Document: cfg.Document,
		Fetcher:  cfg.Fetcher,
		Target:   cfg.Target,
		Service:  cfg.Service,
		Observer: s.record,
		Logger:   log,
	})
	s.watcher = navwatch.New(navwatch.Config{
		Feed:       cfg.Feed,
		Locator:    cfg.Document,
		Trigger:    s.trigger,
		Quiescence: cfg.Quiescence,
		Logger:     log,
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Current returns the authoritative visit of the page.
func (s *Session) Current() mount.Visit { return s.ctrl.Current() }

// Status reports the session for the status API.
func (s *Session) Status() statusapi.SessionStatus {
	loc, _ := s.watcher.Last()
	return statusapi.SessionStatus{
		Session:  s.id,
		Page:     s.pageURL,
		Location: loc,
		Fired:    s.watcher.Fired(),
		Visit:    s.ctrl.Current(),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight mount runs
// and for pending sink deliveries, the latter for at most the shutdown
// grace.
func (s *Session) Run(ctx context.Context) {
	sendCtx, stopSending := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSending()

	drained := make(chan struct{})
	go s.drain(sendCtx, drained)

	s.logger.Info("engine: session started", "page", s.pageURL)
	s.watcher.Run(ctx)

	grace := time.AfterFunc(s.grace, stopSending)
	defer grace.Stop()

	s.Wait()
	close(s.events)
	<-drained
	s.logger.Info("engine: session stopped", "fired", s.watcher.Fired())
}

// Wait blocks until every triggered mount run has returned.
func (s *Session) Wait() { s.runs.Wait() }

// trigger claims the visit on the watcher loop and runs the rest of the
// cycle off it: the fetch may take seconds and the watcher must keep
// observing meanwhile.
func (s *Session) trigger(ctx context.Context, sig navwatch.Signal) {
	v := s.ctrl.Begin(sig.URL)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		out := s.ctrl.RunVisit(ctx, v)
		s.logger.Debug("engine: mount run finished", "url", sig.URL, "generation", v.Generation, "outcome", out)
	}()
}

// record is the controller observer. It must not block: the sink may be a
// slow webhook.
func (s *Session) record(v mount.Visit) {
	if s.sink == nil {
		return
	}
	select {
	case s.events <- sink.Event{Session: s.id, Visit: v}:
	default:
		s.logger.Warn("engine: visit event dropped", "visit", v.ID, "state", v.State)
	}
}

// drain delivers events until the channel closes. Once ctx is done the
// remaining events are counted and dropped.
func (s *Session) drain(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	dropped := 0
	for ev := range s.events {
		if ctx.Err() != nil {
			dropped++
			continue
		}
		if err := s.sink.Send(ctx, ev); err != nil {
			s.logger.Warn("engine: sink delivery failed", "visit", ev.Visit.ID, "error", err)
		}
	}
	if dropped > 0 {
		s.logger.Warn("engine: shutdown grace expired, visit events dropped", "dropped", dropped)
	}
}
