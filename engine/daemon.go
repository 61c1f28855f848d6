package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/augment/content"
	"github.com/hazyhaar/augment/dom"
	"github.com/hazyhaar/augment/internal/browser"
	"github.com/hazyhaar/augment/internal/sink"
	"github.com/hazyhaar/augment/internal/statusapi"
	"github.com/hazyhaar/augment/mount"
	"github.com/hazyhaar/augment/navwatch"
	"github.com/hazyhaar/augment/settings"
)

// Page is an opened host page.
type Page struct {
	Document dom.Document
	Feed     navwatch.Feed
	// Pump, if set, runs the feed until ctx is cancelled.
	Pump func(ctx context.Context) error
	// Close releases the page.
	Close func() error
}

// Opener opens host pages. The default opener drives Chrome.
type Opener interface {
	Start(ctx context.Context) error
	Open(ctx context.Context, cfg *Config, page PageConfig) (*Page, error)
	Close() error
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithOpener replaces the Chrome opener.
func WithOpener(o Opener) Option { return func(d *Daemon) { d.opener = o } }

// WithSinks adds visit sinks next to the configured ones.
func WithSinks(sinks ...sink.Sink) Option {
	return func(d *Daemon) { d.extra = append(d.extra, sinks...) }
}

// WithFetcher replaces the HTTP client to the service.
func WithFetcher(f mount.Fetcher) Option {
	return func(d *Daemon) { d.fetcher = f }
}

// Daemon runs one Session per configured page.
type Daemon struct {
	cfg     *Config
	logger  *slog.Logger
	opener  Opener
	extra   []sink.Sink
	fetcher mount.Fetcher

	mu       sync.RWMutex
	sessions []*Session
	base     *settings.BaseURL
}

// New creates a Daemon.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(d)
	}
	if d.opener == nil {
		d.opener = newChromeOpener(cfg, logger)
	}
	return d
}

// BaseURL returns the resolved service base URL, empty before Run.
func (d *Daemon) BaseURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.base == nil {
		return ""
	}
	return d.base.BaseURL()
}

// Sessions returns the running sessions.
func (d *Daemon) Sessions() []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Session(nil), d.sessions...)
}

// Status implements statusapi.Provider.
func (d *Daemon) Status() []statusapi.SessionStatus {
	sessions := d.Sessions()
	out := make([]statusapi.SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	return out
}

// Run opens every page, runs the sessions, the settings watcher and the
// status API, and blocks until ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	log := d.logger
	cfg := d.cfg

	base, store, err := d.openSettings(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	d.mu.Lock()
	d.base = base
	d.mu.Unlock()

	fetcher := d.fetcher
	if fetcher == nil {
		opts := []content.Option{content.WithLogger(log)}
		if cfg.Service.UserAgent != "" {
			opts = append(opts, content.WithUserAgent(cfg.Service.UserAgent))
		}
		fetcher = content.New(base, opts...)
	}

	target, err := cfg.MountTarget()
	if err != nil {
		return err
	}

	out, err := d.buildSinks()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warn("engine: close sinks", "error", cerr)
		}
	}()

	if err := d.opener.Start(ctx); err != nil {
		return fmt.Errorf("engine: start: %w", err)
	}
	defer d.opener.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var pages []*Page
	defer func() {
		for _, p := range pages {
			if p.Close == nil {
				continue
			}
			if cerr := p.Close(); cerr != nil {
				log.Debug("engine: close page", "error", cerr)
			}
		}
	}()

	for _, pc := range cfg.Pages {
		p, err := d.opener.Open(gctx, cfg, pc)
		if err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("engine: open %s: %w", pc.ID, err)
		}
		pages = append(pages, p)

		s := NewSession(SessionConfig{
			ID:         pc.ID,
			PageURL:    pc.URL,
			Document:   p.Document,
			Feed:       p.Feed,
			Fetcher:    fetcher,
			Service:    base,
			Target:     target,
			Quiescence: cfg.Debounce.Window,
			Sink:       out,
			Logger:     log,
		})
		d.mu.Lock()
		d.sessions = append(d.sessions, s)
		d.mu.Unlock()

		if p.Pump != nil {
			pump := p.Pump
			g.Go(func() error {
				if err := pump(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("engine: feed %s: %w", pc.ID, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			s.Run(gctx)
			return nil
		})
	}

	if store != nil {
		g.Go(func() error {
			base.Watch(gctx, cfg.Service.PollInterval, cfg.Service.Debounce)
			return nil
		})
	}

	if cfg.Status.Addr != "" {
		g.Go(func() error {
			return statusapi.Serve(gctx, cfg.Status.Addr, statusapi.NewRouter(d, log), log)
		})
	}

	log.Info("engine: running", "pages", len(cfg.Pages), "service", base.BaseURL())
	return g.Wait()
}

func (d *Daemon) openSettings(ctx context.Context) (*settings.BaseURL, *settings.Store, error) {
	svc := d.cfg.Service
	if svc.SettingsDB == "" {
		return settings.Static(svc.FallbackURL), nil, nil
	}

	store, err := settings.Open(svc.SettingsDB)
	if err != nil {
		return nil, nil, err
	}
	base := settings.NewBaseURL(store,
		settings.WithKey(svc.SettingsKey),
		settings.WithFallback(svc.FallbackURL),
		settings.WithLogger(d.logger),
	)
	if err := base.Refresh(ctx); err != nil {
		d.logger.Warn("engine: initial settings read failed, using fallback", "error", err)
	}
	return base, store, nil
}

func (d *Daemon) buildSinks() (*sink.Router, error) {
	var sinks []sink.Sink
	for _, sc := range d.cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookLogger(d.logger)))
		default:
			return nil, fmt.Errorf("engine: unknown sink type %q", sc.Type)
		}
	}
	sinks = append(sinks, d.extra...)
	return sink.NewRouter(d.logger, sinks...), nil
}

// chromeOpener opens pages as stealth Chrome tabs.
type chromeOpener struct {
	mgr    *browser.Manager
	logger *slog.Logger
}

func newChromeOpener(cfg *Config, logger *slog.Logger) *chromeOpener {
	mode, err := browser.ParseMode(cfg.Browser.Mode)
	if err != nil {
		logger.Warn("engine: falling back to headless", "error", err)
	}
	return &chromeOpener{
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Mode:             mode,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			Width:            cfg.Browser.Width,
			Height:           cfg.Browser.Height,
			Logger:           logger,
		}),
		logger: logger,
	}
}

func (o *chromeOpener) Start(ctx context.Context) error {
	_, err := o.mgr.Start(ctx)
	return err
}

func (o *chromeOpener) Open(ctx context.Context, cfg *Config, pc PageConfig) (*Page, error) {
	tab, err := browser.OpenTab(ctx, o.mgr, pc.ID, pc.URL)
	if err != nil {
		return nil, err
	}
	if err := tab.Viewport(cfg.Browser.Width, cfg.Browser.Height); err != nil {
		o.logger.Warn("engine: set viewport", "page", pc.ID, "error", err)
	}

	doc := tab.Document()
	p := &Page{Document: doc, Close: tab.Close}

	switch cfg.Feed.Mode {
	case FeedPoll:
		pf := navwatch.NewPollFeed(doc, cfg.Feed.PollInterval, o.logger)
		p.Feed = pf
		p.Pump = func(ctx context.Context) error {
			pf.Run(ctx)
			return nil
		}
	default:
		f := browser.NewFeed(tab.Page, o.logger)
		p.Feed = f
		p.Pump = f.Run
	}
	return p, nil
}

func (o *chromeOpener) Close() error { return o.mgr.Close() }
