// Package mount owns the idempotent render cycle of the similar-items panel
// inside a host page.
//
// Every visit bumps a generation counter. A fetch result is rendered only if
// its generation is still the current one when it resolves, checked under
// the controller lock right before the DOM is touched: a slow answer for
// page A never lands on page B. Nothing in this package returns an error to
// the host; every failure degrades to "nothing injected".
package mount

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/augment/content"
	"github.com/hazyhaar/augment/dom"
)

// Fetcher retrieves similar items for a query.
type Fetcher interface {
	Search(ctx context.Context, query string, limit int) ([]content.SearchResult, error)
}

// Config for creating a Controller.
type Config struct {
	Document dom.Document
	Fetcher  Fetcher
	Target   Target
	// Service provides the URL of the outbound "View on RepoBoard" link.
	Service content.BaseURLSource
	// Observer, if set, receives every visit transition.
	Observer func(Visit)
	Logger   *slog.Logger
	// NewID overrides UUIDv7 visit ids.
	NewID func() string
	Now   func() time.Time
}

// Controller is the single writer of the panel and its stylesheet.
type Controller struct {
	doc      dom.Document
	fetch    Fetcher
	target   Target
	service  content.BaseURLSource
	observer func(Visit)
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time

	mu      sync.Mutex
	gen     uint64
	current Visit
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Service == nil {
		cfg.Service = content.StaticBase("")
	}
	return &Controller{
		doc:      cfg.Document,
		fetch:    cfg.Fetcher,
		target:   cfg.Target.withDefaults(),
		service:  cfg.Service,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		newID:    cfg.NewID,
		now:      cfg.Now,
	}
}

// Target returns the effective target, defaults applied.
func (c *Controller) Target() Target { return c.target }

// Current returns the authoritative visit.
func (c *Controller) Current() Visit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Generation returns the current generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Run executes one mount cycle for pageURL. It blocks for the duration of
// the fetch and may be called concurrently; only the most recent call can
// render.
func (c *Controller) Run(ctx context.Context, pageURL string) Outcome {
	return c.RunVisit(ctx, c.Begin(pageURL))
}

// Begin claims the next generation for pageURL and makes it the current
// visit. Callers that run the cycle on another goroutine call Begin first,
// so generations follow detection order rather than scheduling order.
func (c *Controller) Begin(pageURL string) Visit {
	now := c.now()
	c.mu.Lock()
	c.gen++
	v := Visit{
		ID:         c.newID(),
		URL:        pageURL,
		Generation: c.gen,
		State:      StateIdle,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	c.current = v
	c.mu.Unlock()
	c.emit(v)
	return v
}

// RunVisit completes the cycle of a visit returned by Begin. A visit that
// lost its generation in the meantime ends superseded once its fetch
// resolves.
func (c *Controller) RunVisit(ctx context.Context, v Visit) (out Outcome) {
	pageURL := v.URL
	log := c.logger.With("url", pageURL, "generation", v.Generation)

	defer func() {
		if r := recover(); r != nil {
			log.Error("mount: run panicked", "panic", r)
			out = c.settle(v.with(StateFailed, OutcomeFailed, fmt.Errorf("panic: %v", r), c.now()))
		}
	}()

	query, ok := c.target.Query(pageURL)
	if !ok {
		log.Debug("mount: page shape not applicable")
		return c.settle(v.with(StateIdle, OutcomeNotApplicable, nil, c.now()))
	}

	mounted, err := c.doc.HasElement(ctx, c.target.MarkerID)
	if err != nil {
		log.Warn("mount: check marker", "error", err)
		return c.settle(v.with(StateFailed, OutcomeFailed, err, c.now()))
	}
	if mounted {
		log.Debug("mount: already mounted")
		return c.settle(v.with(StateIdle, OutcomeAlreadyMounted, nil, c.now()))
	}

	host, err := c.doc.HasSelector(ctx, c.target.HostSelector)
	if err != nil {
		log.Warn("mount: locate host", "error", err)
		return c.settle(v.with(StateFailed, OutcomeFailed, err, c.now()))
	}
	if !host {
		log.Debug("mount: host anchor absent", "selector", c.target.HostSelector)
		return c.settle(v.with(StateIdle, OutcomeTargetAbsent, nil, c.now()))
	}

	v = v.with(StateFetching, OutcomePending, nil, c.now())
	c.settle(v)

	items, fetchErr := c.fetch.Search(ctx, query, c.target.MaxItems)

	return c.settle(c.commit(ctx, v, items, fetchErr, log))
}

// commit decides, under the lock, whether the fetch result may touch the
// DOM and applies it.
func (c *Controller) commit(ctx context.Context, v Visit, items []content.SearchResult, fetchErr error, log *slog.Logger) Visit {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.Generation != c.gen {
		log.Debug("mount: stale result discarded", "current_generation", c.gen)
		return v.with(StateSuperseded, OutcomeSuperseded, nil, c.now())
	}
	if fetchErr != nil {
		log.Warn("mount: fetch failed", "error", fetchErr)
		return v.with(StateFailed, OutcomeFailed, fetchErr, c.now())
	}
	if len(items) == 0 {
		log.Debug("mount: no similar items")
		return v.with(StateEmpty, OutcomeEmpty, nil, c.now())
	}

	// The host may have re-rendered while the fetch was in flight.
	mounted, err := c.doc.HasElement(ctx, c.target.MarkerID)
	if err != nil {
		log.Warn("mount: re-check marker", "error", err)
		return v.with(StateFailed, OutcomeFailed, err, c.now())
	}
	if mounted {
		return v.with(StateIdle, OutcomeAlreadyMounted, nil, c.now())
	}
	host, err := c.doc.HasSelector(ctx, c.target.HostSelector)
	if err != nil {
		log.Warn("mount: re-locate host", "error", err)
		return v.with(StateFailed, OutcomeFailed, err, c.now())
	}
	if !host {
		return v.with(StateIdle, OutcomeTargetAbsent, nil, c.now())
	}

	markup, n, err := renderPanel(c.target.MarkerID, c.service.BaseURL(), items, c.target.MaxItems)
	if err != nil {
		log.Error("mount: render", "error", err)
		return v.with(StateFailed, OutcomeFailed, err, c.now())
	}

	if err := c.ensureStyle(ctx); err != nil {
		log.Warn("mount: inject stylesheet", "error", err)
		return v.with(StateFailed, OutcomeFailed, err, c.now())
	}

	err = c.doc.Mount(ctx, dom.Fragment{
		HostSelector:   c.target.HostSelector,
		AnchorSelector: c.target.InsertionAnchorSelector,
		HTML:           markup,
	})
	if err != nil {
		log.Warn("mount: insert panel", "error", err)
		return v.with(StateFailed, OutcomeFailed, err, c.now())
	}

	v.Items = n
	log.Info("mount: panel mounted", "items", n)
	return v.with(StateMounted, OutcomeMounted, nil, c.now())
}

// ensureStyle injects the stylesheet unless the document already has it.
func (c *Controller) ensureStyle(ctx context.Context) error {
	has, err := c.doc.HasElement(ctx, c.target.StyleID)
	if err != nil || has {
		return err
	}
	return c.doc.InjectStyle(ctx, c.target.StyleID, stylesheet)
}

// settle records v if it is still authoritative and reports it.
func (c *Controller) settle(v Visit) Outcome {
	c.mu.Lock()
	if c.current.Generation == v.Generation {
		c.current = v
	}
	c.mu.Unlock()
	c.emit(v)
	return v.Outcome
}

func (c *Controller) emit(v Visit) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("mount: observer panicked", "panic", r)
		}
	}()
	c.observer(v)
}
