package browser

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/augment/navwatch"
)

// BindingName is the page-side function the mutation observer calls.
const BindingName = "__augment_binding"

//go:embed feed.js
var feedJS string

// Feed is a navwatch.Feed fed by a MutationObserver injected into the page.
// Each observer callback reports location.href through a CDP binding.
type Feed struct {
	page   *rod.Page
	logger *slog.Logger
	ch     chan navwatch.Notification
}

var _ navwatch.Feed = (*Feed)(nil)

// NewFeed creates a Feed for page. Call Run to start delivery.
func NewFeed(page *rod.Page, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		page:   page,
		logger: logger,
		ch:     make(chan navwatch.Notification, 64),
	}
}

// Notifications implements navwatch.Feed.
func (f *Feed) Notifications() <-chan navwatch.Notification { return f.ch }

// Run installs the binding and observer, then delivers notifications until
// ctx is cancelled. The observer is re-installed on every full document
// load, so a hard reload keeps feeding the same channel.
func (f *Feed) Run(ctx context.Context) error {
	page := f.page.Context(ctx)

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	remove, err := page.EvalOnNewDocument("(" + feedJS + ")()")
	if err != nil {
		return fmt.Errorf("browser: install observer: %w", err)
	}
	defer func() {
		if err := remove(); err != nil {
			f.logger.Debug("browser: remove observer script", "error", err)
		}
	}()

	wait := page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		f.deliver(navwatch.Notification{Location: e.Payload, At: time.Now()})
	})

	if _, err := page.Eval(feedJS); err != nil {
		f.logger.Warn("browser: inject observer into current document", "error", err)
	}
	f.logger.Debug("browser: mutation feed attached")

	wait()
	return nil
}

// deliver never blocks the CDP event loop. On a full buffer the oldest
// notification is dropped so the newest location always gets through.
func (f *Feed) deliver(n navwatch.Notification) {
	for {
		select {
		case f.ch <- n:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}
