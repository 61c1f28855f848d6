package navwatch

import (
	"context"
	"log/slog"
	"time"
)

// PollFeed is a Feed that reads the location on a fixed interval, for hosts
// where no mutation stream can be attached.
type PollFeed struct {
	locator  Locator
	interval time.Duration
	logger   *slog.Logger
	ch       chan Notification
}

// NewPollFeed creates a PollFeed. A non-positive interval means 500ms.
func NewPollFeed(locator Locator, interval time.Duration, logger *slog.Logger) *PollFeed {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollFeed{
		locator:  locator,
		interval: interval,
		logger:   logger,
		ch:       make(chan Notification, 16),
	}
}

// Notifications implements Feed.
func (p *PollFeed) Notifications() <-chan Notification { return p.ch }

// Run polls until ctx is cancelled.
func (p *PollFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			loc, err := p.locator.Location(ctx)
			if err != nil {
				p.logger.Debug("navwatch: poll location", "error", err)
				continue
			}
			select {
			case p.ch <- Notification{Location: loc, At: now}:
			default:
			}
		}
	}
}
