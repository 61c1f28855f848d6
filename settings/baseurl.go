package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// APIURLKey is the storage key of the service base URL.
	APIURLKey = "repoboard_api_url"
	// FallbackAPIURL is used while the key is unset or invalid.
	FallbackAPIURL = "http://localhost:8000"
)

// ErrUnsafeScheme is returned for base URLs that are not http or https.
var ErrUnsafeScheme = errors.New("settings: only http and https base URLs are allowed")

// BaseURL is the current service base URL, refreshed from a Store.
// It satisfies content.BaseURLSource.
type BaseURL struct {
	store    *Store
	key      string
	fallback string
	logger   *slog.Logger
	current  atomic.Value // string
	reloads  atomic.Int64
}

// Option configures a BaseURL.
type Option func(*BaseURL)

// WithKey overrides APIURLKey.
func WithKey(key string) Option { return func(b *BaseURL) { b.key = key } }

// WithFallback overrides FallbackAPIURL.
func WithFallback(u string) Option { return func(b *BaseURL) { b.fallback = u } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(b *BaseURL) { b.logger = l } }

// NewBaseURL creates a BaseURL reading from store. A nil store yields the
// fallback forever.
func NewBaseURL(store *Store, opts ...Option) *BaseURL {
	b := &BaseURL{
		store:    store,
		key:      APIURLKey,
		fallback: FallbackAPIURL,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.current.Store(b.fallback)
	return b
}

// Static returns a BaseURL fixed to u (fallback when u is empty).
func Static(u string) *BaseURL {
	if u == "" {
		return NewBaseURL(nil)
	}
	return NewBaseURL(nil, WithFallback(u))
}

// BaseURL returns the last resolved value.
func (b *BaseURL) BaseURL() string { return b.current.Load().(string) }

// Reloads returns how many refreshes completed.
func (b *BaseURL) Reloads() int64 { return b.reloads.Load() }

// Refresh reads the key from storage. Unset or invalid values resolve to the
// fallback; only storage errors are returned, and they keep the last value.
func (b *BaseURL) Refresh(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	v, ok, err := b.store.Get(ctx, b.key)
	if err != nil {
		return err
	}

	resolved := b.fallback
	if ok {
		if err := ValidateBaseURL(v); err != nil {
			b.logger.Warn("settings: ignoring invalid base URL", "key", b.key, "value", v, "error", err)
		} else {
			resolved = strings.TrimRight(v, "/")
		}
	}

	if old := b.BaseURL(); old != resolved {
		b.logger.Info("settings: base URL changed", "old", old, "new", resolved)
	}
	b.current.Store(resolved)
	b.reloads.Add(1)
	return nil
}

// Watch refreshes once, then polls data_version every interval and
// refreshes when it has been stable for debounce after a change. It blocks
// until ctx is cancelled.
func (b *BaseURL) Watch(ctx context.Context, interval, debounce time.Duration) {
	if b.store == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	log := b.logger

	if err := b.Refresh(ctx); err != nil {
		log.Warn("settings: initial refresh failed", "error", err)
	}
	version, err := b.store.DataVersion(ctx)
	if err != nil {
		log.Warn("settings: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			cur, err := b.store.DataVersion(ctx)
			if err != nil {
				log.Warn("settings: version check failed", "error", err)
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if debounce <= 0 {
				b.reload(ctx, &version, &pending)
				continue
			}
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(debounce)
			} else {
				debounceTimer.Reset(debounce)
			}
			debounceC = debounceTimer.C

		case <-debounceC:
			debounceC = nil
			b.reload(ctx, &version, &pending)
		}
	}
}

// reload advances version only when the refresh succeeded, so a failed read
// is retried on the next change.
func (b *BaseURL) reload(ctx context.Context, version, pending *int64) {
	if *pending < 0 {
		return
	}
	if err := b.Refresh(ctx); err != nil {
		b.logger.Error("settings: refresh failed", "error", err)
		*pending = -1
		return
	}
	*version = *pending
	*pending = -1
}

// ValidateBaseURL accepts absolute http(s) URLs with a host.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("settings: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return fmt.Errorf("settings: URL has no host")
	}
	return nil
}
