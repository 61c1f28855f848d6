// Package navwatch infers virtual page changes in a host single-page
// application that rewrites itself without ever reloading.
//
// The host exposes no navigation API, so the watcher listens to mutation
// notifications from a Feed, compares the current location with the last one
// it recorded, and triggers the mount cycle once the page has been quiet for
// the quiescence window. How notifications are produced (an injected
// MutationObserver, a timer poll, a host hook) is the Feed's business.
package navwatch

import (
	"context"
	"sync"
	"time"
)

// Signal is a detected virtual navigation.
type Signal struct {
	URL        string    `json:"url"`
	ObservedAt time.Time `json:"observed_at"`
}

// Notification is one batch of host DOM mutations. Location is the page URL
// at delivery time if the feed knows it, empty otherwise.
type Notification struct {
	Location string
	At       time.Time
}

// Feed emits mutation notifications for one document.
type Feed interface {
	Notifications() <-chan Notification
}

// Locator reads the current page URL.
type Locator interface {
	Location(ctx context.Context) (string, error)
}

// LocationCell holds the last observed location. The watcher loop is its
// only writer; readers may be on any goroutine.
type LocationCell struct {
	mu  sync.RWMutex
	url string
	set bool
}

// Load returns the stored location and whether one was ever stored.
func (c *LocationCell) Load() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url, c.set
}

// Swap stores url and reports whether it differs from the previous value.
// The first store always counts as a change.
func (c *LocationCell) Swap(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set && c.url == url {
		return false
	}
	c.url = url
	c.set = true
	return true
}
