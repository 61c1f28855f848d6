// Package dom defines the capability the augmentation engine uses to read and
// mutate a host page it does not control.
//
// The host page is a black box: the engine only asks where it is, whether an
// element exists, and asks for a rendered fragment or a stylesheet to be
// inserted. Two implementations exist: Memory (an x/net/html tree, used in
// tests and offline runs) and the rod-backed document in internal/browser.
package dom

import (
	"context"
	"errors"
)

// ErrNoHost is returned by Mount when the host selector matches nothing.
var ErrNoHost = errors.New("dom: host selector matched no element")

// Document is a foreign page the engine can inspect and augment.
type Document interface {
	// Location returns the current page URL (location.href).
	Location(ctx context.Context) (string, error)
	// HasElement reports whether an element with the given id exists.
	HasElement(ctx context.Context, id string) (bool, error)
	// HasSelector reports whether the CSS selector matches any element.
	HasSelector(ctx context.Context, selector string) (bool, error)
	// Mount inserts a rendered fragment into the host subtree.
	Mount(ctx context.Context, f Fragment) error
	// InjectStyle appends a <style> element with the given id to <head>.
	InjectStyle(ctx context.Context, id, css string) error
}

// Fragment is already-escaped HTML to insert inside the first element
// matching HostSelector. When AnchorSelector matches a descendant of the
// host, the fragment goes immediately before it; otherwise it is appended
// to the host.
type Fragment struct {
	HostSelector   string
	AnchorSelector string
	HTML           string
}
