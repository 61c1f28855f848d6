// Package sink delivers visit transitions to output backends.
package sink

import (
	"context"

	"github.com/hazyhaar/augment/mount"
)

// Sink receives every visit transition of every session.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Event is one visit transition tagged with the session it belongs to.
type Event struct {
	Session string      `json:"session"`
	Visit   mount.Visit `json:"visit"`
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
