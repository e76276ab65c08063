// Package browser defines the small set of host capabilities the
// authentication core depends on: key/value storage, the address bar, page
// and in-app navigation, and delayed callbacks.  A real host (see
// cmd/portal) and the in-memory fakes in this package both satisfy them.
package browser

import (
	"context"
	"time"
)

// Storage is a string key/value store.  Durable storage survives page
// reloads and is scoped to an origin; tab storage is scoped to a single
// browsing session.  Implementations must treat a failed read as a missing
// entry.
type Storage interface {
	// GetItem returns the value stored for key and whether it exists.
	GetItem(key string) (string, bool)

	// SetItem stores value under key.
	SetItem(key, value string) error

	// RemoveItem deletes key.  Removing a missing key is not an error.
	RemoveItem(key string) error
}

// Location is a read-only view of the address bar.
type Location interface {
	// Href is the full address, including the fragment.
	Href() string

	// Origin is scheme://host[:port] of the address.
	Origin() string

	// Hash is the fragment including its leading "#", or "" when there is
	// none.
	Hash() string
}

// Redirector performs full-page navigations: the current page is unloaded
// and the destination is loaded from scratch.
type Redirector interface {
	Redirect(ctx context.Context, rawURL string) error
}

// Navigator performs in-app route changes to a named view.  An error means
// the transition did not complete.
type Navigator interface {
	Go(ctx context.Context, view string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, view string) error

// Go implements Navigator.Go.
func (f NavigatorFunc) Go(ctx context.Context, view string) error { return f(ctx, view) }

// Timer is a pending delayed callback.
type Timer interface {
	// Stop prevents the callback from running.  It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay and is the host's source of time.
// Callbacks never run concurrently with each other.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}
