package session

import (
	"fmt"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/hashicorp/go-multierror"
)

// Tab storage keys of the callback handoff.
const (
	HandoffFragmentKey    = "auth0_callback_hash"
	HandoffProcessKey     = "auth0_should_process_callback"
	HandoffTimestampKey   = "auth0_callback_timestamp"
	HandoffOriginalURLKey = "auth0_original_url"

	handoffProcessValue = "true"
)

// Handoff is the packet the callback relay leaves for the session manager.
type Handoff struct {
	// Fragment is the provider redirect fragment, including its leading "#".
	Fragment string

	// ShouldProcess is a one-shot flag; it's only true when the stored
	// value is exactly "true".
	ShouldProcess bool

	// Timestamp and OriginalURL are diagnostic only.
	Timestamp   time.Time
	OriginalURL string
}

// HandoffStore reads and writes a Handoff in tab scoped storage.
type HandoffStore struct {
	storage browser.Storage
}

// NewHandoffStore creates a HandoffStore over tab storage.
func NewHandoffStore(s browser.Storage) (*HandoffStore, error) {
	const op = "session.NewHandoffStore"
	if s == nil {
		return nil, fmt.Errorf("%s: storage is nil: %w", op, ErrNilParameter)
	}
	return &HandoffStore{storage: s}, nil
}

// Write stores h.  The fragment and flag are written before the diagnostic
// entries, and a failure writing either of them is returned.
func (hs *HandoffStore) Write(h Handoff) error {
	const op = "session.(HandoffStore).Write"
	if h.Fragment == "" {
		return fmt.Errorf("%s: fragment is empty: %w", op, ErrInvalidParameter)
	}
	if err := hs.storage.SetItem(HandoffFragmentKey, h.Fragment); err != nil {
		return fmt.Errorf("%s: unable to write fragment: %w", op, err)
	}
	if h.ShouldProcess {
		if err := hs.storage.SetItem(HandoffProcessKey, handoffProcessValue); err != nil {
			return fmt.Errorf("%s: unable to write process flag: %w", op, err)
		}
	}
	var diagErr *multierror.Error
	if !h.Timestamp.IsZero() {
		if err := hs.storage.SetItem(HandoffTimestampKey, h.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			diagErr = multierror.Append(diagErr, err)
		}
	}
	if h.OriginalURL != "" {
		if err := hs.storage.SetItem(HandoffOriginalURLKey, h.OriginalURL); err != nil {
			diagErr = multierror.Append(diagErr, err)
		}
	}
	if err := diagErr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: unable to write diagnostics: %w", op, err)
	}
	return nil
}

// Read returns the stored Handoff and whether a fragment is stored.
func (hs *HandoffStore) Read() (Handoff, bool) {
	var h Handoff
	h.Fragment, _ = hs.storage.GetItem(HandoffFragmentKey)
	if v, ok := hs.storage.GetItem(HandoffProcessKey); ok && v == handoffProcessValue {
		h.ShouldProcess = true
	}
	if v, ok := hs.storage.GetItem(HandoffTimestampKey); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			h.Timestamp = ts
		}
	}
	h.OriginalURL, _ = hs.storage.GetItem(HandoffOriginalURLKey)
	return h, h.Fragment != ""
}

// ShouldProcess reports whether the one-shot process flag is set.
func (hs *HandoffStore) ShouldProcess() bool {
	v, ok := hs.storage.GetItem(HandoffProcessKey)
	return ok && v == handoffProcessValue
}

// HasFragment reports whether a fragment is stored.
func (hs *HandoffStore) HasFragment() bool {
	v, ok := hs.storage.GetItem(HandoffFragmentKey)
	return ok && v != ""
}

// ClearFlag removes the process flag.
func (hs *HandoffStore) ClearFlag() error {
	const op = "session.(HandoffStore).ClearFlag"
	if err := hs.storage.RemoveItem(HandoffProcessKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearFragment removes the stored fragment.
func (hs *HandoffStore) ClearFragment() error {
	const op = "session.(HandoffStore).ClearFragment"
	if err := hs.storage.RemoveItem(HandoffFragmentKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Clear removes the fragment and the process flag.  Diagnostic entries
// are left for inspection.
func (hs *HandoffStore) Clear() error {
	const op = "session.(HandoffStore).Clear"
	var retErr *multierror.Error
	if err := hs.ClearFragment(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if err := hs.ClearFlag(); err != nil {
		retErr = multierror.Append(retErr, err)
	}
	if err := retErr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
