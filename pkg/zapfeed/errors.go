package zapfeed

import "errors"

var (
	// ErrInvalidEvent indicates that a relay event does not satisfy receipt invariants.
	ErrInvalidEvent = errors.New("zapfeed: invalid receipt event")
	// ErrInvalidConfig indicates a missing or invalid relay list or view configuration.
	ErrInvalidConfig = errors.New("zapfeed: invalid feed configuration")
	// ErrDecodeTarget indicates a malformed feed target identifier.
	ErrDecodeTarget = errors.New("zapfeed: malformed feed target")
	// ErrViewActive indicates that a view id already has a live subscription.
	ErrViewActive = errors.New("zapfeed: view already active")
	// ErrViewUnknown indicates a lookup for a view id without a live session.
	ErrViewUnknown = errors.New("zapfeed: view not active")
)
