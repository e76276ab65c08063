package router

import "errors"

var (
	ErrNilParameter = errors.New("nil parameter")
	ErrNotFound     = errors.New("not found")

	// ErrTransitionRejected means a route's entry check refused the
	// navigation; the user has been sent elsewhere.
	ErrTransitionRejected = errors.New("transition rejected")
)
