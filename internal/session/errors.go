package session

import "errors"

var (
	// ErrNotFound indicates an unknown or deleted session id.
	ErrNotFound = errors.New("unknown session")

	// ErrImageLimit indicates the session is already at its image capacity.
	ErrImageLimit = errors.New("session image limit exceeded")

	// ErrClosed indicates the session no longer accepts uploads.
	ErrClosed = errors.New("session is closed")
)
