package cachespec

import "errors"

var (
	// ErrNotFound is returned when a key is absent or expired. Absence is
	// a normal outcome; callers branch on this instead of inspecting
	// messages.
	ErrNotFound = errors.New("key not found")

	// ErrCASConflict is returned when an optimistic update keeps losing
	// the race against concurrent writers.
	ErrCASConflict = errors.New("concurrent update conflict")
)
