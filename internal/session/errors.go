package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no session has the requested identifier.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned by Create for a duplicate identifier.
	ErrExists = errors.New("session already exists")
	// ErrDuplicateStart is returned when a run is requested for a session
	// that already has one or has progressed past pending.
	ErrDuplicateStart = errors.New("session analysis already started")
	// ErrInvalidTransition is returned by Replace when the new snapshot would
	// move the status backwards, skip a stage, or modify a terminal record.
	ErrInvalidTransition = errors.New("invalid session status transition")
)

func transitionError(id string, from, to Status) error {
	return fmt.Errorf("%w: session %s %s -> %s", ErrInvalidTransition, id, from, to)
}
