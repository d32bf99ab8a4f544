package session

import (
	"context"
	"strings"
	"time"
)

// Store is the session persistence contract. Implementations never perform
// partial field updates: Replace swaps the whole record atomically.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Replace(ctx context.Context, s *Session) error
	ListByPatient(ctx context.Context, patientID string) ([]*Session, error)
	List(ctx context.Context, filter Filter) ([]*Session, error)
	// DeleteTerminalBefore removes completed or failed sessions last updated
	// before cutoff and reports how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

func validateNew(s *Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return errInvalid("session id is required")
	}
	if strings.TrimSpace(s.VideoRef) == "" {
		return errInvalid("video reference is required")
	}
	if _, ok := ParseStatus(string(s.Status)); !ok {
		return errInvalid("unknown status " + string(s.Status))
	}
	return nil
}

type invalidError string

func (e invalidError) Error() string { return "invalid session: " + string(e) }

func errInvalid(msg string) error { return invalidError(msg) }

func stamp(s *Session, now time.Time) {
	now = now.UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
