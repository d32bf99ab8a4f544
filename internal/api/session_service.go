package api

import (
	"context"
	"errors"
	"fmt"

	"vigil/internal/services"
	"vigil/internal/session"
)

// ErrResultsNotReady is returned when results are requested for a session
// that has not completed.
var ErrResultsNotReady = errors.New("analysis results not ready")

// SessionReader abstracts the store reads needed for API queries.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	ListByPatient(ctx context.Context, patientID string) ([]*session.Session, error)
	List(ctx context.Context, filter session.Filter) ([]*session.Session, error)
}

// SessionService exposes read-only session operations returning API DTOs.
type SessionService struct {
	store SessionReader
}

// NewSessionService constructs a SessionService around the provided reader.
func NewSessionService(store SessionReader) *SessionService {
	if store == nil {
		return nil
	}
	return &SessionService{store: store}
}

// Describe returns the summary for one session.
func (s *SessionService) Describe(ctx context.Context, id string) (*SessionSummary, error) {
	if s == nil || s.store == nil {
		return nil, session.ErrNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromSession(sess)
	return &dto, nil
}

// Results returns the full result of a completed session. Sessions in any
// other status return ErrResultsNotReady.
func (s *SessionService) Results(ctx context.Context, id string) (*SessionDetail, error) {
	if s == nil || s.store == nil {
		return nil, session.ErrNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusCompleted {
		return nil, fmt.Errorf("%w: session %s is %s", ErrResultsNotReady, id, sess.Status)
	}
	dto := FromSessionDetail(sess)
	return &dto, nil
}

// Detail returns the session with whatever results it has accumulated.
func (s *SessionService) Detail(ctx context.Context, id string) (*SessionDetail, error) {
	if s == nil || s.store == nil {
		return nil, session.ErrNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromSessionDetail(sess)
	return &dto, nil
}

// ListByPatient returns a patient's sessions, newest first.
func (s *SessionService) ListByPatient(ctx context.Context, patientID string) ([]SessionSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	list, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return FromSessions(list), nil
}

// List returns sessions filtered by status.
func (s *SessionService) List(ctx context.Context, statuses []string, limit int) ([]SessionSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	filter := session.Filter{Limit: limit}
	for _, value := range statuses {
		parsed, ok := session.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", services.ErrValidation, value)
		}
		filter.Statuses = append(filter.Statuses, parsed)
	}
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromSessions(list), nil
}
