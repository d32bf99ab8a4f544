package api

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vigil/internal/logging"
	"vigil/internal/session"
	"vigil/internal/stage"
)

// FromSession converts a session record to its summary representation.
func FromSession(s *session.Session) SessionSummary {
	if s == nil {
		return SessionSummary{}
	}
	return SessionSummary{
		ID:              s.ID,
		PatientID:       s.PatientID,
		Status:          string(s.Status),
		StatusLabel:     StatusLabel(s.Status),
		Progress:        s.Progress,
		ProgressMessage: s.ProgressMessage,
		ErrorMessage:    s.ErrorMessage,
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
	}
}

// FromSessions converts a slice of session records.
func FromSessions(list []*session.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		if s == nil {
			continue
		}
		out = append(out, FromSession(s))
	}
	return out
}

// FromSessionDetail converts a session record including its results.
func FromSessionDetail(s *session.Session) SessionDetail {
	if s == nil {
		return SessionDetail{}
	}
	return SessionDetail{
		SessionSummary: FromSession(s),
		VideoRef:       s.VideoRef,
		AudioRef:       s.AudioRef,
		EmotionSummary: s.EmotionSummary,
		Video:          s.Video,
		Audio:          s.Audio,
		Indicators:     s.Indicators,
		InjuryCheck:    s.InjuryCheck,
		Aggregate:      s.Aggregate,
	}
}

// FromHealth converts stage health records.
func FromHealth(records []stage.Health) []HealthCheck {
	out := make([]HealthCheck, 0, len(records))
	for _, h := range records {
		out = append(out, HealthCheck{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromLogEvents converts log hub events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Stage:         evt.Stage,
			SessionID:     evt.SessionID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

// StatusLabel renders a status for display, e.g. "Processing Video".
func StatusLabel(status session.Status) string {
	if status == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(status), "_", " "))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
