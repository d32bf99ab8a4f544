package api

import (
	"vigil/internal/analysis"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	PatientID string `json:"patient_id"`
	VideoRef  string `json:"video_ref"`
	AudioRef  string `json:"audio_ref,omitempty"`
	// Start launches the analysis immediately after creation.
	Start bool `json:"start,omitempty"`
}

// SessionSummary describes a session's lifecycle state.
type SessionSummary struct {
	ID              string  `json:"session_id"`
	PatientID       string  `json:"patient_id,omitempty"`
	Status          string  `json:"status"`
	StatusLabel     string  `json:"status_label"`
	Progress        float64 `json:"progress"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// SessionDetail is the full result view of a session.
type SessionDetail struct {
	SessionSummary
	VideoRef       string                        `json:"video_ref"`
	AudioRef       string                        `json:"audio_ref,omitempty"`
	EmotionSummary map[string]float64            `json:"emotion_summary,omitempty"`
	Video          *analysis.VideoResult         `json:"video,omitempty"`
	Audio          *analysis.AudioResult         `json:"audio,omitempty"`
	Indicators     []analysis.ClinicalIndicator  `json:"clinical_indicators,omitempty"`
	InjuryCheck    *analysis.InjuryCheckResult   `json:"injury_check,omitempty"`
	Aggregate      *analysis.AggregateAssessment `json:"aggregate,omitempty"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionResponse wraps a single session summary.
type SessionResponse struct {
	Session SessionSummary `json:"session"`
}

// ResultsResponse wraps a completed session's results.
type ResultsResponse struct {
	Session SessionDetail `json:"session"`
}

// HealthCheck mirrors readiness reporting for detectors, reasoning backends
// and preflight checks.
type HealthCheck struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PipelineStatus summarizes the run manager.
type PipelineStatus struct {
	Active    []string `json:"active"`
	Finished  int      `json:"finished"`
	Failed    int      `json:"failed"`
	LastError string   `json:"last_error,omitempty"`
	Observers int      `json:"observers"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StoreBackend string         `json:"store_backend"`
	DatabasePath string         `json:"database_path,omitempty"`
	LockFilePath string         `json:"lock_file_path"`
	StartedAt    string         `json:"started_at,omitempty"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Health       []HealthCheck  `json:"health"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events plus the cursor for the next
// request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
