package ipc

import "vigil/internal/api"

// Session mirrors the HTTP API session summary for IPC callers.
type Session = api.SessionSummary

// SessionDetail mirrors the HTTP API result view.
type SessionDetail = api.SessionDetail

// HealthCheck describes readiness of a detector or reasoning backend.
type HealthCheck = api.HealthCheck

// LogEvent is one structured log line.
type LogEvent = api.LogEvent

// StartRequest starts the daemon's lock, API server and janitor.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status information.
type StatusResponse struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	StartedAt    string        `json:"started_at"`
	StoreBackend string        `json:"store_backend"`
	DatabasePath string        `json:"database_path"`
	LockPath     string        `json:"lock_path"`
	APIAddress   string        `json:"api_address"`
	Active       []string      `json:"active"`
	Finished     int           `json:"finished"`
	Failed       int           `json:"failed"`
	LastError    string        `json:"last_error"`
	Observers    int           `json:"observers"`
	Health       []HealthCheck `json:"health"`
}

// SessionCreateRequest stores a new session.
type SessionCreateRequest struct {
	PatientID string `json:"patient_id"`
	VideoRef  string `json:"video_ref"`
	AudioRef  string `json:"audio_ref"`
	Start     bool   `json:"start"`
}

// SessionResponse carries one session summary.
type SessionResponse struct {
	Session Session `json:"session"`
}

// SessionIDRequest addresses a single session.
type SessionIDRequest struct {
	ID string `json:"id"`
}

// SessionRetryRequest retries a failed session.
type SessionRetryRequest struct {
	ID    string `json:"id"`
	Start bool   `json:"start"`
}

// SessionShowResponse carries the full result view of a session.
type SessionShowResponse struct {
	Session SessionDetail `json:"session"`
}

// SessionListRequest filters sessions by status or patient. PatientID takes
// precedence over Statuses.
type SessionListRequest struct {
	Statuses  []string `json:"statuses"`
	PatientID string   `json:"patient_id"`
	Limit     int      `json:"limit"`
}

// SessionListResponse contains session summaries.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// LogTailRequest fetches log events after a sequence cursor. Tail returns
// the most recent events instead when no cursor is set.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	Tail       bool   `json:"tail"`
	WaitMillis int    `json:"wait_millis"`
	SessionID  string `json:"session_id"`
	Component  string `json:"component"`
}

// LogTailResponse returns log events and the next cursor.
type LogTailResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// RetentionRequest runs the retention janitor immediately.
type RetentionRequest struct{}

// RetentionResponse reports what the janitor removed.
type RetentionResponse struct {
	SessionsDeleted int `json:"sessions_deleted"`
	LogsPruned      int `json:"logs_pruned"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
