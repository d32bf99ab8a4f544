package session

import (
	"encoding/json"
	"time"

	"vigil/internal/analysis"
)

// Status represents the lifecycle of an analysis session.
type Status string

const (
	StatusPending                      Status = "pending"
	StatusUploading                    Status = "uploading"
	StatusProcessingVideo              Status = "processing_video"
	StatusProcessingInjuryCheck        Status = "processing_injury_check"
	StatusProcessingAudio              Status = "processing_audio"
	StatusProcessingBedrockEnhancement Status = "processing_bedrock_enhancement"
	StatusAggregating                  Status = "aggregating"
	StatusCompleted                    Status = "completed"
	StatusFailed                       Status = "failed"
)

// DaemonStopReason is the error message set when sessions are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

// InterruptedReason is recorded on sessions found mid-pipeline at startup.
const InterruptedReason = "interrupted by daemon restart"

// CancelledReason is recorded when an operator cancels a running session.
const CancelledReason = "analysis cancelled by operator"

// Pipeline lists the successful status sequence in order.
var Pipeline = []Status{
	StatusPending,
	StatusUploading,
	StatusProcessingVideo,
	StatusProcessingInjuryCheck,
	StatusProcessingAudio,
	StatusProcessingBedrockEnhancement,
	StatusAggregating,
	StatusCompleted,
}

var statusOrder = func() map[Status]int {
	order := make(map[Status]int, len(Pipeline))
	for i, s := range Pipeline {
		order[s] = i
	}
	return order
}()

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	s := Status(value)
	if s == StatusFailed {
		return s, true
	}
	_, ok := statusOrder[s]
	return s, ok
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether a pipeline run owns a session in this status.
func (s Status) IsProcessing() bool {
	return !s.IsTerminal() && s != StatusPending
}

// Next returns the status that follows s on success.
func (s Status) Next() (Status, bool) {
	idx, ok := statusOrder[s]
	if !ok || idx+1 >= len(Pipeline) {
		return "", false
	}
	return Pipeline[idx+1], true
}

// CanTransition reports whether a session in status from may be replaced by
// one in status to. Re-writing the same non-terminal status (a progress
// update) is allowed; terminal records never change.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == from {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// Session is one analysis run over a recorded input.
type Session struct {
	ID        string `json:"session_id"`
	PatientID string `json:"patient_id,omitempty"`
	VideoRef  string `json:"video_ref"`
	AudioRef  string `json:"audio_ref,omitempty"`

	Status          Status    `json:"status"`
	Progress        float64   `json:"progress"`
	ProgressMessage string    `json:"progress_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	EmotionSummary map[string]float64            `json:"emotion_summary,omitempty"`
	Video          *analysis.VideoResult         `json:"video,omitempty"`
	Audio          *analysis.AudioResult         `json:"audio,omitempty"`
	Indicators     []analysis.ClinicalIndicator  `json:"clinical_indicators,omitempty"`
	InjuryCheck    *analysis.InjuryCheckResult   `json:"injury_check,omitempty"`
	Aggregate      *analysis.AggregateAssessment `json:"aggregate,omitempty"`
	ErrorMessage   string                        `json:"error_message,omitempty"`
}

// EffectiveAudioRef falls back to the video reference when the recording
// carries its own audio track.
func (s *Session) EffectiveAudioRef() string {
	if s.AudioRef != "" {
		return s.AudioRef
	}
	return s.VideoRef
}

// Clone returns a deep copy so snapshots handed to readers never alias the
// orchestrator's working copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *s
		return &cp
	}
	return &out
}

// Filter narrows List results.
type Filter struct {
	Statuses []Status
	Limit    int
}

func (f Filter) matches(s *Session) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if s.Status == status {
			return true
		}
	}
	return false
}
