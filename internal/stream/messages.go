package stream

import (
	"vigil/internal/analysis"
	"vigil/internal/session"
)

// MessageType tags server and client messages.
type MessageType string

// Server message types.
const (
	TypeStatusUpdate        MessageType = "status_update"
	TypeEmotionUpdate       MessageType = "emotion_update"
	TypeTranscriptionUpdate MessageType = "transcription_update"
	TypeComplete            MessageType = "complete"
	TypeError               MessageType = "error"
	TypePong                MessageType = "pong"
)

// Client actions.
const (
	ActionGetStatus = "get_status"
	ActionPing      = "ping"
)

// Message is anything the server sends to an observer.
type Message interface {
	MessageType() MessageType
}

// StatusUpdate reports the session status and overall progress in [0,1].
type StatusUpdate struct {
	Type     MessageType    `json:"type"`
	Status   session.Status `json:"status"`
	Progress float64        `json:"progress"`
	Message  string         `json:"message,omitempty"`
}

// NewStatusUpdate builds a status_update message.
func NewStatusUpdate(status session.Status, progress float64, message string) StatusUpdate {
	return StatusUpdate{Type: TypeStatusUpdate, Status: status, Progress: progress, Message: message}
}

// StatusFromSession reports the stored snapshot.
func StatusFromSession(s *session.Session) StatusUpdate {
	msg := s.ProgressMessage
	if s.Status == session.StatusFailed && s.ErrorMessage != "" {
		msg = s.ErrorMessage
	}
	return NewStatusUpdate(s.Status, s.Progress, msg)
}

func (m StatusUpdate) MessageType() MessageType { return TypeStatusUpdate }

// EmotionUpdate carries one face detection with raw and derived emotions.
// PrimaryEmotion is picked from the raw emotions only.
type EmotionUpdate struct {
	Type           MessageType             `json:"type"`
	TimestampMS    int64                   `json:"timestamp_ms"`
	Emotions       []analysis.EmotionScore `json:"emotions"`
	PrimaryEmotion *analysis.EmotionScore  `json:"primary_emotion,omitempty"`
	BoundingBox    analysis.BoundingBox    `json:"bounding_box"`
}

// NewEmotionUpdate builds an emotion_update message from a raw detection,
// adding the derived emotions.
func NewEmotionUpdate(raw analysis.FaceDetection) EmotionUpdate {
	fused := analysis.WithDerivedEmotions(raw)
	msg := EmotionUpdate{
		Type:        TypeEmotionUpdate,
		TimestampMS: fused.TimestampMS,
		Emotions:    fused.Emotions,
		BoundingBox: fused.BoundingBox,
	}
	if primary, ok := raw.PrimaryEmotion(); ok {
		msg.PrimaryEmotion = &primary
	}
	return msg
}

func (m EmotionUpdate) MessageType() MessageType { return TypeEmotionUpdate }

// TranscriptionUpdate carries one transcript segment. Times are in seconds.
type TranscriptionUpdate struct {
	Type      MessageType `json:"type"`
	Text      string      `json:"text"`
	StartTime float64     `json:"start_time"`
	EndTime   float64     `json:"end_time"`
}

// NewTranscriptionUpdate builds a transcription_update message.
func NewTranscriptionUpdate(seg analysis.TranscriptionSegment) TranscriptionUpdate {
	return TranscriptionUpdate{Type: TypeTranscriptionUpdate, Text: seg.Text, StartTime: seg.StartTime, EndTime: seg.EndTime}
}

func (m TranscriptionUpdate) MessageType() MessageType { return TypeTranscriptionUpdate }

// Complete carries the final session record.
type Complete struct {
	Type    MessageType      `json:"type"`
	Results *session.Session `json:"results"`
}

// NewComplete builds a complete message.
func NewComplete(results *session.Session) Complete {
	return Complete{Type: TypeComplete, Results: results}
}

func (m Complete) MessageType() MessageType { return TypeComplete }

// Error reports a failure to the observer.
type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewError builds an error message.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func (m Error) MessageType() MessageType { return TypeError }

// Pong answers a client ping.
type Pong struct {
	Type MessageType `json:"type"`
}

func (m Pong) MessageType() MessageType { return TypePong }

// clientMessage is what observers send.
type clientMessage struct {
	Action string `json:"action"`
}
