package detect

import (
	"context"

	"vigil/internal/analysis"
)

// VideoEmotion streams face detections for a video. visit is called once per
// detection in timestamp order as pages arrive; returning an error stops the
// stream and is returned unchanged.
type VideoEmotion interface {
	Analyze(ctx context.Context, videoRef string, visit func(analysis.FaceDetection) error) error
}

// Moderation returns content moderation labels at or above the configured
// confidence threshold.
type Moderation interface {
	Analyze(ctx context.Context, videoRef string) ([]analysis.ModerationLabel, error)
}

// SpeechToText transcribes audio into segments ordered by start time.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioRef string) ([]analysis.TranscriptionSegment, error)
}

// Sentiment scores text. ScoreBatch returns one entry per input; entries the
// detector could not score are nil.
type Sentiment interface {
	Score(ctx context.Context, text string) (analysis.SentimentResult, error)
	ScoreBatch(ctx context.Context, texts []string) ([]*analysis.SentimentResult, error)
}

// Suite groups the adapters one pipeline run needs.
type Suite struct {
	Video      VideoEmotion
	Moderation Moderation
	Speech     SpeechToText
	Sentiment  Sentiment
}
