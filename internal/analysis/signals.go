package analysis

import (
	"strings"
)

// Emotion names a raw detector emotion or a derived clinical emotion.
type Emotion string

const (
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionConfused  Emotion = "confused"
	EmotionDisgusted Emotion = "disgusted"
	EmotionSurprised Emotion = "surprised"
	EmotionCalm      Emotion = "calm"
	EmotionFear      Emotion = "fear"

	// Derived clinical emotions.
	EmotionDiscomfort Emotion = "discomfort"
	EmotionAnxiety    Emotion = "anxiety"
	EmotionDepression Emotion = "depression"
)

var detectorEmotions = map[string]Emotion{
	"HAPPY":     EmotionHappy,
	"SAD":       EmotionSad,
	"ANGRY":     EmotionAngry,
	"CONFUSED":  EmotionConfused,
	"DISGUSTED": EmotionDisgusted,
	"SURPRISED": EmotionSurprised,
	"CALM":      EmotionCalm,
	"FEAR":      EmotionFear,
}

// ParseDetectorEmotion maps a detector emotion type (HAPPY, FEAR, ...) to an
// Emotion. Unknown types report false.
func ParseDetectorEmotion(value string) (Emotion, bool) {
	e, ok := detectorEmotions[strings.ToUpper(strings.TrimSpace(value))]
	return e, ok
}

// EmotionScore pairs an emotion with a confidence in [0,1].
type EmotionScore struct {
	Emotion    Emotion `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// BoundingBox is a face box relative to the frame, each field in [0,1].
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clamped returns the box with every coordinate clamped to [0,1].
func (b BoundingBox) Clamped() BoundingBox {
	return BoundingBox{Left: Clamp01(b.Left), Top: Clamp01(b.Top), Width: Clamp01(b.Width), Height: Clamp01(b.Height)}
}

// FaceDetection is one video-emotion observation. Detections are immutable
// once produced; fusion returns copies.
type FaceDetection struct {
	TimestampMS int64          `json:"timestamp_ms"`
	BoundingBox BoundingBox    `json:"bounding_box"`
	Emotions    []EmotionScore `json:"emotions"`
}

// PrimaryEmotion returns the highest-confidence emotion. The first entry wins ties.
func (d FaceDetection) PrimaryEmotion() (EmotionScore, bool) {
	if len(d.Emotions) == 0 {
		return EmotionScore{}, false
	}
	best := d.Emotions[0]
	for _, score := range d.Emotions[1:] {
		if score.Confidence > best.Confidence {
			best = score
		}
	}
	return best, true
}

// TranscriptionSegment is a span of transcript text. Times are in seconds.
type TranscriptionSegment struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker_label,omitempty"`
}

// SentimentLabel is the categorical sentiment of a text.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentMixed    SentimentLabel = "mixed"
)

// ParseSentimentLabel normalizes detector labels such as "NEGATIVE".
func ParseSentimentLabel(value string) (SentimentLabel, bool) {
	switch SentimentLabel(strings.ToLower(strings.TrimSpace(value))) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNegative:
		return SentimentNegative, true
	case SentimentNeutral:
		return SentimentNeutral, true
	case SentimentMixed:
		return SentimentMixed, true
	default:
		return "", false
	}
}

// SentimentResult holds a label and four scores that approximately sum to 1.
type SentimentResult struct {
	Sentiment SentimentLabel `json:"sentiment"`
	Positive  float64        `json:"positive_score"`
	Negative  float64        `json:"negative_score"`
	Neutral   float64        `json:"neutral_score"`
	Mixed     float64        `json:"mixed_score"`
}

// Clamped returns the result with every score clamped to [0,1].
func (s SentimentResult) Clamped() SentimentResult {
	s.Positive = Clamp01(s.Positive)
	s.Negative = Clamp01(s.Negative)
	s.Neutral = Clamp01(s.Neutral)
	s.Mixed = Clamp01(s.Mixed)
	return s
}

// SegmentSentiment ties a sentiment to the transcript segment it scored.
type SegmentSentiment struct {
	SegmentIndex int             `json:"segment_index"`
	Sentiment    SentimentResult `json:"sentiment"`
}

// ModerationLabel is one content moderation finding.
type ModerationLabel struct {
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence"`
	TimestampMS *int64  `json:"timestamp_ms,omitempty"`
	ParentName  string  `json:"parent_name,omitempty"`
}

// RetainLabels drops labels below threshold, preserving order.
func RetainLabels(labels []ModerationLabel, threshold float64) []ModerationLabel {
	out := make([]ModerationLabel, 0, len(labels))
	for _, label := range labels {
		if label.Confidence >= threshold {
			out = append(out, label)
		}
	}
	return out
}

// TimeRange is a span in milliseconds.
type TimeRange struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// ClinicalIndicator is a named, confidence-scored finding.
type ClinicalIndicator struct {
	Type       string      `json:"indicator_type"`
	Confidence float64     `json:"confidence"`
	Evidence   []string    `json:"evidence,omitempty"`
	TimeRanges []TimeRange `json:"timestamp_ranges,omitempty"`
}

// RiskLevel is the four-point severity scale.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel accepts a risk level in any case.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(value))) {
	case RiskLow:
		return RiskLow, true
	case RiskModerate, "medium":
		return RiskModerate, true
	case RiskHigh:
		return RiskHigh, true
	case RiskCritical:
		return RiskCritical, true
	default:
		return "", false
	}
}

// LabelAssessment is the reasoning verdict for one moderation label.
type LabelAssessment struct {
	Label      string `json:"label"`
	IsRelevant bool   `json:"is_relevant"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// VerbalAnalysis is the transcript verbal-indicator sub-analysis.
type VerbalAnalysis struct {
	HasVerbalSignals bool      `json:"has_verbal_signals"`
	Severity         RiskLevel `json:"severity,omitempty"`
	Findings         []string  `json:"findings,omitempty"`
	EvidenceQuotes   []string  `json:"evidence_quotes,omitempty"`
	Confidence       float64   `json:"confidence"`
	RiskFactors      []string  `json:"risk_factors_identified,omitempty"`
	InjuryTypes      []string  `json:"injury_types_detected,omitempty"`
}

// InjuryCheckResult is the outcome of the content moderation stage and its
// optional reasoning enhancements. ErrorMessage is set when the check was
// attempted but failed.
type InjuryCheckResult struct {
	Checked           bool              `json:"checked"`
	Labels            []ModerationLabel `json:"labels,omitempty"`
	HasSignals        bool              `json:"has_signals"`
	Summary           string            `json:"summary"`
	Confidence        float64           `json:"confidence"`
	Severity          RiskLevel         `json:"severity,omitempty"`
	ClinicalRationale string            `json:"clinical_rationale,omitempty"`
	InjuryType        string            `json:"injury_type,omitempty"`
	LabelAssessments  []LabelAssessment `json:"label_assessments,omitempty"`
	Verbal            *VerbalAnalysis   `json:"verbal_analysis,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

// EvidenceSource tags where a cross-referenced finding came from.
type EvidenceSource string

const (
	SourceVideo      EvidenceSource = "video"
	SourceAudio      EvidenceSource = "audio"
	SourceModeration EvidenceSource = "content_moderation"
	SourceTranscript EvidenceSource = "transcript"
)

// ParseEvidenceSource accepts the known source tags.
func ParseEvidenceSource(value string) (EvidenceSource, bool) {
	switch EvidenceSource(strings.ToLower(strings.TrimSpace(value))) {
	case SourceVideo:
		return SourceVideo, true
	case SourceAudio:
		return SourceAudio, true
	case SourceModeration:
		return SourceModeration, true
	case SourceTranscript:
		return SourceTranscript, true
	default:
		return "", false
	}
}

// EvidenceEntry is one cross-referenced finding.
type EvidenceEntry struct {
	Source            EvidenceSource   `json:"source"`
	Finding           string           `json:"finding"`
	SupportingSources []EvidenceSource `json:"supporting_sources,omitempty"`
}

// AggregateAssessment is the multimodal reasoning result.
type AggregateAssessment struct {
	ClinicalSummary         string          `json:"clinical_summary"`
	RiskLevel               RiskLevel       `json:"risk_level"`
	CrossReferencedEvidence []EvidenceEntry `json:"cross_referenced_evidence,omitempty"`
	ConcordantSignals       []string        `json:"concordant_signals,omitempty"`
	DiscordantSignals       []string        `json:"discordant_signals,omitempty"`
	Recommendations         []string        `json:"recommendations,omitempty"`
}

// VideoResult is what the video stage records.
type VideoResult struct {
	DetectionCount int                `json:"detection_count"`
	DurationMS     int64              `json:"duration_ms"`
	EmotionSummary map[string]float64 `json:"emotion_summary"`
}

// AudioResult is what the audio stage records.
type AudioResult struct {
	Segments          []TranscriptionSegment `json:"segments"`
	OverallSentiment  *SentimentResult       `json:"overall_sentiment,omitempty"`
	SegmentSentiments []SegmentSentiment     `json:"segment_sentiments,omitempty"`
}

// FullTranscript joins segment text with single spaces.
func (a AudioResult) FullTranscript() string {
	return JoinTranscript(a.Segments)
}

// JoinTranscript joins segment text with single spaces, skipping blanks.
func JoinTranscript(segments []TranscriptionSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
