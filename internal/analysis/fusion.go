package analysis

import "math"

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FromPercent converts a detector percentage (0-100) to a clamped fraction.
func FromPercent(v float64) float64 {
	return Clamp01(v / 100)
}

// DerivedScores computes the clinical fusion values for one frame:
//
//	discomfort = 0.4*disgusted + 0.3*confused + 0.3*sad
//	anxiety    = 0.7*fear + 0.3*surprised
//	depression = 0.6*sad + 0.2*(1-happy) + 0.2*calm
//
// Missing raw emotions count as 0. Fear passes through unchanged and is not
// duplicated here.
func DerivedScores(raw []EmotionScore) []EmotionScore {
	values := make(map[Emotion]float64, len(raw))
	for _, score := range raw {
		values[score.Emotion] = score.Confidence
	}
	discomfort := 0.4*values[EmotionDisgusted] + 0.3*values[EmotionConfused] + 0.3*values[EmotionSad]
	anxiety := 0.7*values[EmotionFear] + 0.3*values[EmotionSurprised]
	depression := 0.6*values[EmotionSad] + 0.2*(1-values[EmotionHappy]) + 0.2*values[EmotionCalm]
	return []EmotionScore{
		{Emotion: EmotionDiscomfort, Confidence: discomfort},
		{Emotion: EmotionAnxiety, Confidence: anxiety},
		{Emotion: EmotionDepression, Confidence: depression},
	}
}

// WithDerivedEmotions returns a copy of d whose emotion list is the raw
// emotions followed by the derived clinical emotions.
func WithDerivedEmotions(d FaceDetection) FaceDetection {
	emotions := make([]EmotionScore, 0, len(d.Emotions)+3)
	emotions = append(emotions, d.Emotions...)
	emotions = append(emotions, DerivedScores(d.Emotions)...)
	d.Emotions = emotions
	return d
}

// EmotionAccumulator keeps running per-emotion sums so the video stage can
// summarize detections as they stream in.
type EmotionAccumulator struct {
	sums   map[Emotion]float64
	counts map[Emotion]int
	frames int
	lastTS int64
}

// NewEmotionAccumulator returns an empty accumulator.
func NewEmotionAccumulator() *EmotionAccumulator {
	return &EmotionAccumulator{sums: map[Emotion]float64{}, counts: map[Emotion]int{}}
}

// Add folds one detection into the running totals.
func (a *EmotionAccumulator) Add(d FaceDetection) {
	a.frames++
	a.lastTS = d.TimestampMS
	for _, score := range d.Emotions {
		a.sums[score.Emotion] += score.Confidence
		a.counts[score.Emotion]++
	}
}

// Frames is the number of detections added.
func (a *EmotionAccumulator) Frames() int { return a.frames }

// LastTimestampMS is the timestamp of the most recent detection.
func (a *EmotionAccumulator) LastTimestampMS() int64 { return a.lastTS }

// Summary returns the mean confidence per emotion name. With no detections
// it returns an empty, non-nil map.
func (a *EmotionAccumulator) Summary() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for emotion, sum := range a.sums {
		if n := a.counts[emotion]; n > 0 {
			out[string(emotion)] = sum / float64(n)
		}
	}
	return out
}

// SummarizeEmotions averages every emotion entry across detections.
func SummarizeEmotions(detections []FaceDetection) map[string]float64 {
	acc := NewEmotionAccumulator()
	for _, d := range detections {
		acc.Add(d)
	}
	return acc.Summary()
}
