package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/detect"
	"vigil/internal/services"
	"vigil/internal/services/llm"
	"vigil/internal/session"
	"vigil/internal/stream"
	"vigil/internal/testsupport"
)

type fakeVideo struct {
	detections []analysis.FaceDetection
	err        error
	// gate, when set, holds the stage until closed or ctx ends.
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeVideo) Analyze(ctx context.Context, _ string, visit func(analysis.FaceDetection) error) error {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, d := range f.detections {
		if err := visit(d); err != nil {
			return err
		}
	}
	return f.err
}

type fakeModeration struct {
	labels []analysis.ModerationLabel
	err    error
}

func (f *fakeModeration) Analyze(context.Context, string) ([]analysis.ModerationLabel, error) {
	return f.labels, f.err
}

type fakeSpeech struct {
	segments []analysis.TranscriptionSegment
	err      error
	gotRef   string
}

func (f *fakeSpeech) Transcribe(_ context.Context, ref string) ([]analysis.TranscriptionSegment, error) {
	f.gotRef = ref
	return f.segments, f.err
}

type fakeSentiment struct {
	overall analysis.SentimentResult
	err     error

	mu      sync.Mutex
	batches [][]string
}

func (f *fakeSentiment) Score(context.Context, string) (analysis.SentimentResult, error) {
	return f.overall, f.err
}

func (f *fakeSentiment) ScoreBatch(_ context.Context, texts []string) ([]*analysis.SentimentResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	out := make([]*analysis.SentimentResult, len(texts))
	for i := range texts {
		out[i] = &analysis.SentimentResult{Sentiment: analysis.SentimentNeutral, Neutral: 0.9, Positive: 0.1}
	}
	return out, nil
}

// routedReasoner answers each reasoning call by matching its prompt.
type routedReasoner struct {
	mu     sync.Mutex
	labels func() (string, error)
	verbal func() (string, error)
	agg    func() (string, error)
	calls  map[string]int
}

func (r *routedReasoner) Name() string { return "routed" }

func (r *routedReasoner) Reason(_ context.Context, req llm.Request) (llm.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	var call string
	var fn func() (string, error)
	switch {
	case strings.Contains(req.User, `"clinical_summary"`):
		call, fn = aggregate.CallAggregate, r.agg
	case strings.Contains(req.User, `"has_verbal_signals"`):
		call, fn = aggregate.CallVerbal, r.verbal
	default:
		call, fn = aggregate.CallLabels, r.labels
	}
	r.calls[call]++
	if fn == nil {
		return llm.Response{}, errors.New("no response scripted")
	}
	content, err := fn()
	return llm.Response{Content: content}, err
}

func (r *routedReasoner) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[call]
}

func ok(content string) func() (string, error) {
	return func() (string, error) { return content, nil }
}

func throttled() (string, error) {
	return "", fmt.Errorf("%w: rate limited", services.ErrTransient)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []stream.Message
}

func (p *recordingPublisher) Publish(_ string, msg stream.Message) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
}

func (p *recordingPublisher) snapshot() []stream.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stream.Message(nil), p.messages...)
}

func (p *recordingPublisher) ofType(kind stream.MessageType) []stream.Message {
	var out []stream.Message
	for _, msg := range p.snapshot() {
		if msg.MessageType() == kind {
			out = append(out, msg)
		}
	}
	return out
}

// statusOrder returns the distinct statuses in the order they were broadcast.
func (p *recordingPublisher) statusOrder() []session.Status {
	var out []session.Status
	for _, msg := range p.ofType(stream.TypeStatusUpdate) {
		status := msg.(stream.StatusUpdate).Status
		if len(out) == 0 || out[len(out)-1] != status {
			out = append(out, status)
		}
	}
	return out
}

func detection(ts int64, emotions map[analysis.Emotion]float64) analysis.FaceDetection {
	d := analysis.FaceDetection{TimestampMS: ts, BoundingBox: analysis.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.3, Height: 0.3}}
	for _, e := range []analysis.Emotion{
		analysis.EmotionHappy, analysis.EmotionSad, analysis.EmotionAngry, analysis.EmotionConfused,
		analysis.EmotionDisgusted, analysis.EmotionSurprised, analysis.EmotionCalm, analysis.EmotionFear,
	} {
		if v, ok := emotions[e]; ok {
			d.Emotions = append(d.Emotions, analysis.EmotionScore{Emotion: e, Confidence: v})
		}
	}
	return d
}

type harness struct {
	store     *session.SQLiteStore
	video     *fakeVideo
	mod       *fakeModeration
	speech    *fakeSpeech
	sentiment *fakeSentiment
	reasoner  *routedReasoner
	publisher *recordingPublisher
	runner    *Runner
}

const (
	labelsJSON = `{"has_signals": true, "severity": "high", "summary": "Wounds visible while describing a fall.", "confidence": 0.8, "clinical_rationale": "context", "injury_type": "accidental"}`
	verbalJSON = `{"has_verbal_signals": true, "severity": "moderate", "findings": ["hopelessness"], "evidence_quotes": ["no point"], "confidence": 0.6}`
	aggJSON    = `{"clinical_summary": "Sad affect with negative speech.", "risk_level": "high", "concordant_signals": ["sad face, negative words"], "recommendations": ["follow up"]}`
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		store: testsupport.MustOpenStore(t, cfg),
		video: &fakeVideo{detections: []analysis.FaceDetection{
			detection(0, map[analysis.Emotion]float64{analysis.EmotionSad: 0.6, analysis.EmotionDisgusted: 0.4, analysis.EmotionConfused: 0.2}),
			detection(500, map[analysis.Emotion]float64{analysis.EmotionSad: 0.4, analysis.EmotionDisgusted: 0.6, analysis.EmotionConfused: 0.2}),
		}},
		mod: &fakeModeration{labels: []analysis.ModerationLabel{
			{Name: "Wounds", Confidence: 0.8, TimestampMS: ptr(int64(1000))},
		}},
		speech: &fakeSpeech{segments: []analysis.TranscriptionSegment{
			{Text: "I fell down the stairs last week.", StartTime: 0, EndTime: 2.5},
			{Text: "It hurt.", StartTime: 2.5, EndTime: 3},
		}},
		sentiment: &fakeSentiment{overall: analysis.SentimentResult{Sentiment: analysis.SentimentNegative, Negative: 0.82, Neutral: 0.1, Positive: 0.05, Mixed: 0.03}},
		reasoner:  &routedReasoner{labels: ok(labelsJSON), verbal: ok(verbalJSON), agg: ok(aggJSON)},
		publisher: &recordingPublisher{},
	}
	agg := aggregate.New(h.reasoner, aggregate.Options{Backoff: llm.Backoff{MaxAttempts: 3, Sleeper: func(time.Duration) {}}})
	h.runner = NewRunner(h.store, detect.Suite{
		Video:      h.video,
		Moderation: h.mod,
		Speech:     h.speech,
		Sentiment:  h.sentiment,
	}, agg, h.publisher, Options{})
	return h
}

func ptr[T any](v T) *T { return &v }

func (h *harness) newSession(t *testing.T, id string) *session.Session {
	t.Helper()
	return testsupport.NewSession(t, h.store, id, "s3://bucket/"+id+".mp4")
}
