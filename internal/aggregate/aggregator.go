package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vigil/internal/analysis"
	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/services/llm"
)

// Call names, used in logs and errors.
const (
	CallLabels    = "label_interpretation"
	CallVerbal    = "verbal_analysis"
	CallAggregate = "multimodal_aggregation"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
)

// Reasoner is a reasoning backend. Reason makes one attempt; transient
// failures carry services.ErrTransient.
type Reasoner interface {
	Name() string
	Reason(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Options tunes the reasoning calls. A nil Temperature selects the default;
// an explicit 0 is kept.
type Options struct {
	Temperature *float64
	MaxTokens   int
	Backoff     llm.Backoff
	Logger      *slog.Logger
}

// Aggregator issues the three reasoning calls.
type Aggregator struct {
	reasoner    Reasoner
	opts        Options
	temperature float64
	logger      *slog.Logger
}

// New constructs an Aggregator.
func New(reasoner Reasoner, opts Options) *Aggregator {
	temperature := defaultTemperature
	if opts.Temperature != nil && *opts.Temperature >= 0 {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Aggregator{
		reasoner:    reasoner,
		opts:        opts,
		temperature: temperature,
		logger:      logging.NewComponentLogger(logger, "aggregate"),
	}
}

// Report describes how one call went.
type Report struct {
	Call     string
	Attempts int
	Parse    ParseKind
}

// Input is everything the multimodal aggregation sees.
type Input struct {
	EmotionSummary map[string]float64
	Transcript     string
	Sentiment      *analysis.SentimentResult
	InjuryCheck    *analysis.InjuryCheckResult
	// Indicators are the preliminary rule-engine indicators.
	Indicators []analysis.ClinicalIndicator
}

// InterpretLabels asks whether the retained labels reflect genuine risk.
// It requires at least one label.
func (a *Aggregator) InterpretLabels(ctx context.Context, labels []analysis.ModerationLabel, segments []analysis.TranscriptionSegment) (*LabelInterpretation, Report, error) {
	report := Report{Call: CallLabels}
	if len(labels) == 0 {
		return nil, report, degraded(CallLabels, "no moderation labels to interpret", nil)
	}
	transcriptContext := TranscriptContext(segments, labelTimestamps(labels), ContextWindowMS)
	raw, attempts, err := a.invoke(ctx, CallLabels, labelPrompt(labels, transcriptContext))
	report.Attempts = attempts
	if err != nil {
		return nil, report, err
	}
	result := parseResponse[LabelInterpretation](raw, extractLabelInterpretation)
	report.Parse = result.Kind
	if result.Kind == Unrecoverable {
		return nil, report, degraded(CallLabels, "response could not be parsed", result.Err)
	}
	value := result.Value
	return &value, report, nil
}

// AnalyzeVerbal scans the transcript for verbal indicators.
func (a *Aggregator) AnalyzeVerbal(ctx context.Context, transcript string) (*analysis.VerbalAnalysis, Report, error) {
	report := Report{Call: CallVerbal}
	if strings.TrimSpace(transcript) == "" {
		return nil, report, degraded(CallVerbal, "no transcript available", nil)
	}
	raw, attempts, err := a.invoke(ctx, CallVerbal, verbalPrompt(transcript))
	report.Attempts = attempts
	if err != nil {
		return nil, report, err
	}
	result := parseResponse[verbalWire](raw, extractVerbal)
	report.Parse = result.Kind
	if result.Kind == Unrecoverable {
		return nil, report, degraded(CallVerbal, "response could not be parsed", result.Err)
	}
	return result.Value.toAnalysis(), report, nil
}

// Aggregate produces the cross-referenced assessment.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (*analysis.AggregateAssessment, Report, error) {
	report := Report{Call: CallAggregate}
	raw, attempts, err := a.invoke(ctx, CallAggregate, aggregatePrompt(in))
	report.Attempts = attempts
	if err != nil {
		return nil, report, err
	}
	result := parseResponse[aggregateWire](raw, extractAggregate)
	report.Parse = result.Kind
	if result.Kind == Unrecoverable {
		return nil, report, degraded(CallAggregate, "response could not be parsed", result.Err)
	}
	return result.Value.toAnalysis(), report, nil
}

func (a *Aggregator) invoke(ctx context.Context, call, prompt string) (string, int, error) {
	if a == nil || a.reasoner == nil {
		return "", 0, degraded(call, "no reasoning backend configured", services.ErrConfiguration)
	}
	req := llm.Request{
		System:      systemPrompt,
		User:        prompt,
		Temperature: a.temperature,
		MaxTokens:   a.opts.MaxTokens,
		JSON:        true,
	}
	var content string
	outcome, err := a.opts.Backoff.Do(ctx, call, func(ctx context.Context) error {
		resp, err := a.reasoner.Reason(ctx, req)
		if err != nil {
			logging.WithContext(ctx, a.logger).Debug("reasoning attempt failed",
				logging.String("call", call),
				logging.String("backend", a.reasoner.Name()),
				logging.Error(err),
			)
			return err
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", outcome.Attempts, err
		}
		return "", outcome.Attempts, degraded(call, fmt.Sprintf("reasoning failed after %d attempt(s)", outcome.Attempts), err)
	}
	return content, outcome.Attempts, nil
}

func degraded(call, msg string, err error) error {
	return services.Wrap(services.ErrDegradedStage, "reasoning", call, msg, err)
}
