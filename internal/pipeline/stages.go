package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/detect"
	"vigil/internal/indicators"
	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/stage"
	"vigil/internal/stream"
)

const (
	videoReportEvery    = 10
	videoProgressCap    = 0.9
	videoDurationPadMS  = 1000
	minSegmentSentiment = 20
)

func (rs *runState) validateRefs(ctx context.Context) error {
	if err := stage.ValidateRef("uploading", "video", rs.sess.VideoRef); err != nil {
		return err
	}
	if rs.sess.AudioRef != "" {
		if err := stage.ValidateRef("uploading", "audio", rs.sess.AudioRef); err != nil {
			return err
		}
	}
	return rs.report(ctx, 1, "Media references validated", true)
}

func (rs *runState) analyzeVideo(ctx context.Context) error {
	detector := rs.runner.detectors.Video
	if detector == nil {
		return services.Wrap(services.ErrFatalStage, "video", "analyze", "Video emotion detector is not configured", services.ErrConfiguration)
	}
	acc := analysis.NewEmotionAccumulator()
	err := detector.Analyze(ctx, rs.sess.VideoRef, func(d analysis.FaceDetection) error {
		acc.Add(analysis.WithDerivedEmotions(d))
		rs.publish(stream.NewEmotionUpdate(d))
		if n := acc.Frames(); n%videoReportEvery == 0 {
			local := math.Min(videoProgressCap, float64(n)/100)
			return rs.report(ctx, local, fmt.Sprintf("Analyzed %d face detections", n), true)
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrFatalStage, "video", "analyze", "Video analysis failed", err)
	}

	count := acc.Frames()
	var duration int64
	if count > 0 {
		duration = acc.LastTimestampMS() + videoDurationPadMS
	}
	summary := acc.Summary()
	rs.sess.EmotionSummary = summary
	rs.sess.Video = &analysis.VideoResult{DetectionCount: count, DurationMS: duration, EmotionSummary: summary}
	return rs.report(ctx, 1, fmt.Sprintf("Video analysis complete: %d detections", count), true)
}

func (rs *runState) checkInjury(ctx context.Context) error {
	result := rs.moderate(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	rs.sess.InjuryCheck = &result
	return rs.report(ctx, 1, result.Summary, true)
}

func (rs *runState) moderate(ctx context.Context) analysis.InjuryCheckResult {
	detector := rs.runner.detectors.Moderation
	if detector == nil {
		rs.degraded("content moderation skipped", services.ErrConfiguration)
		return analysis.FailedInjuryCheck("moderation detector is not configured")
	}
	labels, err := detector.Analyze(ctx, rs.sess.VideoRef)
	if err != nil {
		rs.degraded("content moderation failed", err)
		return analysis.FailedInjuryCheck(services.FailureMessage(err))
	}
	retained := analysis.RetainLabels(labels, rs.runner.minConf)
	if dropped := len(labels) - len(retained); dropped > 0 {
		rs.logger.Debug("moderation labels below threshold dropped",
			logging.Int("dropped", dropped),
			logging.Float64("min_confidence", rs.runner.minConf),
		)
	}
	return analysis.InterpretModeration(retained)
}

func (rs *runState) analyzeAudio(ctx context.Context) error {
	speech := rs.runner.detectors.Speech
	sentiment := rs.runner.detectors.Sentiment
	if speech == nil || sentiment == nil {
		return services.Wrap(services.ErrFatalStage, "audio", "analyze", "Speech or sentiment detector is not configured", services.ErrConfiguration)
	}
	segments, err := speech.Transcribe(ctx, rs.sess.EffectiveAudioRef())
	if err != nil {
		return services.Wrap(services.ErrFatalStage, "audio", "transcribe", "Audio transcription failed", err)
	}
	for _, seg := range segments {
		rs.publish(stream.NewTranscriptionUpdate(seg))
	}
	if err := rs.report(ctx, 0.4, fmt.Sprintf("Transcribed %d segments", len(segments)), true); err != nil {
		return err
	}

	result := &analysis.AudioResult{Segments: segments}
	if transcript := analysis.JoinTranscript(segments); transcript != "" {
		overall, err := sentiment.Score(ctx, transcript)
		if err != nil {
			return services.Wrap(services.ErrFatalStage, "audio", "score sentiment", "Sentiment analysis failed", err)
		}
		overall = overall.Clamped()
		result.OverallSentiment = &overall
		if err := rs.report(ctx, 0.7, "Scored overall sentiment", false); err != nil {
			return err
		}
		result.SegmentSentiments = rs.scoreSegments(ctx, sentiment, segments)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	rs.sess.Audio = result
	return rs.report(ctx, 1, "Audio analysis complete", true)
}

// scoreSegments scores every segment longer than the minimum in batches.
// A failed batch leaves its segments unscored.
func (rs *runState) scoreSegments(ctx context.Context, scorer detect.Sentiment, segments []analysis.TranscriptionSegment) []analysis.SegmentSentiment {
	var indexes []int
	for i, seg := range segments {
		if utf8.RuneCountInString(strings.TrimSpace(seg.Text)) > minSegmentSentiment {
			indexes = append(indexes, i)
		}
	}
	var out []analysis.SegmentSentiment
	for start := 0; start < len(indexes); start += detect.MaxBatchSize {
		end := min(start+detect.MaxBatchSize, len(indexes))
		batch := indexes[start:end]
		texts := make([]string, len(batch))
		for i, idx := range batch {
			texts[i] = segments[idx].Text
		}
		results, err := scorer.ScoreBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return out
			}
			rs.degraded("segment sentiment batch failed", err, logging.Int("batch_size", len(batch)))
			continue
		}
		for i, res := range results {
			if i >= len(batch) || res == nil {
				continue
			}
			out = append(out, analysis.SegmentSentiment{SegmentIndex: batch[i], Sentiment: res.Clamped()})
		}
	}
	return out
}

func (rs *runState) enhance(ctx context.Context) error {
	var segments []analysis.TranscriptionSegment
	if rs.sess.Audio != nil {
		segments = rs.sess.Audio.Segments
	}

	if ic := rs.sess.InjuryCheck; ic != nil && ic.ErrorMessage == "" && len(ic.Labels) > 0 {
		interp, report, err := rs.interpretLabels(ctx, ic.Labels, segments)
		if err != nil {
			rs.reasoningFailed(aggregate.CallLabels, report, err)
		} else {
			merged := interp.Apply(*ic)
			rs.sess.InjuryCheck = &merged
			rs.reasoningSucceeded(report)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := rs.report(ctx, 0.5, "Interpreted moderation labels", false); err != nil {
		return err
	}

	if transcript := analysis.JoinTranscript(segments); transcript != "" {
		verbal, report, err := rs.analyzeVerbal(ctx, transcript)
		if err != nil {
			rs.reasoningFailed(aggregate.CallVerbal, report, err)
		} else {
			if rs.sess.InjuryCheck == nil {
				rs.sess.InjuryCheck = &analysis.InjuryCheckResult{}
			}
			rs.sess.InjuryCheck.Verbal = verbal
			rs.reasoningSucceeded(report)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return rs.report(ctx, 1, "Enhancement complete", true)
}

func (rs *runState) aggregate(ctx context.Context) error {
	var sentiment *analysis.SentimentResult
	var transcript string
	if rs.sess.Audio != nil {
		sentiment = rs.sess.Audio.OverallSentiment
		transcript = rs.sess.Audio.FullTranscript()
	}
	base := indicators.Input{
		EmotionSummary: rs.sess.EmotionSummary,
		Sentiment:      sentiment,
		InjuryCheck:    rs.sess.InjuryCheck,
	}
	preliminary := indicators.Evaluate(base)

	assessment, report, err := rs.crossReference(ctx, aggregate.Input{
		EmotionSummary: rs.sess.EmotionSummary,
		Transcript:     transcript,
		Sentiment:      sentiment,
		InjuryCheck:    rs.sess.InjuryCheck,
		Indicators:     preliminary,
	})
	if err != nil {
		rs.reasoningFailed(aggregate.CallAggregate, report, err)
	} else {
		rs.sess.Aggregate = assessment
		rs.reasoningSucceeded(report)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	base.Aggregate = rs.sess.Aggregate
	rs.sess.Indicators = indicators.Evaluate(base)

	if rs.reasoningCalls > 0 && rs.reasoningFailures == rs.reasoningCalls {
		logging.WarnWithContext(rs.logger, "all reasoning calls failed", "reasoning_unavailable",
			logging.Int("calls", rs.reasoningCalls),
			logging.String(logging.FieldErrorHint, "check llm provider configuration and availability"),
			logging.String(logging.FieldImpact, "result carries rule-based indicators only"),
		)
	}
	return rs.report(ctx, 1, fmt.Sprintf("Derived %d clinical indicators", len(rs.sess.Indicators)), true)
}

func (rs *runState) interpretLabels(ctx context.Context, labels []analysis.ModerationLabel, segments []analysis.TranscriptionSegment) (*aggregate.LabelInterpretation, aggregate.Report, error) {
	rs.reasoningCalls++
	if rs.runner.reasoning == nil {
		return nil, aggregate.Report{Call: aggregate.CallLabels}, errNoReasoning
	}
	return rs.runner.reasoning.InterpretLabels(ctx, labels, segments)
}

func (rs *runState) analyzeVerbal(ctx context.Context, transcript string) (*analysis.VerbalAnalysis, aggregate.Report, error) {
	rs.reasoningCalls++
	if rs.runner.reasoning == nil {
		return nil, aggregate.Report{Call: aggregate.CallVerbal}, errNoReasoning
	}
	return rs.runner.reasoning.AnalyzeVerbal(ctx, transcript)
}

func (rs *runState) crossReference(ctx context.Context, in aggregate.Input) (*analysis.AggregateAssessment, aggregate.Report, error) {
	rs.reasoningCalls++
	if rs.runner.reasoning == nil {
		return nil, aggregate.Report{Call: aggregate.CallAggregate}, errNoReasoning
	}
	return rs.runner.reasoning.Aggregate(ctx, in)
}

var errNoReasoning = services.Wrap(services.ErrDegradedStage, "reasoning", "", "no reasoning backend configured", services.ErrConfiguration)

func (rs *runState) reasoningFailed(call string, report aggregate.Report, err error) {
	rs.reasoningFailures++
	rs.degraded("reasoning call degraded", err,
		logging.String("call", call),
		logging.Int("attempts", report.Attempts),
		logging.String("parse", report.Parse.String()),
	)
}

func (rs *runState) reasoningSucceeded(report aggregate.Report) {
	rs.logger.Info("reasoning call completed",
		logging.String(logging.FieldEventType, "reasoning_complete"),
		logging.String("call", report.Call),
		logging.Int("attempts", report.Attempts),
		logging.String("parse", report.Parse.String()),
	)
}
