package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/aggregate"
	"vigil/internal/analysis"
	"vigil/internal/detect"
	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/session"
	"vigil/internal/stream"
)

const (
	defaultMinModerationConfidence = 0.5
	terminalWriteTimeout           = 10 * time.Second
)

// Publisher receives stream messages for a session.
type Publisher interface {
	Publish(sessionID string, msg stream.Message)
}

// Reasoning is the cross-reference aggregator used by the enhancement and
// aggregation stages.
type Reasoning interface {
	InterpretLabels(ctx context.Context, labels []analysis.ModerationLabel, segments []analysis.TranscriptionSegment) (*aggregate.LabelInterpretation, aggregate.Report, error)
	AnalyzeVerbal(ctx context.Context, transcript string) (*analysis.VerbalAnalysis, aggregate.Report, error)
	Aggregate(ctx context.Context, in aggregate.Input) (*analysis.AggregateAssessment, aggregate.Report, error)
}

// Options tunes a Runner.
type Options struct {
	// MinModerationConfidence drops moderation labels below this value
	// before interpretation.
	MinModerationConfidence float64
	Logger                  *slog.Logger
}

// Runner executes the stage sequence for one session at a time. It is safe
// to call Run concurrently for different sessions.
type Runner struct {
	store     session.Store
	detectors detect.Suite
	reasoning Reasoning
	publisher Publisher
	minConf   float64
	logger    *slog.Logger
}

// NewRunner constructs a Runner. A nil publisher discards stream messages.
func NewRunner(store session.Store, detectors detect.Suite, reasoning Reasoning, publisher Publisher, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	minConf := opts.MinModerationConfidence
	if minConf <= 0 {
		minConf = defaultMinModerationConfidence
	}
	return &Runner{
		store:     store,
		detectors: detectors,
		reasoning: reasoning,
		publisher: publisher,
		minConf:   minConf,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// stageSpec binds a status to the work done while the session holds it.
type stageSpec struct {
	status session.Status
	name   string
	run    func(rs *runState, ctx context.Context) error
}

var stageSequence = []stageSpec{
	{session.StatusUploading, "uploading", (*runState).validateRefs},
	{session.StatusProcessingVideo, "video", (*runState).analyzeVideo},
	{session.StatusProcessingInjuryCheck, "injury_check", (*runState).checkInjury},
	{session.StatusProcessingAudio, "audio", (*runState).analyzeAudio},
	{session.StatusProcessingBedrockEnhancement, "enhancement", (*runState).enhance},
	{session.StatusAggregating, "aggregating", (*runState).aggregate},
}

// CancelFunc reports whether an operator asked to stop the run. It is
// polled between stages.
type CancelFunc func() bool

// errCancelled and errStopped carry the fixed failure messages for runs
// stopped from outside.
var (
	errCancelled = errors.New(session.CancelledReason)
	errStopped   = errors.New(session.DaemonStopReason)
)

// Run drives sess from pending to a terminal status and returns the final
// snapshot. A non-nil error means the session ended failed.
func (r *Runner) Run(ctx context.Context, sess *session.Session, cancelled CancelFunc) (*session.Session, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if sess.Status != session.StatusPending {
		return sess.Clone(), fmt.Errorf("%w: session %s is %s", session.ErrDuplicateStart, sess.ID, sess.Status)
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	ctx = services.WithSessionID(ctx, sess.ID)
	rs := &runState{
		runner:   r,
		sess:     sess.Clone(),
		progress: newProgressTracker(sess.Progress),
		sampler:  logging.NewProgressSampler(0.1),
		logger:   logging.WithContext(ctx, r.logger),
	}
	runStart := time.Now()
	rs.logger.Info("analysis started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("video_ref", sess.VideoRef),
		logging.String("patient_id", sess.PatientID),
	)

	for _, step := range stageSequence {
		if cancelled() {
			return rs.fail(ctx, step.name, errCancelled)
		}
		if ctx.Err() != nil {
			return rs.fail(ctx, step.name, errStopped)
		}
		stageCtx := services.WithRequestID(services.WithStage(ctx, step.name), uuid.NewString())
		rs.logger = logging.WithContext(stageCtx, r.logger)
		rs.sampler.Reset()

		if err := rs.enter(stageCtx, step.status); err != nil {
			return rs.fail(ctx, step.name, err)
		}
		stageStart := time.Now()
		rs.logger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("processing_status", string(step.status)),
		)
		if err := step.run(rs, stageCtx); err != nil {
			if ctx.Err() != nil {
				return rs.fail(ctx, step.name, errStopped)
			}
			return rs.fail(ctx, step.name, err)
		}
		rs.logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("processing_status", string(step.status)),
			logging.Float64("progress", rs.sess.Progress),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
	}

	rs.logger = logging.WithContext(services.WithStage(ctx, "compose"), r.logger)
	if err := rs.complete(ctx); err != nil {
		return rs.fail(ctx, "compose", err)
	}
	rs.logger.Info("analysis completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("indicators", len(rs.sess.Indicators)),
		logging.Bool("aggregate_present", rs.sess.Aggregate != nil),
		logging.Duration("duration", time.Since(runStart)),
	)
	return rs.sess.Clone(), nil
}

// runState is the orchestrator's working copy of one session. Only the run
// goroutine touches it; readers get clones through the store.
type runState struct {
	runner   *Runner
	sess     *session.Session
	progress *progressTracker
	sampler  *logging.ProgressSampler
	logger   *slog.Logger

	reasoningCalls    int
	reasoningFailures int
}

func (rs *runState) enter(ctx context.Context, status session.Status) error {
	rs.sess.Status = status
	return rs.report(ctx, 0, StageLabel(status), true)
}

// report publishes a status_update with the stage-local fraction mapped onto
// the overall band, persisting the snapshot when persist is set.
func (rs *runState) report(ctx context.Context, local float64, message string, persist bool) error {
	rs.sess.Progress = rs.progress.advance(OverallProgress(rs.sess.Status, local))
	rs.sess.ProgressMessage = message
	if persist {
		if err := rs.persist(ctx); err != nil {
			return err
		}
	}
	rs.publish(stream.NewStatusUpdate(rs.sess.Status, rs.sess.Progress, message))
	if rs.sampler.ShouldLog(local, string(rs.sess.Status)) {
		rs.logger.Debug("stage progress",
			logging.String(logging.FieldEventType, "stage_progress"),
			logging.Float64("progress", rs.sess.Progress),
			logging.String("progress_message", message),
		)
	}
	return nil
}

func (rs *runState) persist(ctx context.Context) error {
	if err := rs.runner.store.Replace(ctx, rs.sess.Clone()); err != nil {
		return services.Wrap(services.ErrFatalStage, "", "persist session", "Could not save analysis progress", err)
	}
	return nil
}

func (rs *runState) publish(msg stream.Message) {
	if rs.runner.publisher != nil {
		rs.runner.publisher.Publish(rs.sess.ID, msg)
	}
}

func (rs *runState) complete(ctx context.Context) error {
	rs.sess.Status = session.StatusCompleted
	rs.sess.Progress = rs.progress.advance(1)
	rs.sess.ProgressMessage = "Analysis complete"
	rs.sess.ErrorMessage = ""
	if err := rs.runner.store.Replace(ctx, rs.sess.Clone()); err != nil {
		rs.sess.Status = session.StatusAggregating
		return services.Wrap(services.ErrFatalStage, "compose", "persist result", "Could not save the final result", err)
	}
	rs.publish(stream.NewStatusUpdate(session.StatusCompleted, 1, rs.sess.ProgressMessage))
	rs.publish(stream.NewComplete(rs.sess.Clone()))
	return nil
}

// fail records a fatal outcome. The terminal write ignores cancellation of
// ctx so shutdown still leaves a failed record behind.
func (rs *runState) fail(ctx context.Context, stageName string, cause error) (*session.Session, error) {
	message := services.FailureMessage(cause)
	if errors.Is(cause, errCancelled) || errors.Is(cause, errStopped) {
		message = cause.Error()
	}
	rs.sess.Status = session.StatusFailed
	rs.sess.ErrorMessage = message
	rs.sess.ProgressMessage = message

	details := services.Details(cause)
	logging.ErrorWithContext(rs.logger, "stage failed", "stage_failure",
		logging.String(logging.FieldStage, stageName),
		logging.String("resolved_status", string(session.StatusFailed)),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Alert("stage_failure"),
		logging.Error(cause),
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if err := rs.runner.store.Replace(writeCtx, rs.sess.Clone()); err != nil {
		rs.logger.Error("failed to persist stage failure", logging.Error(err))
	}
	rs.publish(stream.NewError(message))
	rs.publish(stream.NewStatusUpdate(session.StatusFailed, rs.sess.Progress, message))

	if errors.Is(cause, errCancelled) || errors.Is(cause, errStopped) {
		return rs.sess.Clone(), cause
	}
	if errors.Is(cause, services.ErrFatalStage) {
		return rs.sess.Clone(), cause
	}
	return rs.sess.Clone(), fmt.Errorf("%w: %w", services.ErrFatalStage, cause)
}

// degraded logs a non-fatal stage failure.
func (rs *runState) degraded(msg string, err error, attrs ...logging.Attr) {
	details := services.Details(err)
	attrs = append(attrs,
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "result field left empty or annotated; analysis continues"),
		logging.Error(err),
	)
	logging.WarnWithContext(rs.logger, msg, "stage_degraded", attrs...)
}
