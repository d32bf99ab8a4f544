package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/session"
)

const (
	janitorRunTimeout  = 5 * time.Minute
	janitorStopTimeout = 10 * time.Second
)

// janitor prunes old terminal sessions and daemon log files on a cron
// schedule.
type janitor struct {
	cron         *cron.Cron
	schedule     string
	store        session.Store
	sessionDays  int
	logDir       string
	logRetention int
	logger       *slog.Logger
	now          func() time.Time
}

func newJanitor(cfg *config.Config, store session.Store, logger *slog.Logger) *janitor {
	return &janitor{
		cron:         cron.New(),
		schedule:     cfg.Retention.Schedule,
		store:        store,
		sessionDays:  cfg.Retention.SessionDays,
		logDir:       cfg.Paths.LogDir,
		logRetention: cfg.Logging.RetentionDays,
		logger:       logging.NewComponentLogger(logger, "janitor"),
		now:          time.Now,
	}
}

// start registers the job and starts the scheduler without blocking.
func (j *janitor) start() error {
	if _, err := j.cron.AddJob(j.schedule, j); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("retention janitor scheduled",
		logging.String("schedule", j.schedule),
		logging.Int("session_days", j.sessionDays),
		logging.Int("log_retention_days", j.logRetention),
	)
	return nil
}

func (j *janitor) stop() {
	ctx := j.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(janitorStopTimeout):
		j.logger.Warn("janitor stop timed out; a retention run may still be in progress")
	}
}

// Run implements cron.Job.
func (j *janitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), janitorRunTimeout)
	defer cancel()
	j.runOnce(ctx)
}

// runOnce deletes expired sessions and log files and reports both counts.
func (j *janitor) runOnce(ctx context.Context) (int, int) {
	deleted := 0
	if j.sessionDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.sessionDays)
		n, err := j.store.DeleteTerminalBefore(ctx, cutoff)
		if err != nil {
			logging.WarnWithContext(j.logger, "session retention failed", "retention_failed",
				logging.String(logging.FieldErrorHint, "check session store availability"),
				logging.String(logging.FieldImpact, "expired sessions remain until the next run"),
				logging.Error(err),
			)
		}
		deleted = n
	}
	pruned := logging.CleanupOldLogs(j.logger, j.logRetention,
		logging.RetentionTarget{
			Dir:     j.logDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(j.logDir, logging.DaemonLogName)},
		},
	)
	j.logger.Info("retention run complete",
		logging.String(logging.FieldEventType, "retention_complete"),
		logging.Int("sessions_deleted", deleted),
		logging.Int("logs_pruned", pruned),
	)
	return deleted, pruned
}
