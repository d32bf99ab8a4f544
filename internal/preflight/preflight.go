package preflight

import (
	"context"
	"log/slog"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every preflight check for the given config. The LLM check
// only inspects configuration; CheckHealth performs a live call.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckGateway(ctx, cfg),
		CheckLLMConfig(cfg.GetLLM()),
	}
	return results
}

// FromHealth converts health records into preflight results.
func FromHealth(records []stage.Health) []Result {
	out := make([]Result, 0, len(records))
	for _, h := range records {
		detail := h.Detail
		if h.Ready && detail == "" {
			detail = "ready"
		}
		out = append(out, Result{Name: h.Name, Passed: h.Ready, Detail: detail})
	}
	return out
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// LogResults writes one line per check, warning on failures.
func LogResults(logger *slog.Logger, results []Result) {
	if logger == nil {
		return
	}
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
			logging.String(logging.FieldImpact, "sessions depending on this check will fail or degrade"),
		)
	}
}
