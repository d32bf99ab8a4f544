package stage

import "context"

// HealthChecker is implemented by every detector adapter and reasoning
// backend so the daemon can report readiness without running a session.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// CheckAll runs every checker in order and collects the results.
func CheckAll(ctx context.Context, checkers ...HealthChecker) []Health {
	out := make([]Health, 0, len(checkers))
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		out = append(out, checker.HealthCheck(ctx))
	}
	return out
}

// AllReady reports whether every record is ready.
func AllReady(records []Health) bool {
	for _, h := range records {
		if !h.Ready {
			return false
		}
	}
	return true
}
