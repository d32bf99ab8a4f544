package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vigil/internal/session"
)

type band struct {
	lo, hi float64
}

var progressBands = map[session.Status]band{
	session.StatusPending:                      {0, 0},
	session.StatusUploading:                    {0, 0.05},
	session.StatusProcessingVideo:              {0.05, 0.45},
	session.StatusProcessingInjuryCheck:        {0.45, 0.55},
	session.StatusProcessingAudio:              {0.55, 0.75},
	session.StatusProcessingBedrockEnhancement: {0.75, 0.90},
	session.StatusAggregating:                  {0.90, 1.0},
	session.StatusCompleted:                    {1, 1},
}

// OverallProgress maps a stage-local fraction onto the status band.
func OverallProgress(status session.Status, local float64) float64 {
	b, ok := progressBands[status]
	if !ok {
		return 0
	}
	if status == session.StatusCompleted {
		return 1
	}
	if local < 0 {
		local = 0
	}
	if local > 1 {
		local = 1
	}
	v := b.lo + local*(b.hi-b.lo)
	// The next band owns hi.
	if v >= b.hi && b.hi > b.lo {
		v = b.hi - 0.001
	}
	return v
}

// progressTracker keeps overall progress monotonic within one run.
type progressTracker struct {
	last float64
}

func newProgressTracker(start float64) *progressTracker {
	return &progressTracker{last: start}
}

func (t *progressTracker) advance(v float64) float64 {
	if v > t.last {
		t.last = v
	}
	return t.last
}

// StageLabel renders a status as a human readable label. Casers are not safe
// for concurrent use, so each call builds its own.
func StageLabel(status session.Status) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(status), "_", " "))
}
