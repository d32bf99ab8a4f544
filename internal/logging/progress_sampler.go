package logging

import (
	"math"
	"strings"
)

// ProgressSampler decides which progress updates are worth a log line: the
// first update of each stage, then one per bucket crossed.
type ProgressSampler struct {
	step   float64
	stage  string
	bucket int
}

// NewProgressSampler builds a sampler over [0,1] progress with the given
// bucket width. Widths outside (0,1] fall back to 0.1.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 || step > 1 {
		step = 0.1
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Negative
// progress only participates in stage-change detection.
func (s *ProgressSampler) ShouldLog(progress float64, stage string) bool {
	if s == nil {
		return true
	}
	changed := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage, s.bucket = stage, -1
		changed = true
	}
	if progress < 0 {
		return changed
	}
	if b := int(math.Min(progress, 1) / s.step); b > s.bucket {
		s.bucket = b
		return true
	}
	return changed
}

// Reset forgets the last stage and bucket.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.stage, s.bucket = "", -1
	}
}
