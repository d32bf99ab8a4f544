package pipeline

import (
	"testing"

	"vigil/internal/session"
)

func TestOverallProgressBands(t *testing.T) {
	tests := []struct {
		status session.Status
		local  float64
		want   float64
	}{
		{session.StatusUploading, 0, 0},
		{session.StatusProcessingVideo, 0, 0.05},
		{session.StatusProcessingVideo, 0.5, 0.25},
		{session.StatusProcessingInjuryCheck, 0, 0.45},
		{session.StatusProcessingAudio, 0, 0.55},
		{session.StatusProcessingBedrockEnhancement, 0, 0.75},
		{session.StatusAggregating, 0, 0.90},
		{session.StatusCompleted, 0, 1},
		{session.StatusFailed, 0.5, 0},
	}
	for _, tc := range tests {
		if got := OverallProgress(tc.status, tc.local); abs(got-tc.want) > 1e-9 {
			t.Fatalf("OverallProgress(%s, %.2f) = %.4f, want %.4f", tc.status, tc.local, got, tc.want)
		}
	}
	if got := OverallProgress(session.StatusProcessingVideo, 1); got >= 0.45 {
		t.Fatalf("stage progress must stay inside its band, got %.4f", got)
	}
}

func TestProgressTrackerIsMonotonic(t *testing.T) {
	tr := newProgressTracker(0.2)
	if tr.advance(0.1) != 0.2 || tr.advance(0.3) != 0.3 || tr.advance(0.25) != 0.3 {
		t.Fatal("tracker must never decrease")
	}
}

func TestStageLabel(t *testing.T) {
	if got := StageLabel(session.StatusProcessingBedrockEnhancement); got != "Processing Bedrock Enhancement" {
		t.Fatalf("StageLabel = %q", got)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
