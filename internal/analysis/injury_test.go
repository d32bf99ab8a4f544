package analysis_test

import (
	"strings"
	"testing"

	"vigil/internal/analysis"
)

func TestInterpretModeration(t *testing.T) {
	tests := []struct {
		name       string
		labels     []analysis.ModerationLabel
		signals    bool
		summary    string
		confidence float64
	}{
		{
			name:    "no labels",
			summary: analysis.SummaryNoLabels,
		},
		{
			name:    "irrelevant labels",
			labels:  []analysis.ModerationLabel{{Name: "Alcohol", Confidence: 0.8}, {Name: "Smoking", Confidence: 0.6}},
			summary: analysis.SummaryNoRelevantLabel,
		},
		{
			name: "relevant labels",
			labels: []analysis.ModerationLabel{
				{Name: "Blood & Gore", Confidence: 0.6},
				{Name: "Alcohol", Confidence: 0.95},
				{Name: "Physical Violence", Confidence: 0.82, ParentName: "Violence"},
			},
			signals:    true,
			summary:    "Content moderation detected: Blood & Gore, Physical Violence.",
			confidence: 0.82,
		},
		{
			name:       "parent category",
			labels:     []analysis.ModerationLabel{{Name: "Emaciated Bodies", Confidence: 0.7, ParentName: "Visually Disturbing"}},
			signals:    true,
			summary:    "Content moderation detected: Emaciated Bodies.",
			confidence: 0.7,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := analysis.InterpretModeration(tc.labels)
			if !got.Checked {
				t.Fatal("expected checked result")
			}
			if got.HasSignals != tc.signals || got.Summary != tc.summary || got.Confidence != tc.confidence {
				t.Fatalf("unexpected result %+v", got)
			}
			if len(got.Labels) != len(tc.labels) {
				t.Fatalf("labels = %d, want %d", len(got.Labels), len(tc.labels))
			}
		})
	}
}

func TestFailedInjuryCheck(t *testing.T) {
	got := analysis.FailedInjuryCheck("gateway returned 503")
	if !strings.HasPrefix(got.ErrorMessage, "Content moderation failed: ") || got.HasSignals || got.Checked {
		t.Fatalf("unexpected failure result %+v", got)
	}
	if analysis.FailedInjuryCheck("").ErrorMessage == "Content moderation failed: " {
		t.Fatal("expected a reason placeholder")
	}
}
