package aggregate

import (
	"testing"

	"vigil/internal/analysis"
)

func TestParseResponseKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ParseKind
	}{
		{"strict", `{"has_signals": false, "summary": "none"}`, Parsed},
		{"fenced", "```json\n{\"has_signals\": true}\n```", PartiallyRecovered},
		{"prose", `Result: {"has_signals": true} done`, PartiallyRecovered},
		{"pattern", `{"has_signals": true, "confidence": "high", "summary": "cut \"marks\""`, PartiallyRecovered},
		{"garbage", "no idea", Unrecoverable},
		{"null", "null", Unrecoverable},
		{"empty object", "{}", Unrecoverable},
		{"verdict missing", `{"summary": "Context unclear."}`, Unrecoverable},
		{"verdict null", `{"has_signals": null, "summary": "x"}`, Unrecoverable},
		{"empty", "   ", Unrecoverable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseResponse[LabelInterpretation](tc.raw, extractLabelInterpretation)
			if got.Kind != tc.want {
				t.Fatalf("kind = %v, want %v (err %v)", got.Kind, tc.want, got.Err)
			}
			if tc.want == Unrecoverable && got.Err == nil {
				t.Fatal("expected error for unrecoverable result")
			}
		})
	}
}

func TestPatternExtractionUnescapes(t *testing.T) {
	got := parseResponse[LabelInterpretation](`{"has_signals": true, "confidence": "x", "summary": "cut \"marks\""`, extractLabelInterpretation)
	if got.Value.Summary != `cut "marks"` || got.Value.HasSignals == nil || !*got.Value.HasSignals {
		t.Fatalf("unexpected extraction %+v", got.Value)
	}
}

func TestPatternExtractionLeavesConfidenceUnsetWhenAbsent(t *testing.T) {
	got := parseResponse[LabelInterpretation](`{"has_signals": false, "summary": "ok"`, extractLabelInterpretation)
	if got.Kind != PartiallyRecovered || got.Value.Confidence != nil {
		t.Fatalf("unexpected extraction %+v", got)
	}
}

func TestTranscriptContext(t *testing.T) {
	segments := []analysis.TranscriptionSegment{
		{Text: "first", StartTime: 0, EndTime: 4},
		{Text: "second", StartTime: 15, EndTime: 18},
		{Text: "third", StartTime: 40, EndTime: 42},
	}
	got := TranscriptContext(segments, []int64{12_000, 5_000}, ContextWindowMS)
	if got != "first second" {
		t.Fatalf("unexpected context %q", got)
	}
	if TranscriptContext(segments, nil, ContextWindowMS) != "" {
		t.Fatal("expected empty context without timestamps")
	}
}

func TestTruncateRunes(t *testing.T) {
	if truncateRunes("héllo", 2) != "hé" {
		t.Fatal("unexpected rune truncation")
	}
	if truncateRunes("abc", 10) != "abc" {
		t.Fatal("short string should be unchanged")
	}
}
