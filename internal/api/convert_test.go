package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"vigil/internal/analysis"
	"vigil/internal/logging"
	"vigil/internal/session"
)

func TestFromSessionFormatsSummary(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("X", 3600))
	s := &session.Session{
		ID:              "s1",
		PatientID:       "p1",
		Status:          session.StatusProcessingBedrockEnhancement,
		Progress:        0.8,
		ProgressMessage: "Interpreted moderation labels",
		CreatedAt:       created,
	}
	dto := FromSession(s)
	if dto.StatusLabel != "Processing Bedrock Enhancement" {
		t.Fatalf("status label = %q", dto.StatusLabel)
	}
	if dto.CreatedAt != "2026-03-04T04:06:07.008Z" {
		t.Fatalf("created at = %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("zero time should be omitted, got %q", dto.UpdatedAt)
	}
}

func TestFromSessionDetailJSON(t *testing.T) {
	s := &session.Session{
		ID:             "s1",
		VideoRef:       "s3://bucket/a.mp4",
		Status:         session.StatusCompleted,
		Progress:       1,
		EmotionSummary: map[string]float64{"discomfort": 0.35},
		Indicators:     []analysis.ClinicalIndicator{{Type: "discomfort", Confidence: 0.35}},
	}
	data, err := json.Marshal(FromSessionDetail(s))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{`"session_id":"s1"`, `"status":"completed"`, `"clinical_indicators"`, `"emotion_summary"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Contains(body, `"aggregate"`) {
		t.Fatalf("absent aggregate must be omitted: %s", body)
	}
}

func TestFromLogEvents(t *testing.T) {
	if FromLogEvents(nil) != nil {
		t.Fatal("expected nil for no events")
	}
	got := FromLogEvents([]logging.LogEvent{{Sequence: 3, Level: "INFO", Message: "stage started", SessionID: "s1"}})
	if len(got) != 1 || got[0].Sequence != 3 || got[0].SessionID != "s1" || got[0].Timestamp != "" {
		t.Fatalf("unexpected events %+v", got)
	}
}
