package detect

import (
	"encoding/json"
	"testing"
)

func decodeTranscript(t *testing.T, raw string) Transcript {
	t.Helper()
	var tr Transcript
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	return tr
}

func TestTranscriptSegmentsSplitAtSentenceEnd(t *testing.T) {
	tr := decodeTranscript(t, `{"results":{"items":[
		{"type":"pronunciation","start_time":"0.5","end_time":"0.9","alternatives":[{"content":"I","confidence":"0.99"}]},
		{"type":"pronunciation","start_time":"1.0","end_time":"1.4","alternatives":[{"content":"hurt","confidence":"0.95"}]},
		{"type":"punctuation","alternatives":[{"content":"."}]},
		{"type":"pronunciation","start_time":"2.0","end_time":"2.4","alternatives":[{"content":"Really","confidence":"0.80"}]},
		{"type":"punctuation","alternatives":[{"content":"?"}]}
	]}}`)
	segs := tr.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "I hurt." || segs[0].StartTime != 0.5 || segs[0].EndTime != 1.4 {
		t.Fatalf("unexpected first segment %+v", segs[0])
	}
	if segs[0].Confidence != 0.95 {
		t.Fatalf("expected closing word confidence, got %v", segs[0].Confidence)
	}
	if segs[1].Text != "Really?" {
		t.Fatalf("unexpected second segment %q", segs[1].Text)
	}
}

func TestTranscriptSegmentsSplitEveryTenWords(t *testing.T) {
	items := make([]map[string]any, 0, 13)
	for i := 0; i < 12; i++ {
		items = append(items, map[string]any{
			"type":         "pronunciation",
			"start_time":   "1.0",
			"end_time":     "1.5",
			"alternatives": []map[string]string{{"content": "word", "confidence": "0.9"}},
		})
		if i == 9 {
			items = append(items, map[string]any{
				"type":         "punctuation",
				"alternatives": []map[string]string{{"content": ","}},
			})
		}
	}
	raw, _ := json.Marshal(map[string]any{"results": map[string]any{"items": items}})
	segs := decodeTranscript(t, string(raw)).Segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if got := segs[0].Text; got != "word word word word word word word word word word," {
		t.Fatalf("unexpected first segment %q", got)
	}
	if segs[1].Text != "word word" {
		t.Fatalf("unexpected tail segment %q", segs[1].Text)
	}
}

func TestTranscriptAssignsSpeakers(t *testing.T) {
	tr := decodeTranscript(t, `{"results":{
		"items":[
			{"type":"pronunciation","start_time":"0.0","end_time":"0.5","alternatives":[{"content":"Hello","confidence":"0.9"}]},
			{"type":"punctuation","alternatives":[{"content":"."}]},
			{"type":"pronunciation","start_time":"3.0","end_time":"3.5","alternatives":[{"content":"Hi","confidence":"0.9"}]}
		],
		"speaker_labels":{"segments":[
			{"speaker_label":"spk_0","start_time":"0.0","end_time":"2.0"},
			{"speaker_label":"spk_1","start_time":"2.5","end_time":"4.0"}
		]}
	}}`)
	segs := tr.Segments()
	if len(segs) != 2 || segs[0].Speaker != "spk_0" || segs[1].Speaker != "spk_1" {
		t.Fatalf("unexpected speakers %+v", segs)
	}
}

func TestTranscriptEmpty(t *testing.T) {
	if segs := (Transcript{}).Segments(); len(segs) != 0 {
		t.Fatalf("expected no segments, got %+v", segs)
	}
}
