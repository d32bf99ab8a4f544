package detect

import (
	"sort"
	"strconv"
	"strings"

	"vigil/internal/analysis"
)

const wordsPerSegment = 10

// Transcript is the word-level transcript document returned by the
// speech-to-text job.
type Transcript struct {
	Results struct {
		Items         []TranscriptItem `json:"items"`
		SpeakerLabels *struct {
			Segments []SpeakerSegment `json:"segments"`
		} `json:"speaker_labels"`
	} `json:"results"`
}

// TranscriptItem is one pronunciation or punctuation token. Times are
// decimal seconds encoded as strings.
type TranscriptItem struct {
	Type         string `json:"type"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Alternatives []struct {
		Content    string `json:"content"`
		Confidence string `json:"confidence"`
	} `json:"alternatives"`
}

// SpeakerSegment attributes a time span to a speaker label.
type SpeakerSegment struct {
	SpeakerLabel string `json:"speaker_label"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

// Segments groups transcript words into segments. A segment closes after
// ten words or at sentence-ending punctuation; punctuation attaches to the
// preceding word. The segment confidence is that of its last word.
func (t Transcript) Segments() []analysis.TranscriptionSegment {
	var (
		segments []analysis.TranscriptionSegment
		words    []string
		start    float64
		end      float64
		conf     float64
	)
	flush := func() {
		if len(words) == 0 {
			return
		}
		segments = append(segments, analysis.TranscriptionSegment{
			Text:       strings.Join(words, " "),
			StartTime:  start,
			EndTime:    end,
			Confidence: analysis.Clamp01(conf),
		})
		words = nil
	}

	for _, item := range t.Results.Items {
		if len(item.Alternatives) == 0 {
			continue
		}
		content := strings.TrimSpace(item.Alternatives[0].Content)
		if content == "" {
			continue
		}
		switch item.Type {
		case "pronunciation":
			if len(words) >= wordsPerSegment {
				flush()
			}
			if len(words) == 0 {
				start = parseSeconds(item.StartTime)
			}
			end = parseSeconds(item.EndTime)
			conf = parseSeconds(item.Alternatives[0].Confidence)
			words = append(words, content)
		case "punctuation":
			switch {
			case len(words) > 0:
				words[len(words)-1] += content
				if isSentenceEnd(content) {
					flush()
				}
			case len(segments) > 0:
				segments[len(segments)-1].Text += content
			}
		}
	}
	flush()

	t.assignSpeakers(segments)
	return segments
}

func (t Transcript) assignSpeakers(segments []analysis.TranscriptionSegment) {
	if t.Results.SpeakerLabels == nil || len(t.Results.SpeakerLabels.Segments) == 0 {
		return
	}
	spans := make([]speakerSpan, 0, len(t.Results.SpeakerLabels.Segments))
	for _, s := range t.Results.SpeakerLabels.Segments {
		if s.SpeakerLabel == "" {
			continue
		}
		spans = append(spans, speakerSpan{
			label: s.SpeakerLabel,
			start: parseSeconds(s.StartTime),
			end:   parseSeconds(s.EndTime),
		})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := range segments {
		for _, span := range spans {
			if segments[i].StartTime >= span.start && segments[i].StartTime <= span.end {
				segments[i].Speaker = span.label
				break
			}
		}
	}
}

type speakerSpan struct {
	label      string
	start, end float64
}

func isSentenceEnd(p string) bool {
	return strings.HasSuffix(p, ".") || strings.HasSuffix(p, "?") || strings.HasSuffix(p, "!")
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return v
}
