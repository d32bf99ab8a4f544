package aggregate

import (
	"strings"

	"vigil/internal/analysis"
)

// ContextWindowMS is how far either side of a moderation label's timestamp
// transcript text is gathered.
const ContextWindowMS = 10_000

// TranscriptContext returns the text of every segment overlapping
// [ts-window, ts+window] for any of the timestamps. Each segment appears at
// most once, in the order first matched.
func TranscriptContext(segments []analysis.TranscriptionSegment, timestampsMS []int64, windowMS int64) string {
	if len(segments) == 0 || len(timestampsMS) == 0 {
		return ""
	}
	seen := make(map[int]struct{}, len(segments))
	var parts []string
	for _, ts := range timestampsMS {
		lower := float64(ts - windowMS)
		upper := float64(ts + windowMS)
		for i, seg := range segments {
			if _, ok := seen[i]; ok {
				continue
			}
			if seg.EndTime*1000 >= lower && seg.StartTime*1000 <= upper {
				seen[i] = struct{}{}
				if text := strings.TrimSpace(seg.Text); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// labelTimestamps collects label timestamps, treating a missing one as 0.
func labelTimestamps(labels []analysis.ModerationLabel) []int64 {
	out := make([]int64, 0, len(labels))
	for _, l := range labels {
		if l.TimestampMS != nil {
			out = append(out, *l.TimestampMS)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
