package analysis

import (
	"fmt"
	"strings"
)

// Injury check summaries.
const (
	SummaryNoLabels        = "No concerning content detected."
	SummaryNoRelevantLabel = "No injury or violence-related content detected."
	moderationFailedPrefix = "Content moderation failed: "
)

// injuryKeywords flag moderation labels that relate to injury or violence.
var injuryKeywords = []string{
	"self-harm",
	"self harm",
	"violence",
	"graphic violence",
	"visually disturbing",
	"physical abuse",
	"abuse",
	"wounds",
	"blood",
	"fighting",
	"assault",
}

// IsInjuryRelated reports whether the label name or its parent category
// mentions an injury keyword.
func IsInjuryRelated(label ModerationLabel) bool {
	name := strings.ToLower(label.Name)
	parent := strings.ToLower(label.ParentName)
	for _, kw := range injuryKeywords {
		if strings.Contains(name, kw) || (parent != "" && strings.Contains(parent, kw)) {
			return true
		}
	}
	return false
}

// InterpretModeration turns retained labels into an injury check result.
// Confidence is the highest relevant label confidence, or 0 when nothing
// relevant was found.
func InterpretModeration(labels []ModerationLabel) InjuryCheckResult {
	out := InjuryCheckResult{Checked: true, Labels: append([]ModerationLabel(nil), labels...)}
	if len(labels) == 0 {
		out.Summary = SummaryNoLabels
		return out
	}
	var names []string
	best := 0.0
	for _, label := range labels {
		if !IsInjuryRelated(label) {
			continue
		}
		names = append(names, label.Name)
		if label.Confidence > best {
			best = label.Confidence
		}
	}
	if len(names) == 0 {
		out.Summary = SummaryNoRelevantLabel
		return out
	}
	out.HasSignals = true
	out.Confidence = Clamp01(best)
	out.Summary = fmt.Sprintf("Content moderation detected: %s.", strings.Join(names, ", "))
	return out
}

// FailedInjuryCheck records a moderation failure. The pipeline continues
// without injury signals.
func FailedInjuryCheck(reason string) InjuryCheckResult {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return InjuryCheckResult{
		Summary:      "Injury check unavailable.",
		ErrorMessage: moderationFailedPrefix + reason,
	}
}
