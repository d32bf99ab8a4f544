package aggregate

import (
	"encoding/json"
	"strings"

	"vigil/internal/analysis"
)

const (
	// VerbalTranscriptLimit caps the transcript sent for verbal analysis.
	VerbalTranscriptLimit = 8000
	// AggregateTranscriptLimit caps the transcript sent for aggregation.
	AggregateTranscriptLimit = 4000
)

const systemPrompt = "You are a clinical psychology analysis assistant reviewing signals from a recorded patient session. " +
	"Be precise, cite specific evidence, and never overstate findings. Respond with strict JSON only."

func labelPrompt(labels []analysis.ModerationLabel, transcriptContext string) string {
	var b strings.Builder
	b.WriteString("Interpret visual content moderation labels from a therapy session video in their clinical context, ")
	b.WriteString("assessing injury risk (self-inflicted, inflicted by others, or accidental).\n\n")
	b.WriteString("## Content Moderation Labels\n")
	b.WriteString(indentJSON(labels, "[]"))
	b.WriteString("\n\n## Transcript Context (spoken words around flagged timestamps)\n")
	if strings.TrimSpace(transcriptContext) == "" {
		b.WriteString("No transcript available for the flagged timestamps.")
	} else {
		b.WriteString(transcriptContext)
	}
	b.WriteString(`

## Instructions
1. For each label, decide whether it reflects genuine injury risk or a false positive (discussion of past events, educational content, physical therapy movements, metaphorical language).
2. Distinguish self-harm, domestic violence or abuse, accidental injury, and benign content.
3. Assign an overall severity: low, moderate, high, or critical.
4. Give a clinical rationale.

## Response Format
{
  "has_signals": true or false,
  "severity": "low" | "moderate" | "high" | "critical",
  "summary": "one sentence",
  "confidence": 0.0 to 1.0,
  "clinical_rationale": "rationale",
  "injury_type": "self_harm" | "domestic_violence" | "abuse" | "accidental" | "unknown" | "none",
  "label_assessments": [{"label": "name", "is_relevant": true or false, "reasoning": "why"}]
}`)
	return b.String()
}

func verbalPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Analyze the following therapy session transcript for verbal indicators of injury risk, ")
	b.WriteString("including self-harm, domestic violence, abuse, physical neglect, and accidental injury.\n\n")
	b.WriteString("## Transcript\n")
	b.WriteString(truncateRunes(transcript, VerbalTranscriptLimit))
	b.WriteString(`

## Indicators
- Direct mentions of self-harm, suicide, or wanting to disappear.
- Absolutist language ("always", "never", "nothing matters").
- Hopelessness ("no point", "won't get better", "trapped").
- Burden statements ("better off without me", "nobody would miss me").
- Reports of being hurt, fear of someone, or controlling behaviour.
- Minimization of harm, untreated injuries, unmet basic needs.
- Descriptions of accidental injuries.

Only flag genuine indicators, not discussion of coping strategies. Quote exact phrases as evidence.

## Response Format
{
  "has_verbal_signals": true or false,
  "severity": "low" | "moderate" | "high" | "critical",
  "findings": ["finding"],
  "evidence_quotes": ["exact quote"],
  "confidence": 0.0 to 1.0,
  "risk_factors_identified": ["factor"],
  "injury_types_detected": ["self_harm" | "domestic_violence" | "abuse" | "accidental" | "neglect"]
}`)
	return b.String()
}

func aggregatePrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Synthesize all available analysis signals from a patient therapy session into a unified clinical summary.\n\n")
	b.WriteString("## Visual Analysis (mean emotion scores)\n")
	b.WriteString(indentJSON(in.EmotionSummary, "{}"))
	b.WriteString("\n\n## Audio Analysis\nTranscript excerpt:\n")
	if transcript := truncateRunes(in.Transcript, AggregateTranscriptLimit); strings.TrimSpace(transcript) != "" {
		b.WriteString(transcript)
	} else {
		b.WriteString("No transcript available.")
	}
	b.WriteString("\n\nOverall sentiment:\n")
	if in.Sentiment != nil {
		b.WriteString(indentJSON(in.Sentiment, "Not available"))
	} else {
		b.WriteString("Not available")
	}
	b.WriteString("\n\n## Injury Check Results\n")
	if in.InjuryCheck != nil {
		b.WriteString(indentJSON(in.InjuryCheck, "Not performed"))
	} else {
		b.WriteString("Not performed")
	}
	b.WriteString("\n\n## Existing Clinical Indicators (rule-based)\n")
	b.WriteString(indentJSON(in.Indicators, "[]"))
	b.WriteString(`

## Instructions
1. Identify concordant signals, where several sources agree.
2. Identify discordant signals, where sources conflict; discordance such as emotional masking can itself be significant.
3. Note temporal correlations when timestamps line up.
4. Produce an overall risk level and actionable recommendations.

## Response Format
{
  "clinical_summary": "2-4 sentences",
  "risk_level": "low" | "moderate" | "high" | "critical",
  "cross_referenced_evidence": [{"source": "video" | "audio" | "content_moderation" | "transcript", "finding": "observation", "supporting_sources": ["source"]}],
  "concordant_signals": ["description"],
  "discordant_signals": ["description"],
  "recommendations": ["recommendation"]
}`)
	return b.String()
}

func indentJSON(v any, empty string) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}
