package aggregate

import (
	"strings"

	"vigil/internal/analysis"
)

// LabelInterpretation is the reasoning verdict over the moderation labels.
// Nil HasSignals or Confidence means the reply left the field out.
type LabelInterpretation struct {
	HasSignals        *bool                      `json:"has_signals"`
	Severity          string                     `json:"severity"`
	Summary           string                     `json:"summary"`
	Confidence        *float64                   `json:"confidence"`
	ClinicalRationale string                     `json:"clinical_rationale"`
	InjuryType        string                     `json:"injury_type"`
	LabelAssessments  []analysis.LabelAssessment `json:"label_assessments"`
}

func extractLabelInterpretation(raw string, out *LabelInterpretation) bool {
	has, ok := extractBool(raw, "has_signals")
	if !ok {
		return false
	}
	out.HasSignals = &has
	out.Severity, _ = extractString(raw, "severity")
	out.Summary, _ = extractString(raw, "summary")
	if confidence, ok := extractNumber(raw, "confidence"); ok {
		out.Confidence = &confidence
	}
	out.ClinicalRationale, _ = extractString(raw, "clinical_rationale")
	out.InjuryType, _ = extractString(raw, "injury_type")
	return true
}

func (li LabelInterpretation) complete() bool { return li.HasSignals != nil }

// Apply merges the interpretation into a copy of base. Fields the reply
// carried override the moderation verdict; missing ones keep base values,
// as do labels and error state.
func (li LabelInterpretation) Apply(base analysis.InjuryCheckResult) analysis.InjuryCheckResult {
	out := base
	if li.HasSignals != nil {
		out.HasSignals = *li.HasSignals
	}
	if severity, ok := analysis.ParseRiskLevel(li.Severity); ok {
		out.Severity = severity
	}
	if li.Summary != "" {
		out.Summary = li.Summary
	}
	if li.Confidence != nil {
		out.Confidence = analysis.Clamp01(*li.Confidence)
	}
	if li.ClinicalRationale != "" {
		out.ClinicalRationale = li.ClinicalRationale
	}
	if li.InjuryType != "" {
		out.InjuryType = li.InjuryType
	}
	if len(li.LabelAssessments) > 0 {
		out.LabelAssessments = append([]analysis.LabelAssessment(nil), li.LabelAssessments...)
	}
	return out
}

type verbalWire struct {
	HasVerbalSignals *bool    `json:"has_verbal_signals"`
	Severity         string   `json:"severity"`
	Findings         []string `json:"findings"`
	EvidenceQuotes   []string `json:"evidence_quotes"`
	Confidence       float64  `json:"confidence"`
	RiskFactors      []string `json:"risk_factors_identified"`
	InjuryTypes      []string `json:"injury_types_detected"`
}

func extractVerbal(raw string, out *verbalWire) bool {
	has, ok := extractBool(raw, "has_verbal_signals")
	if !ok {
		return false
	}
	out.HasVerbalSignals = &has
	out.Severity, _ = extractString(raw, "severity")
	out.Findings = extractStrings(raw, "findings")
	out.EvidenceQuotes = extractStrings(raw, "evidence_quotes")
	out.Confidence, _ = extractNumber(raw, "confidence")
	out.RiskFactors = extractStrings(raw, "risk_factors_identified")
	out.InjuryTypes = extractStrings(raw, "injury_types_detected")
	return true
}

func (w verbalWire) complete() bool { return w.HasVerbalSignals != nil }

func (w verbalWire) toAnalysis() *analysis.VerbalAnalysis {
	severity, ok := analysis.ParseRiskLevel(w.Severity)
	if !ok {
		severity = analysis.RiskLow
	}
	return &analysis.VerbalAnalysis{
		HasVerbalSignals: w.HasVerbalSignals != nil && *w.HasVerbalSignals,
		Severity:         severity,
		Findings:         w.Findings,
		EvidenceQuotes:   w.EvidenceQuotes,
		Confidence:       analysis.Clamp01(w.Confidence),
		RiskFactors:      w.RiskFactors,
		InjuryTypes:      w.InjuryTypes,
	}
}

type evidenceWire struct {
	Source            string   `json:"source"`
	Finding           string   `json:"finding"`
	SupportingSources []string `json:"supporting_sources"`
}

type aggregateWire struct {
	ClinicalSummary         string         `json:"clinical_summary"`
	RiskLevel               string         `json:"risk_level"`
	CrossReferencedEvidence []evidenceWire `json:"cross_referenced_evidence"`
	ConcordantSignals       []string       `json:"concordant_signals"`
	DiscordantSignals       []string       `json:"discordant_signals"`
	Recommendations         []string       `json:"recommendations"`
}

func extractAggregate(raw string, out *aggregateWire) bool {
	level, okLevel := extractString(raw, "risk_level")
	summary, okSummary := extractString(raw, "clinical_summary")
	if !okLevel && !okSummary {
		return false
	}
	out.RiskLevel = level
	out.ClinicalSummary = summary
	out.ConcordantSignals = extractStrings(raw, "concordant_signals")
	out.DiscordantSignals = extractStrings(raw, "discordant_signals")
	out.Recommendations = extractStrings(raw, "recommendations")
	return true
}

func (w aggregateWire) complete() bool {
	return strings.TrimSpace(w.RiskLevel) != "" || strings.TrimSpace(w.ClinicalSummary) != ""
}

func (w aggregateWire) toAnalysis() *analysis.AggregateAssessment {
	level, ok := analysis.ParseRiskLevel(w.RiskLevel)
	if !ok {
		level = analysis.RiskLow
	}
	out := &analysis.AggregateAssessment{
		ClinicalSummary:   w.ClinicalSummary,
		RiskLevel:         level,
		ConcordantSignals: w.ConcordantSignals,
		DiscordantSignals: w.DiscordantSignals,
		Recommendations:   w.Recommendations,
	}
	for _, ev := range w.CrossReferencedEvidence {
		source, ok := analysis.ParseEvidenceSource(ev.Source)
		if !ok || ev.Finding == "" {
			continue
		}
		entry := analysis.EvidenceEntry{Source: source, Finding: ev.Finding}
		for _, s := range ev.SupportingSources {
			if supporting, ok := analysis.ParseEvidenceSource(s); ok {
				entry.SupportingSources = append(entry.SupportingSources, supporting)
			}
		}
		out.CrossReferencedEvidence = append(out.CrossReferencedEvidence, entry)
	}
	return out
}
