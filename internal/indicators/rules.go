// Package indicators derives ranked clinical indicators from accumulated
// session signals using fixed thresholds.
package indicators

import (
	"fmt"
	"sort"
	"strings"

	"vigil/internal/analysis"
)

// Indicator type tags.
const (
	TypeDiscomfort     = "discomfort"
	TypeDepression     = "depression"
	TypeAnxiety        = "anxiety"
	TypeFear           = "fear"
	TypeDistress       = "distress"
	TypeUncertainty    = "uncertainty"
	TypeInjurySignals  = "potential_injury_signals"
	TypeRiskAssessment = "bedrock_risk_assessment"
)

const (
	negativeThreshold = 0.5
	mixedThreshold    = 0.4
	highRiskScore     = 0.7
	criticalRiskScore = 0.9
)

// emotionRules is ordered so output is deterministic before the stable sort.
var emotionRules = []struct {
	emotion   string
	threshold float64
}{
	{TypeDiscomfort, 0.3},
	{TypeDepression, 0.3},
	{TypeAnxiety, 0.3},
	{TypeFear, 0.4},
}

// Input is the snapshot the rule engine evaluates. Nil pointers mean the
// signal is absent.
type Input struct {
	EmotionSummary map[string]float64
	Sentiment      *analysis.SentimentResult
	InjuryCheck    *analysis.InjuryCheckResult
	Aggregate      *analysis.AggregateAssessment
}

// Evaluate applies every rule independently and returns the emitted
// indicators sorted by confidence, highest first. Ties keep rule order.
func Evaluate(in Input) []analysis.ClinicalIndicator {
	out := make([]analysis.ClinicalIndicator, 0, 8)

	for _, rule := range emotionRules {
		score, ok := in.EmotionSummary[rule.emotion]
		if !ok || score < rule.threshold {
			continue
		}
		out = append(out, analysis.ClinicalIndicator{
			Type:       rule.emotion,
			Confidence: analysis.Clamp01(score),
			Evidence:   []string{fmt.Sprintf("Average %s score: %s", rule.emotion, percent(score))},
		})
	}

	if s := in.Sentiment; s != nil {
		if s.Negative > negativeThreshold {
			out = append(out, analysis.ClinicalIndicator{
				Type:       TypeDistress,
				Confidence: analysis.Clamp01(s.Negative),
				Evidence:   []string{"Negative sentiment in audio: " + percent(s.Negative)},
			})
		}
		if s.Mixed > mixedThreshold {
			out = append(out, analysis.ClinicalIndicator{
				Type:       TypeUncertainty,
				Confidence: analysis.Clamp01(s.Mixed),
				Evidence:   []string{"Mixed sentiment in audio: " + percent(s.Mixed)},
			})
		}
	}

	if ic := in.InjuryCheck; ic != nil && ic.HasSignals {
		out = append(out, injuryIndicator(ic))
	}

	if agg := in.Aggregate; agg != nil {
		var score float64
		switch agg.RiskLevel {
		case analysis.RiskHigh:
			score = highRiskScore
		case analysis.RiskCritical:
			score = criticalRiskScore
		}
		if score > 0 {
			evidence := []string{"Multimodal risk level: " + string(agg.RiskLevel)}
			if summary := strings.TrimSpace(agg.ClinicalSummary); summary != "" {
				evidence = append(evidence, summary)
			}
			out = append(out, analysis.ClinicalIndicator{Type: TypeRiskAssessment, Confidence: score, Evidence: evidence})
		}
	}

	Rank(out)
	return out
}

// Rank sorts indicators by confidence descending, keeping the relative order
// of equal confidences.
func Rank(list []analysis.ClinicalIndicator) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Confidence > list[j].Confidence
	})
}

func injuryIndicator(ic *analysis.InjuryCheckResult) analysis.ClinicalIndicator {
	evidence := make([]string, 0, 3)
	if summary := strings.TrimSpace(ic.Summary); summary != "" {
		evidence = append(evidence, summary)
	}
	if ic.Severity != "" {
		evidence = append(evidence, "Severity: "+string(ic.Severity))
	}
	if ic.Verbal != nil && ic.Verbal.HasVerbalSignals {
		evidence = append(evidence, fmt.Sprintf("Verbal indicators in transcript: %d finding(s)", len(ic.Verbal.Findings)))
	}
	var ranges []analysis.TimeRange
	for _, label := range ic.Labels {
		if label.TimestampMS != nil {
			ranges = append(ranges, analysis.TimeRange{StartMS: *label.TimestampMS, EndMS: *label.TimestampMS})
		}
	}
	return analysis.ClinicalIndicator{
		Type:       TypeInjurySignals,
		Confidence: analysis.Clamp01(ic.Confidence),
		Evidence:   evidence,
		TimeRanges: ranges,
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
