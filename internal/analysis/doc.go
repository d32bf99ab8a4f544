// Package analysis holds the signal types shared by every pipeline stage and
// the deterministic formulas applied to them.
//
// Detector adapters produce FaceDetection, TranscriptionSegment,
// SentimentResult and ModerationLabel values; the orchestrator fuses them into
// emotion summaries and hands them to the indicator rule engine and the
// cross-reference aggregator. Every confidence that enters the system is
// clamped to [0,1] with Clamp01 at the adapter boundary.
package analysis
