// Package aggregate is the cross-reference aggregator. It makes three
// independent reasoning calls per session:
//
//   - InterpretLabels: judges each retained moderation label against the
//     transcript spoken within ten seconds of it.
//   - AnalyzeVerbal: scans the transcript (first 8000 characters) for verbal
//     risk indicators.
//   - Aggregate: synthesizes the emotion summary, transcript (first 4000
//     characters), sentiment, injury check and preliminary indicators into an
//     AggregateAssessment.
//
// Every call runs under an llm.Backoff and its output goes through a tagged
// parser: a strict JSON decode, then recovery of an embedded object, then
// per-field pattern extraction. Parse outcomes are Parsed, PartiallyRecovered
// or Unrecoverable. Any failure is returned tagged services.ErrDegradedStage;
// the caller decides what to omit.
package aggregate
