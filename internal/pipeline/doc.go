// Package pipeline runs the multimodal analysis of one session and manages
// concurrent runs.
//
// Runner walks a session through the fixed status sequence:
//
//	pending -> uploading -> processing_video -> processing_injury_check ->
//	processing_audio -> processing_bedrock_enhancement -> aggregating -> completed
//
// Video, audio and final composition failures are fatal and move the session
// to failed. Moderation and every reasoning call degrade instead: the
// corresponding result field is annotated or left empty and the run goes on.
// Every transition is persisted as a full snapshot through session.Store and
// broadcast to observers through a Publisher. Progress maps stage-local
// fractions onto fixed bands and never decreases within a run.
//
// Manager owns the goroutine for each run, rejects duplicate starts, polls an
// operator cancel flag between stages, and marks interrupted sessions failed
// on shutdown and at startup.
package pipeline
