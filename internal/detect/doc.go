// Package detect holds the detector adapter contracts the pipeline depends on
// and an HTTP implementation that talks to the detector gateway.
//
// The gateway fronts four capabilities: face/emotion detection, content
// moderation, speech-to-text, and sentiment. Face detection, moderation and
// transcription run as asynchronous jobs:
//
//	POST /v1/{kind}/jobs              start a job, returns {"job_id": "..."}
//	GET  /v1/{kind}/jobs/{id}         poll; paged via ?next_token=
//
// Jobs report IN_PROGRESS, SUCCEEDED or FAILED. Polling uses poll.Until with
// the configured interval and maximum wait. Sentiment is synchronous.
//
// Detector confidences arrive as percentages and are converted to [0,1]
// before they leave this package.
package detect
