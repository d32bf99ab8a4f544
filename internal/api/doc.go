// Package api defines wire-format types and converters shared by the HTTP
// API, the IPC server and the CLI. It translates session records into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// SessionSummary: status, progress and terminal error for one session.
//
// SessionDetail: the summary plus every accumulated result.
//
// DaemonStatus: daemon running state, run counters and health checks.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Converters
//
// FromSession and FromSessionDetail convert session.Session records.
// FromLogEvents converts log hub events.
//
// # Design Notes
//
// DTOs use snake_case JSON tags, the same casing as the streaming protocol.
// Timestamps use RFC3339 with milliseconds. Result payloads embed the
// analysis types directly; those already carry stable JSON tags.
package api
