// Package logs reads daemon logs for the CLI.
//
// StreamClient pages through the daemon's /api/logs endpoint, and Tail reads
// the JSON log file in log_dir directly so `vigil logs` still works while the
// daemon is stopped. ParseLine decodes one line of that file into the same
// event shape the API returns.
package logs
