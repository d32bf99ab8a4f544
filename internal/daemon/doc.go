// Package daemon coordinates the long-running Vigil process.
//
// It wires configuration, the session store, the pipeline manager, the
// streaming registry and the retention janitor into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon exposes the
// session operations used by the HTTP API and IPC server, reports health,
// and recovers sessions interrupted by a previous process on start.
//
// Keep orchestration logic here: the pipeline stages live in the pipeline
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
