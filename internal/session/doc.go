// Package session defines the analysis Session record and the stores that
// persist it.
//
// A Session moves through a fixed status sequence owned by the pipeline
// orchestrator. Stores only ever swap whole records: Replace validates the
// status transition against the stored copy and writes the new snapshot in a
// single atomic step, so readers observe either the previous snapshot or the
// next one. Two backends are provided: SQLite (default, one JSON document per
// row) and Redis (one JSON value per key plus a per-patient sorted set).
package session
