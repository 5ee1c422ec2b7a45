// Package history persists finished call sessions in SQLite.
//
// Each row records the session outcome (completed, aborted, disconnected,
// timed_out)
// together with the full event log in emission order, so a session can be
// rendered again or exported to a report without re-running any stage. The
// store never resumes or replays a pipeline.
//
// Schema changes bump schemaVersion in schema.go; users delete the history
// database to adopt the new schema.
package history
