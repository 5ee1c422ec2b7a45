// Package daemon coordinates the long-running callsightd process.
//
// It owns the HTTP API server and the session history store, and holds a
// flock-based lock in the log directory so that only one instance serves a
// given configuration. Session execution itself lives in the engine and
// pipeline packages; the daemon focuses on startup, shutdown and status.
package daemon
