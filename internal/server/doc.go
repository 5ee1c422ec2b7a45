// Package server implements the callsightd HTTP API.
//
// POST /api/process_call accepts a multipart upload (a "file" part and a
// "tasks" part holding a JSON array of stage names) and streams the session
// back as server-sent events. The remaining routes are read-only JSON:
// adapter and dependency status, session history and Prometheus metrics.
//
// Every request gets an X-Request-ID that is attached to the context and
// therefore to the session's log lines. When an API token is configured all
// routes except /healthz and /metrics require it as a bearer token.
package server
