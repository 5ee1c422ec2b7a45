// Package api defines the wire-format types of the callsightd HTTP API and a
// client for it. It translates history and health models into
// transport-friendly DTOs so the CLI can render daemon responses without
// coupling to internal types.
//
// # Key Types
//
// SessionSummary / SessionDetail: a stored session, with its event log in the
// detail form.
//
// DaemonStatus: daemon runtime information, adapter health and external
// binary availability.
//
// Client: POSTs calls to /api/process_call and decodes the SSE stream back
// into pipeline events, and reads status and history.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Timestamps use RFC3339 with milliseconds. Events keep the SSE frame shape
// ({"step","result"}) so a stored session renders exactly like a live one.
package api
