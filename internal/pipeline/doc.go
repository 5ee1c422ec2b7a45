// Package pipeline runs one call analysis session: it sequences the analysis
// stages over a fixed dependency graph and emits one event per settled stage.
//
// Stages run strictly in catalog order. A stage is attempted only when it was
// requested and its prerequisite produced usable output; skipped stages emit
// nothing. Adapter failures become "error" events and the session continues.
// The summary event is always emitted, followed by the terminal "complete"
// event. Only a broken orchestrator invariant ends a session early, with a
// final "Unexpected error" event and an [*InvariantError] from [Orchestrator.Run].
//
// Events are the contract shared by every sink: [Event.Frame] produces the
// server-sent-events wire frame and [DecodeEvent] reads one back.
package pipeline
