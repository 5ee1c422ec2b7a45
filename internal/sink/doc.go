// Package sink delivers pipeline events to consumers.
//
// SSE streams frames to an HTTP client and flushes after each one. Terminal
// renders events as tables and status lines. Recorder keeps events in memory
// and Tee fans out to several sinks. ReadFrames decodes an SSE stream back
// into events so a remote session can be rendered locally.
package sink

import "callsight/internal/pipeline"

// ErrDelivery marks a failed write to the consumer. The orchestrator stops
// the session's stream when it sees it.
var ErrDelivery = pipeline.ErrDelivery
