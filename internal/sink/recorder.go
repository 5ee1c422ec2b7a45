package sink

import (
	"context"
	"sync"

	"callsight/internal/pipeline"
)

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []pipeline.Event
}

// Emit appends event.
func (r *Recorder) Emit(_ context.Context, event pipeline.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []pipeline.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Event(nil), r.events...)
}

// Summary returns the recorded summary event's payload, if any.
func (r *Recorder) Summary() (pipeline.SummaryResult, bool) {
	for _, event := range r.Events() {
		if s, ok := event.Result.(pipeline.SummaryResult); ok {
			return s, true
		}
	}
	return pipeline.SummaryResult{}, false
}

// Errors returns the payloads of recorded error events.
func (r *Recorder) Errors() []string {
	var out []string
	for _, event := range r.Events() {
		if e, ok := event.Result.(pipeline.ErrorResult); ok {
			out = append(out, string(e))
		}
	}
	return out
}

// Tee hands each event to every emitter in order and stops at the first error.
type Tee []pipeline.Emitter

// Emit forwards event.
func (t Tee) Emit(ctx context.Context, event pipeline.Event) error {
	for _, emitter := range t {
		if emitter == nil {
			continue
		}
		if err := emitter.Emit(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
