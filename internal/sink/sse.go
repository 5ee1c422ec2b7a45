package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"callsight/internal/pipeline"
)

// SSE writes each event as a server-sent-events frame and flushes it before
// Emit returns.
type SSE struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

// NewSSE prepares w for streaming. Headers are written on the first frame so
// that callers can still fail the request with a normal status before then.
func NewSSE(w http.ResponseWriter) *SSE {
	return &SSE{w: w, rc: http.NewResponseController(w)}
}

func (s *SSE) start() error {
	if s.started {
		return nil
	}
	s.started = true
	// Long-lived streams must not be cut by the server's WriteTimeout.
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return nil
}

// Emit writes and flushes one frame. Write failures and a done context are
// reported as ErrDelivery; an expired deadline also matches
// context.DeadlineExceeded.
func (s *SSE) Emit(ctx context.Context, event pipeline.Event) error {
	frame, err := event.Frame()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: session deadline reached: %w", ErrDelivery, err)
		}
		return fmt.Errorf("%w: client gone: %w", ErrDelivery, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(); err != nil {
		return fmt.Errorf("%w: prepare stream: %w", ErrDelivery, err)
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("%w: write %s frame: %w", ErrDelivery, event.Step, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s frame: %w", ErrDelivery, event.Step, err)
	}
	return nil
}

// Started reports whether the stream headers have been sent.
func (s *SSE) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// KeepAlive writes an SSE comment so idle proxies keep the connection open.
func (s *SSE) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
		return fmt.Errorf("%w: keepalive: %w", ErrDelivery, err)
	}
	return s.rc.Flush()
}
