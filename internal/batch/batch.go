// Package batch analyzes several calls as independent sessions with bounded
// concurrency.
package batch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"callsight/internal/fileutil"
	"callsight/internal/history"
	"callsight/internal/logging"
	"callsight/internal/pipeline"
	"callsight/internal/services"
	"callsight/internal/sink"
	"callsight/internal/summary"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 2

// SessionRunner executes one session; *pipeline.Orchestrator satisfies it.
type SessionRunner interface {
	Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error
}

// Options configures a batch.
type Options struct {
	Requested   pipeline.StageSet
	Concurrency int
	// SessionTimeout bounds each session; zero means no limit.
	SessionTimeout time.Duration
	// Store, when set, receives every finished session.
	Store  *history.Store
	Logger *slog.Logger
	// OnFinish is called from worker goroutines as each session ends.
	OnFinish func(Outcome)
}

// Outcome is the result of one session in a batch.
type Outcome struct {
	Session    pipeline.Session
	Events     []pipeline.Event
	Status     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary returns the session's summary table, if one was emitted.
func (o Outcome) Summary() (summary.Table, bool) {
	for _, event := range o.Events {
		if s, ok := event.Result.(pipeline.SummaryResult); ok {
			return s.Table, true
		}
	}
	return summary.Table{}, false
}

// Run analyzes each audio path in its own session. Sessions never share
// results and a failing session does not stop the others. Outcomes are
// returned in input order; sessions not started before ctx ended carry the
// context error.
func Run(ctx context.Context, runner SessionRunner, audioPaths []string, opts Options) ([]Outcome, error) {
	logger := logging.NewComponentLogger(opts.Logger, "batch")
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	outcomes := make([]Outcome, len(audioPaths))
	var g errgroup.Group
	g.SetLimit(limit)

	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("sessions", len(audioPaths)),
		logging.Int("concurrency", limit),
	)
	for i, path := range audioPaths {
		session := pipeline.NewSession(path, opts.Requested)
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{Session: session, Status: pipeline.StatusFailed, Err: err}
			continue
		}
		g.Go(func() error {
			outcomes[i] = runOne(ctx, runner, session, opts, logger)
			if opts.OnFinish != nil {
				opts.OnFinish(outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Status != pipeline.StatusCompleted {
			failed++
		}
	}
	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_finish"),
		logging.Int("sessions", len(audioPaths)),
		logging.Int("not_completed", failed),
	)
	return outcomes, ctx.Err()
}

func runOne(ctx context.Context, runner SessionRunner, session pipeline.Session, opts Options, logger *slog.Logger) Outcome {
	if opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.SessionTimeout)
		defer cancel()
	}
	ctx = services.WithSessionID(ctx, session.ID)

	recorder := &sink.Recorder{}
	outcome := Outcome{Session: session, StartedAt: time.Now()}
	outcome.Err = runner.Run(ctx, session, recorder)
	outcome.FinishedAt = time.Now()
	outcome.Events = recorder.Events()
	outcome.Status = pipeline.RunStatus(outcome.Err)

	if opts.Store != nil {
		entry := history.NewEntry(session, outcome.Err, outcome.StartedAt, outcome.FinishedAt, outcome.Events)
		if digest, _, err := fileutil.DigestFile(session.AudioPath); err == nil {
			entry.AudioSHA256 = digest
		}
		opts.Store.SaveLogged(ctx, entry, logger)
	}
	return outcome
}
