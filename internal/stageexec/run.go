package stageexec

import (
	"context"
	"log/slog"
	"time"

	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/services"
)

// Options identifies the stage being executed and where to report it.
type Options struct {
	Logger  *slog.Logger
	Metrics *observe.Metrics
	Stage   string
}

// Run invokes fn with the stage tagged on the context, logs the start and
// outcome with event_type attrs, and records duration and outcome metrics.
// The stage error is returned unchanged; callers decide how a failure is
// surfaced.
func Run[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error)) (T, error) {
	stageCtx := services.WithStage(ctx, opts.Stage)
	logger := logging.WithContext(stageCtx, opts.Logger)

	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	start := time.Now()
	result, err := fn(stageCtx)
	elapsed := time.Since(start)

	if err != nil {
		kind := services.Kind(err)
		opts.Metrics.RecordStage(stageCtx, opts.Stage, observe.OutcomeError, kind, elapsed)
		logging.WarnWithContext(logger, "stage failed", "stage_failure",
			logging.String("error_kind", kind),
			logging.String("error_message", services.Details(err)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return result, err
	}

	opts.Metrics.RecordStage(stageCtx, opts.Stage, observe.OutcomeOK, "", elapsed)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return result, nil
}

// Skip records a stage that was not attempted because a prerequisite was not met.
func Skip(ctx context.Context, opts Options, reason string) {
	stageCtx := services.WithStage(ctx, opts.Stage)
	opts.Metrics.RecordStage(stageCtx, opts.Stage, observe.OutcomeSkipped, "", 0)
	logging.WithContext(stageCtx, opts.Logger).Debug("stage skipped",
		logging.String(logging.FieldEventType, "stage_skipped"),
		logging.String("reason", reason),
	)
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "configuration":
		return "review callsight config (callsight config validate)"
	case "external_tool":
		return "run callsight doctor to verify uvx, ffmpeg and model access"
	case "timeout":
		return "raise the session timeout or use a smaller model"
	default:
		return "check logs for details"
	}
}
