// Package engine assembles the call analysis pipeline from configuration:
// the WhisperX transcriber, the configured diarization backend, the compiled
// text analytics rules and the optional ffprobe upload check.
//
// Both the CLI and the daemon build exactly one Engine per process and share
// it across sessions.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"callsight/internal/audioprobe"
	"callsight/internal/config"
	"callsight/internal/deps"
	"callsight/internal/detect"
	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/pipeline"
	"callsight/internal/services/pyannote"
	"callsight/internal/services/whisperx"
	"callsight/internal/stage"
)

// Engine is the process-wide set of adapters and the orchestrator over them.
type Engine struct {
	orchestrator *pipeline.Orchestrator
	checkers     []stage.Checker
	rules        *detect.Rules
	prober       *audioprobe.Prober
}

// New compiles the detector rules, builds the adapters selected by cfg and
// validates them through pipeline.New.
func New(cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (*Engine, error) {
	rules, err := detect.Compile(cfg.Detectors)
	if err != nil {
		return nil, fmt.Errorf("compile detector rules: %w", err)
	}
	transcriber := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.Model,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		VADMethod:   cfg.Transcription.VADMethod,
		HFToken:     cfg.Diarization.HFToken,
		Language:    cfg.Transcription.Language,
		WorkDir:     cfg.Paths.WorkDir,
	}, cfg.FFmpegBinary())
	diarizer := pyannote.New(cfg.Diarization, cfg.Paths.WorkDir)

	adapters := pipeline.Adapters{Transcriber: transcriber, Diarizer: diarizer}.WithRules(rules)
	return Assemble(adapters, []stage.Checker{transcriber, diarizer, rulesChecker{rules}}, rules, cfg, logger, metrics)
}

// Assemble builds an Engine over caller-supplied adapters.
func Assemble(adapters pipeline.Adapters, checkers []stage.Checker, rules *detect.Rules, cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (*Engine, error) {
	orchestrator, err := pipeline.New(adapters, pipeline.Options{
		Logger:          logger,
		Metrics:         metrics,
		ShowAllSpeakers: cfg.Summary.ShowAllSpeakers,
	})
	if err != nil {
		return nil, err
	}
	e := &Engine{orchestrator: orchestrator, checkers: checkers, rules: rules}
	if ffprobe := deps.CheckFFprobe(cfg.FFmpegBinary()); ffprobe.Available {
		e.prober = audioprobe.New(ffprobe.Command)
	} else {
		logging.NewComponentLogger(logger, "engine").Debug("ffprobe unavailable; uploads are not pre-checked",
			logging.String(logging.FieldEventType, "ffprobe_unavailable"),
		)
	}
	return e, nil
}

// Run executes one session.
func (e *Engine) Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error {
	return e.orchestrator.Run(ctx, session, emitter)
}

// Health reports adapter readiness.
func (e *Engine) Health(ctx context.Context) []stage.Health {
	return stage.CheckAll(ctx, e.checkers...)
}

// Prober returns the upload checker, or nil when ffprobe is unavailable.
func (e *Engine) Prober() *audioprobe.Prober {
	return e.prober
}

// WithProber replaces the upload checker.
func (e *Engine) WithProber(p *audioprobe.Prober) *Engine {
	e.prober = p
	return e
}

// Rules returns the compiled detector rules.
func (e *Engine) Rules() *detect.Rules {
	return e.rules
}

type rulesChecker struct {
	rules *detect.Rules
}

func (c rulesChecker) HealthCheck(context.Context) stage.Health {
	if c.rules == nil {
		return stage.Unhealthy("text analytics", "rules not compiled")
	}
	return stage.Healthy("text analytics")
}
