// Package daemonrun wires configuration, logging, metrics, the analysis
// engine, session history and the HTTP API into the callsightd process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"callsight/internal/config"
	"callsight/internal/daemon"
	"callsight/internal/deps"
	"callsight/internal/engine"
	"callsight/internal/history"
	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/preflight"
	"callsight/internal/server"
)

// PIDFileName is written under [paths].log_dir while the daemon runs.
const PIDFileName = "callsightd.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides [logging].level when set.
	LogLevel    string
	Development bool
	// Version is reported as the OTel service version.
	Version string
}

// Run starts callsightd and blocks until SIGINT/SIGTERM or ctx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	metrics := observe.Nop()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		provider, err := observe.InitProvider(signalCtx, observe.ProviderConfig{
			ServiceName:    "callsightd",
			ServiceVersion: opts.Version,
		})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			if err := provider.Shutdown(context.WithoutCancel(signalCtx)); err != nil {
				logger.Warn("metrics shutdown failed", logging.Error(err))
			}
		}()
		metrics = provider.Metrics
		metricsHandler = provider.Handler
	}

	eng, err := engine.New(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Error("open history store",
				logging.String(logging.FieldEventType, "history_open_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check [paths].history_db permissions or set history.enabled = false"),
			)
			return err
		}
	}

	srv, err := server.New(server.Options{
		Config:         cfg,
		Engine:         eng,
		History:        store,
		Prober:         eng.Prober(),
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
		LockFilePath:   daemon.LockPath(cfg),
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("build api server: %w", err)
	}

	d, err := daemon.New(cfg, logger, srv, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("callsight daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("diarization_backend", cfg.Diarization.Backend),
		logging.Bool("hf_token_present", strings.TrimSpace(cfg.Diarization.HFToken) != ""),
		logging.Bool("whisperx_cuda", cfg.Transcription.CUDAEnabled),
		logging.String("whisperx_model", cfg.Transcription.Model),
	}
	binaries := deps.Check(cfg)
	for _, status := range binaries {
		key := strings.ToLower(status.Name) + "_available"
		attrs = append(attrs, logging.Bool(key, status.Available))
	}
	logger.Info("dependency snapshot", attrs...)

	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "sessions that need this resource will report errors"),
		)
	}
	if missing := deps.MissingRequired(binaries); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Name)
		}
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.String("binaries", strings.Join(names, ", ")),
			logging.String(logging.FieldErrorHint, "run `callsight doctor` for details"),
		)
	}
}
