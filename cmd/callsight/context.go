package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"callsight/internal/config"
	"callsight/internal/engine"
	"callsight/internal/history"
	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/pipeline"
	"callsight/internal/stage"
)

// analysisEngine is the subset of *engine.Engine the commands use.
type analysisEngine interface {
	Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error
	Health(ctx context.Context) []stage.Health
}

type engineFactory func(cfg *config.Config, logger *slog.Logger) (analysisEngine, error)

func defaultEngineFactory(cfg *config.Config, logger *slog.Logger) (analysisEngine, error) {
	eng, err := engine.New(cfg, logger, observe.Nop())
	if err != nil {
		return nil, err
	}
	return eng, nil
}

type commandContext struct {
	configFlag *string
	newEngine  engineFactory

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		newEngine:  defaultEngineFactory,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// logger writes to stderr so that rendered results on stdout stay clean. The
// log file under [paths].log_dir receives a JSON copy.
func (c *commandContext) logger(stderr io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: stderr,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.FilePath = filepath.Join(dir, logging.LogFileName)
	}
	return logging.New(opts)
}

func (c *commandContext) engine(cmd *cobra.Command) (analysisEngine, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	eng, err := c.newEngine(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, logger, nil
}

// historyStore opens the session history, or returns nil when history is disabled.
func (c *commandContext) historyStore() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// requireHistory is historyStore for commands that cannot work without it.
func (c *commandContext) requireHistory() (*history.Store, error) {
	store, err := c.historyStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("session history is disabled (set [history] enabled = true)")
	}
	return store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func resolveAudioPath(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect audio %q: %w", arg, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("audio path %q is a directory", arg)
	}
	return path, nil
}
