package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"callsight/internal/config"
	"callsight/internal/pipeline"
	"callsight/internal/stage"
	"callsight/internal/testsupport"
)

type fakeEngine struct {
	mu       sync.Mutex
	sessions []pipeline.Session
	fail     bool
}

func (f *fakeEngine) Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error {
	f.mu.Lock()
	f.sessions = append(f.sessions, session)
	f.mu.Unlock()
	payloads := []pipeline.Payload{
		pipeline.TranscriptionResult("thanks for calling about your bill"),
		pipeline.CategoryResult{Category: "Billing"},
	}
	if f.fail {
		payloads = append(payloads, pipeline.ErrorResult("Sentiment analysis failed: lexicon unavailable"))
	}
	payloads = append(payloads, pipeline.CompleteResult(pipeline.CompletionMessage))
	for _, payload := range payloads {
		if err := emitter.Emit(ctx, pipeline.NewEvent(payload)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) Health(context.Context) []stage.Health {
	return []stage.Health{stage.Healthy("whisperx"), stage.Unhealthy("pyannote", "hf_token not configured")}
}

func (f *fakeEngine) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	engine     *fakeEngine
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Metrics.Enabled = false
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		engine:     &fakeEngine{},
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) audio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	testsupport.WriteFile(t, path, 2048)
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()

	configFlag := ""
	ctx := newCommandContext(&configFlag)
	ctx.newEngine = func(*config.Config, *slog.Logger) (analysisEngine, error) {
		return env.engine, nil
	}
	cmd := newRootCommandWithContext(ctx, &configFlag)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\nfull output:\n%s", substr, output)
	}
}
