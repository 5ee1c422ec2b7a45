package main

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callsight/internal/api"
	"callsight/internal/pipeline"
	"callsight/internal/server"
	"callsight/internal/sink"
)

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out, _, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Server.APIToken = "secret-token"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	out, _, err = runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("api token leaked:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, "[server]")
}

func TestConfigValidateRejectsBadConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Logging.Format = "xml"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, env, "config", "validate")
	if err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("expected logging.format error, got %v", err)
	}
}

func TestAnalyzeRendersAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := env.audio(t, "call-1.wav")

	out, _, err := runCLI(t, env, "analyze", audio, "--tasks", "category,PII Check")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Call category")
	requireContains(t, out, "Billing")
	requireContains(t, out, pipeline.CompletionMessage)

	session := env.engine.sessions[0]
	if !session.Requested.Has(pipeline.StepCategory) || !session.Requested.Has(pipeline.StepPII) {
		t.Fatalf("unexpected requested stages: %v", session.Requested.Names())
	}

	out, _, err = runCLI(t, env, "history", "list", "--json")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	var sessions []api.SessionSummary
	if err := json.Unmarshal([]byte(out), &sessions); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != session.ID || got.AudioName != "call-1.wav" || got.Category != "Billing" {
		t.Fatalf("unexpected session summary: %+v", got)
	}
	if got.Status != pipeline.StatusCompleted || got.AudioSHA256 == "" {
		t.Fatalf("expected completed session with digest, got %+v", got)
	}

	out, _, err = runCLI(t, env, "history", "list")
	if err != nil {
		t.Fatalf("history list table: %v", err)
	}
	requireContains(t, out, session.ID)

	out, _, err = runCLI(t, env, "history", "show", session.ID)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "Session "+session.ID)
	requireContains(t, out, "thanks for calling about your bill")

	if _, _, err := runCLI(t, env, "history", "show", "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}

	workbook := filepath.Join(env.baseDir, "export.xlsx")
	out, _, err = runCLI(t, env, "export", session.ID, "--xlsx", workbook)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Wrote "+workbook)
	if info, err := os.Stat(workbook); err != nil || info.Size() == 0 {
		t.Fatalf("expected workbook, stat err=%v", err)
	}

	out, _, err = runCLI(t, env, "history", "prune", "--older-than", "1h")
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 0 sessions")
}

func TestAnalyzeJSONPrintsFrames(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := env.audio(t, "call-2.wav")

	out, _, err := runCLI(t, env, "analyze", audio, "--all", "--json")
	if err != nil {
		t.Fatalf("analyze --json: %v", err)
	}
	var steps []pipeline.Step
	if err := sink.ReadFrames(strings.NewReader(out), func(event pipeline.Event) error {
		steps = append(steps, event.Step)
		return nil
	}); err != nil {
		t.Fatalf("read frames: %v", err)
	}
	want := []pipeline.Step{pipeline.StepTranscription, pipeline.StepCategory, pipeline.StepComplete}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}
	if got := env.engine.sessions[0].Requested.Len(); got != len(pipeline.AllStages().Names()) {
		t.Fatalf("--all requested %d stages", got)
	}
}

func TestAnalyzeRejectsMissingAudio(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "analyze", filepath.Join(env.baseDir, "nope.wav")); err == nil {
		t.Fatal("expected error for missing audio")
	}
	if env.engine.runs() != 0 {
		t.Fatal("engine should not run")
	}
}

func TestAnalyzeRemote(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Server.APIToken = "remote-token"
	writeTestConfig(t, env.configPath, env.cfg)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	remoteEngine := &fakeEngine{}
	srv, err := server.New(server.Options{Config: env.cfg, Engine: remoteEngine})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	audio := env.audio(t, "remote.wav")
	out, _, err := runCLI(t, env, "analyze", audio, "--tasks", "category", "--remote", ts.URL)
	if err != nil {
		t.Fatalf("analyze --remote: %v", err)
	}
	requireContains(t, out, "Billing")
	if remoteEngine.runs() != 1 || env.engine.runs() != 0 {
		t.Fatalf("expected remote run only: remote=%d local=%d", remoteEngine.runs(), env.engine.runs())
	}

	if _, _, err := runCLI(t, env, "analyze", audio, "--remote", ts.URL, "--token", "wrong"); err == nil {
		t.Fatal("expected rejection with wrong token")
	}
	if remoteEngine.runs() != 1 {
		t.Fatalf("unauthorized request reached the engine")
	}
}

func TestBatchWritesTableAndWorkbook(t *testing.T) {
	env := setupCLITestEnv(t)
	first := env.audio(t, "a.wav")
	second := env.audio(t, "b.wav")
	workbook := filepath.Join(env.baseDir, "batch.xlsx")

	out, stderr, err := runCLI(t, env, "batch", first, second, "--tasks", "category", "--concurrency", "2", "--xlsx", workbook)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	requireContains(t, out, "a.wav")
	requireContains(t, out, "b.wav")
	requireContains(t, out, "Wrote "+workbook)
	requireContains(t, stderr, "finished a.wav (completed)")
	if env.engine.runs() != 2 {
		t.Fatalf("expected 2 runs, got %d", env.engine.runs())
	}
	if _, err := os.Stat(workbook); err != nil {
		t.Fatalf("expected workbook: %v", err)
	}
}

func TestDoctorReportsUnhealthyAdapter(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "doctor", "--json")
	if err == nil || !strings.Contains(err.Error(), "problem") {
		t.Fatalf("expected doctor to report problems, got %v", err)
	}
	var report doctorReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode doctor report: %v\n%s", err, out)
	}
	if len(report.Adapters) != 2 || report.Adapters[1].Ready {
		t.Fatalf("unexpected adapters: %+v", report.Adapters)
	}
	if report.Language != "auto-detect" {
		t.Fatalf("language = %q", report.Language)
	}
	if len(report.Preflight) == 0 {
		t.Fatal("expected preflight results")
	}
}
