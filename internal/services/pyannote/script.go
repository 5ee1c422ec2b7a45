package pyannote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"callsight/internal/services"
	"callsight/internal/speaker"
	"callsight/internal/stage"
)

// diarizeScript runs a pyannote pipeline and prints {"segments": [...]}.
// Audio is pre-loaded via torchaudio to avoid pyannote's torchcodec issues.
const diarizeScript = `#!/usr/bin/env python3
import argparse
import json
import sys
import warnings

warnings.filterwarnings("ignore", message=".*torchcodec.*")

import torch
import torchaudio
from pyannote.audio import Pipeline


def load_audio(audio_path, sample_rate=16000):
    waveform, sr = torchaudio.load(audio_path)
    if sr != sample_rate:
        waveform = torchaudio.transforms.Resample(sr, sample_rate)(waveform)
    if waveform.shape[0] > 1:
        waveform = waveform.mean(dim=0, keepdim=True)
    return {"waveform": waveform, "sample_rate": sample_rate}


def diarize(audio_path, model, hf_token):
    device = torch.device("cuda" if torch.cuda.is_available() else "cpu")
    pipeline = Pipeline.from_pretrained(model, token=hf_token).to(device)
    result = pipeline(load_audio(audio_path))
    annotation = result.speaker_diarization if hasattr(result, "speaker_diarization") else result
    segments = []
    for turn, _, label in annotation.itertracks(yield_label=True):
        segments.append({"speaker": label, "start": float(turn.start), "end": float(turn.end)})
    return {"segments": segments}


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--audio", required=True)
    parser.add_argument("--model", required=True)
    parser.add_argument("--hf-token", required=True)
    args = parser.parse_args()
    try:
        print(json.dumps(diarize(args.audio, args.model, args.hf_token)))
    except Exception as e:
        print(json.dumps({"error": str(e)}), file=sys.stderr)
        sys.exit(1)


if __name__ == "__main__":
    main()
`

const (
	uvxCommand       = "uvx"
	scriptName       = "diarize.py"
	cudaIndexURL     = "https://download.pytorch.org/whl/cu128"
	pypiIndexURL     = "https://pypi.org/simple"
	scriptHealthName = "pyannote"
)

// ScriptConfig configures the local uvx backend.
type ScriptConfig struct {
	Model       string
	HFToken     string
	CUDAEnabled bool
	WorkDir     string
}

// Runner executes a command with extra environment and returns stdout and stderr.
type Runner func(ctx context.Context, env []string, name string, args ...string) (stdout, stderr []byte, err error)

// Script diarizes through the embedded pyannote script.
type Script struct {
	cfg      ScriptConfig
	runner   Runner
	lookPath func(string) (string, error)
}

// NewScript creates the uvx-backed diarizer.
func NewScript(cfg ScriptConfig) *Script {
	return &Script{cfg: cfg, runner: execRunner, lookPath: exec.LookPath}
}

// WithRunner replaces command execution (for testing).
func (s *Script) WithRunner(runner Runner) *Script {
	s.runner = runner
	return s
}

// Diarize writes the script to a scratch directory, runs it and parses the
// printed segments. The scratch directory is always removed.
func (s *Script) Diarize(ctx context.Context, audioPath string) ([]speaker.Segment, error) {
	token := strings.TrimSpace(s.cfg.HFToken)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pyannote", "diarize",
			"Hugging Face token not configured (set HUGGING_FACE_TOKEN)", nil)
	}
	if s.cfg.WorkDir != "" {
		if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrTransient, "pyannote", "prepare scratch dir", "", err)
		}
	}
	scratch, err := os.MkdirTemp(s.cfg.WorkDir, "pyannote-")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pyannote", "prepare scratch dir", "", err)
	}
	defer os.RemoveAll(scratch)

	scriptPath := filepath.Join(scratch, scriptName)
	if err := os.WriteFile(scriptPath, []byte(diarizeScript), 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "pyannote", "write script", "", err)
	}

	env := []string{"HF_TOKEN=" + token}
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	stdout, stderr, err := s.runner(ctx, env, uvxCommand, s.buildArgs(scriptPath, audioPath, token)...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "pyannote", "diarize", scriptFailure(stderr), err)
	}

	var result wireResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &result); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "pyannote", "parse result", "", err)
	}
	return result.toSegments(), nil
}

// HealthCheck reports whether uvx is installed and a token is configured.
func (s *Script) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(s.cfg.HFToken) == "" {
		return stage.Unhealthy(scriptHealthName, "Hugging Face token not configured")
	}
	if _, err := s.lookPath(uvxCommand); err != nil {
		return stage.Unhealthy(scriptHealthName, "uvx not found in PATH")
	}
	return stage.Healthy(scriptHealthName)
}

func (s *Script) buildArgs(scriptPath, audioPath, token string) []string {
	args := []string{
		"--quiet",
		"--with", "pyannote.audio",
		"--with", "torchaudio",
		"--with", "soundfile",
	}
	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", cudaIndexURL,
			"--extra-index-url", pypiIndexURL,
		)
	}
	return append(args, "python", scriptPath,
		"--audio", audioPath,
		"--model", s.cfg.Model,
		"--hf-token", token,
	)
}

// scriptFailure extracts a readable message from the script's stderr.
func scriptFailure(stderr []byte) string {
	var result wireResult
	if json.Unmarshal(bytes.TrimSpace(stderr), &result) == nil && result.Error != "" {
		return result.Error
	}
	msg := strings.TrimSpace(string(stderr))
	if strings.Contains(msg, "GatedRepoError") || strings.Contains(msg, "401") {
		return "Hugging Face model access denied; accept the pyannote model terms on hf.co and retry"
	}
	lines := strings.Split(msg, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); exceptionLine.MatchString(line) {
			return line
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "diarization script failed"
}

// exceptionLine matches the final line of a Python traceback, such as
// "ValueError: bad audio" or "torch.cuda.OutOfMemoryError: ...".
var exceptionLine = regexp.MustCompile(`^[A-Za-z_][\w.]*(Error|Exception):`)

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}
