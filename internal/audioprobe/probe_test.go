package audioprobe

import (
	"context"
	"errors"
	"math"
	"testing"

	"callsight/internal/services"
)

const callJSON = `{
  "streams": [{"index": 0, "codec_name": "pcm_s16le", "codec_type": "audio", "sample_rate": "16000", "channels": 1}],
  "format": {"filename": "call.wav", "nb_streams": 1, "duration": "42.5", "size": "1360044", "format_name": "wav"}
}`

func staticRunner(out string, err error) Runner {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestCheckAcceptsAudio(t *testing.T) {
	var gotName string
	var gotArgs []string
	p := New("").WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(callJSON), nil
	})

	result, err := p.Check(context.Background(), "/work/temp_call.wav")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if gotName != "ffprobe" {
		t.Fatalf("expected default binary, got %q", gotName)
	}
	if last := gotArgs[len(gotArgs)-1]; last != "/work/temp_call.wav" {
		t.Fatalf("expected path as last argument, got %q", last)
	}
	if result.AudioStreamCount() != 1 || result.DurationSeconds() != 42.5 || result.SizeBytes() != 1360044 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckRejectsFilesWithoutAudio(t *testing.T) {
	p := New("ffprobe").WithRunner(staticRunner(`{"streams":[{"codec_type":"video"}],"format":{}}`, nil))
	_, err := p.Check(context.Background(), "clip.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInspectErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		runner Runner
		marker error
	}{
		{"empty path", " ", staticRunner(callJSON, nil), services.ErrValidation},
		{"unreadable", "x.bin", staticRunner("", errors.New("exit status 1")), services.ErrValidation},
		{"bad json", "x.wav", staticRunner("{", nil), services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("").WithRunner(tt.runner).Inspect(context.Background(), tt.path)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}
}

func TestResultHandlesInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if (Result{}).DurationSeconds() != 0 {
		t.Fatal("expected 0 duration when absent")
	}
}
