package pyannote

import (
	"context"
	"time"

	"callsight/internal/config"
	"callsight/internal/speaker"
	"callsight/internal/stage"
)

// Diarizer splits audio into speaker turns.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]speaker.Segment, error)
	HealthCheck(ctx context.Context) stage.Health
}

// New returns the backend selected by the diarization config section.
func New(cfg config.Diarization, workDir string) Diarizer {
	if cfg.Backend == config.DiarizationBackendSidecar {
		return NewSidecar(SidecarConfig{
			BaseURL:    cfg.SidecarURL,
			Timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			MaxRetries: cfg.MaxRetries,
		})
	}
	return NewScript(ScriptConfig{
		Model:       cfg.Model,
		HFToken:     cfg.HFToken,
		CUDAEnabled: cfg.CUDAEnabled,
		WorkDir:     workDir,
	})
}

// wireSegment is the JSON shape produced by both backends.
type wireSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type wireResult struct {
	Segments []wireSegment `json:"segments"`
	Error    string        `json:"error,omitempty"`
}

func (r wireResult) toSegments() []speaker.Segment {
	out := make([]speaker.Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		out = append(out, speaker.Segment{Speaker: seg.Speaker, Start: seg.Start, End: seg.End})
	}
	return speaker.Clean(out)
}
