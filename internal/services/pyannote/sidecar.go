package pyannote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"callsight/internal/services"
	"callsight/internal/speaker"
	"callsight/internal/stage"
)

const sidecarHealthName = "diarization-sidecar"

// SidecarConfig configures the HTTP diarization backend.
type SidecarConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// InitialInterval is the first retry delay; zero uses the backoff default.
	InitialInterval time.Duration
}

// Sidecar posts audio to a diarization service: POST {BaseURL}/diarize with a
// multipart "file" field, answered by {"segments": [...]}.
type Sidecar struct {
	cfg    SidecarConfig
	client *http.Client
}

// NewSidecar creates the HTTP-backed diarizer.
func NewSidecar(cfg SidecarConfig) *Sidecar {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Sidecar{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Diarize uploads the audio file and returns the service's segments.
// Network errors, 429 and 5xx responses are retried; other failures are not.
func (s *Sidecar) Diarize(ctx context.Context, audioPath string) ([]speaker.Segment, error) {
	var result wireResult
	attempts := 0
	op := func() error {
		attempts++
		body, contentType, err := multipartBody(audioPath)
		if err != nil {
			return backoff.Permanent(services.Wrap(services.ErrValidation, "diarization-sidecar", "read audio", "", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/diarize", body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("sidecar returned %s: %s", resp.Status, snippet(payload))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("sidecar returned %s: %s", resp.Status, snippet(payload)))
		}
		if err := json.Unmarshal(payload, &result); err != nil {
			return backoff.Permanent(fmt.Errorf("decode sidecar response: %w", err))
		}
		if result.Error != "" {
			return backoff.Permanent(errors.New(result.Error))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.policy(), ctx)); err != nil {
		marker := services.ErrExternalTool
		switch {
		case errors.Is(err, services.ErrValidation):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded):
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "diarization-sidecar", "diarize",
			fmt.Sprintf("gave up after %d attempt(s)", attempts), err)
	}
	return result.toSegments(), nil
}

// HealthCheck probes GET {BaseURL}/health.
func (s *Sidecar) HealthCheck(ctx context.Context) stage.Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/health", nil)
	if err != nil {
		return stage.Unhealthy(sidecarHealthName, err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return stage.Unhealthy(sidecarHealthName, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stage.Unhealthy(sidecarHealthName, "health endpoint returned "+resp.Status)
	}
	return stage.Healthy(sidecarHealthName)
}

func (s *Sidecar) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		b.InitialInterval = s.cfg.InitialInterval
	}
	b.MaxElapsedTime = s.cfg.Timeout
	retries := s.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func multipartBody(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	if text == "" {
		return "empty body"
	}
	return text
}
