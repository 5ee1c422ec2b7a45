package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB < 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if c.Server.SessionTimeoutSeconds < 0 {
		return errors.New("server.session_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method: unsupported value %q (expected silero or pyannote)", c.Transcription.VADMethod)
	}
	if c.Transcription.VADMethod == "pyannote" && c.Diarization.HFToken == "" {
		return fmt.Errorf("transcription.vad_method=pyannote requires diarization.hf_token (or %s)", EnvHuggingFaceToken)
	}
	return nil
}

func (c *Config) validateDiarization() error {
	switch c.Diarization.Backend {
	case DiarizationBackendPyannote:
	case DiarizationBackendSidecar:
		if c.Diarization.SidecarURL == "" {
			return errors.New("diarization.sidecar_url must be set when diarization.backend is sidecar")
		}
		if !strings.HasPrefix(c.Diarization.SidecarURL, "http://") && !strings.HasPrefix(c.Diarization.SidecarURL, "https://") {
			return fmt.Errorf("diarization.sidecar_url must be an http(s) URL, got %q", c.Diarization.SidecarURL)
		}
	default:
		return fmt.Errorf("diarization.backend: unsupported value %q (expected %s or %s)",
			c.Diarization.Backend, DiarizationBackendPyannote, DiarizationBackendSidecar)
	}
	return nil
}

func (c *Config) validateDetectors() error {
	for _, name := range c.Detectors.PIIPatternNames() {
		if _, err := regexp.Compile(c.Detectors.PIIPatterns[name]); err != nil {
			return fmt.Errorf("detectors.pii_patterns.%s: %w", name, err)
		}
	}
	for _, phrase := range c.Detectors.RequiredPhrases {
		if _, err := regexp.Compile("(?i)" + phrase); err != nil {
			return fmt.Errorf("detectors.required_phrases %q: %w", phrase, err)
		}
	}
	if t := c.Detectors.FuzzyPhraseThreshold; t < 0 || t > 1 {
		return errors.New("detectors.fuzzy_phrase_threshold must be between 0 and 1")
	}
	return nil
}
