package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and database locations.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// Server contains configuration for the callsightd HTTP API.
type Server struct {
	Bind                  string `toml:"bind"`
	APIToken              string `toml:"api_token"`
	MaxUploadMB           int    `toml:"max_upload_mb"`
	SessionTimeoutSeconds int    `toml:"session_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Transcription contains WhisperX and ffmpeg settings.
type Transcription struct {
	Model        string `toml:"model"`
	CUDAEnabled  bool   `toml:"cuda_enabled"`
	VADMethod    string `toml:"vad_method"`
	Language     string `toml:"language"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
}

// Diarization selects and configures the speaker diarization backend.
type Diarization struct {
	// Backend is "pyannote" (local script through uvx) or "sidecar" (HTTP service).
	Backend               string `toml:"backend"`
	Model                 string `toml:"model"`
	HFToken               string `toml:"hf_token"`
	CUDAEnabled           bool   `toml:"cuda_enabled"`
	SidecarURL            string `toml:"sidecar_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxRetries            int    `toml:"max_retries"`
}

// Detectors holds the pattern and keyword sets used by the text analysis stages.
type Detectors struct {
	PIIPatterns          map[string]string   `toml:"pii_patterns"`
	SensitiveWords       []string            `toml:"sensitive_words"`
	ProfanityWords       []string            `toml:"profanity_words"`
	RequiredPhrases      []string            `toml:"required_phrases"`
	Categories           map[string][]string `toml:"categories"`
	FuzzyPhraseThreshold float64             `toml:"fuzzy_phrase_threshold"`
	// SentimentLexicon optionally replaces the embedded sentiment lexicon (YAML).
	SentimentLexicon string `toml:"sentiment_lexicon"`
	// RulesFile optionally points at a YAML rules file whose non-empty lists
	// replace the ones above.
	RulesFile string `toml:"rules_file"`
}

// Summary controls the summary table layout.
type Summary struct {
	ShowAllSpeakers bool `toml:"show_all_speakers"`
}

// Metrics toggles OpenTelemetry instrumentation.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// History toggles persistence of completed sessions.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for callsight.
//
// Configuration sections by subsystem:
//   - Paths: work directory, logs, history database
//   - Server: callsightd bind address, auth token, upload limits
//   - Logging: log format and level
//   - Transcription: WhisperX model and ffmpeg settings
//   - Diarization: pyannote (uvx) or HTTP sidecar backend
//   - Detectors: PII, profanity, phrase, category and sentiment rules
//   - Summary: summary table layout
//   - Metrics / History: optional instrumentation and persistence
//
// A loaded Config is shared by concurrent sessions and must not be mutated.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Detectors     Detectors     `toml:"detectors"`
	Summary       Summary       `toml:"summary"`
	Metrics       Metrics       `toml:"metrics"`
	History       History       `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/callsight/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config (or in the
// working directory) is loaded before environment overrides are applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callsight.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories callsight writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	if c.History.Enabled && strings.TrimSpace(c.Paths.HistoryDB) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.HistoryDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for segment extraction.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Transcription.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// MaxUploadBytes returns the upload size limit for the HTTP API.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
