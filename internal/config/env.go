package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables honoured on top of the config file.
const (
	EnvHuggingFaceToken = "HUGGING_FACE_TOKEN"
	EnvHFToken          = "HF_TOKEN"
	EnvAPIToken         = "CALLSIGHT_API_TOKEN"
	EnvLogLevel         = "CALLSIGHT_LOG_LEVEL"
)

// loadDotEnv reads .env files from the config directory and the working
// directory. Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{}
	if strings.TrimSpace(configDir) != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".env"))
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if strings.TrimSpace(c.Diarization.HFToken) == "" {
		for _, key := range []string{EnvHuggingFaceToken, EnvHFToken} {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				c.Diarization.HFToken = value
				break
			}
		}
	}
	if value := strings.TrimSpace(os.Getenv(EnvAPIToken)); value != "" && strings.TrimSpace(c.Server.APIToken) == "" {
		c.Server.APIToken = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		c.Logging.Level = value
	}
}
