package config

import (
	"fmt"
	"sort"
	"strings"

	"callsight/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeLogging()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeDiarization()
	return c.normalizeDetectors()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	lang, err := language.Normalize(c.Transcription.Language)
	if err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	c.Transcription.Language = lang
	return nil
}

func (c *Config) normalizeDiarization() {
	c.Diarization.Backend = strings.ToLower(strings.TrimSpace(c.Diarization.Backend))
	if c.Diarization.Backend == "" {
		c.Diarization.Backend = defaultDiarizationBackend
	}
	if strings.TrimSpace(c.Diarization.Model) == "" {
		c.Diarization.Model = defaultDiarizationModel
	}
	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	c.Diarization.SidecarURL = strings.TrimRight(strings.TrimSpace(c.Diarization.SidecarURL), "/")
	if c.Diarization.RequestTimeoutSeconds <= 0 {
		c.Diarization.RequestTimeoutSeconds = defaultSidecarTimeoutSeconds
	}
	if c.Diarization.MaxRetries < 0 {
		c.Diarization.MaxRetries = 0
	}
}

func (c *Config) normalizeDetectors() error {
	d := &c.Detectors
	if strings.TrimSpace(d.RulesFile) != "" {
		expanded, err := expandPath(d.RulesFile)
		if err != nil {
			return fmt.Errorf("detectors.rules_file: %w", err)
		}
		d.RulesFile = expanded
		if err := d.mergeRulesFile(expanded); err != nil {
			return err
		}
	}
	if strings.TrimSpace(d.SentimentLexicon) != "" {
		expanded, err := expandPath(d.SentimentLexicon)
		if err != nil {
			return fmt.Errorf("detectors.sentiment_lexicon: %w", err)
		}
		d.SentimentLexicon = expanded
	}

	patterns := make(map[string]string, len(d.PIIPatterns))
	for name, pattern := range d.PIIPatterns {
		name = strings.TrimSpace(name)
		if name == "" || strings.TrimSpace(pattern) == "" {
			continue
		}
		patterns[name] = pattern
	}
	d.PIIPatterns = patterns

	d.SensitiveWords = cleanList(d.SensitiveWords, true)
	d.ProfanityWords = cleanList(d.ProfanityWords, true)
	d.RequiredPhrases = cleanList(d.RequiredPhrases, false)

	categories := make(map[string][]string, len(d.Categories))
	for name, keywords := range d.Categories {
		name = strings.TrimSpace(name)
		cleaned := cleanList(keywords, true)
		if name == "" || len(cleaned) == 0 {
			continue
		}
		categories[name] = cleaned
	}
	d.Categories = categories
	return nil
}

// CategoryNames returns configured category names in their stable evaluation order.
func (d Detectors) CategoryNames() []string {
	names := make([]string, 0, len(d.Categories))
	for name := range d.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PIIPatternNames returns configured PII pattern names in their stable evaluation order.
func (d Detectors) PIIPatternNames() []string {
	names := make([]string, 0, len(d.PIIPatterns))
	for name := range d.PIIPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cleanList(values []string, lower bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
