package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile mirrors the standalone YAML rules format shared with existing
// call-center tooling.
type rulesFile struct {
	PIIPatterns     map[string]string   `yaml:"pii_patterns"`
	SensitiveWords  []string            `yaml:"sensitive_words"`
	ProfanityWords  []string            `yaml:"profanity_words"`
	RequiredPhrases []string            `yaml:"required_phrases"`
	Categories      map[string][]string `yaml:"categories"`
}

func (d *Detectors) mergeRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("detectors.rules_file: %w", err)
	}
	var rules rulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("detectors.rules_file: parse %s: %w", path, err)
	}
	if len(rules.PIIPatterns) > 0 {
		d.PIIPatterns = rules.PIIPatterns
	}
	if len(rules.SensitiveWords) > 0 {
		d.SensitiveWords = rules.SensitiveWords
	}
	if len(rules.ProfanityWords) > 0 {
		d.ProfanityWords = rules.ProfanityWords
	}
	if len(rules.RequiredPhrases) > 0 {
		d.RequiredPhrases = rules.RequiredPhrases
	}
	if len(rules.Categories) > 0 {
		d.Categories = rules.Categories
	}
	return nil
}
