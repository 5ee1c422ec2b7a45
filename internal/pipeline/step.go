package pipeline

import (
	"log/slog"
	"strings"

	"callsight/internal/logging"
)

// Step names an event on the wire.
type Step string

const (
	StepTranscription   Step = "transcription"
	StepDiarization     Step = "diarization"
	StepSpeakingSpeed   Step = "speaking_speed"
	StepPII             Step = "pii"
	StepProfanity       Step = "profanity"
	StepRequiredPhrases Step = "required_phrases"
	StepSentiment       Step = "sentiment"
	StepCategory        Step = "category"
	StepSummary         Step = "summary"
	StepComplete        Step = "complete"
	StepError           Step = "error"
)

// Catalog lists the requestable stages in execution order.
var Catalog = []Step{
	StepTranscription,
	StepDiarization,
	StepSpeakingSpeed,
	StepPII,
	StepProfanity,
	StepRequiredPhrases,
	StepSentiment,
	StepCategory,
}

var displayNames = map[Step]string{
	StepTranscription:   "Transcription",
	StepDiarization:     "Speaker Diarization",
	StepSpeakingSpeed:   "Speaking Speed",
	StepPII:             "PII Check",
	StepProfanity:       "Profanity Check",
	StepRequiredPhrases: "Required Phrases",
	StepSentiment:       "Sentiment Analysis",
	StepCategory:        "Call Category",
	StepSummary:         "Summary",
	StepComplete:        "Complete",
	StepError:           "Error",
}

// failureMessages prefix the error event of a failed stage.
var failureMessages = map[Step]string{
	StepTranscription:   "Transcription failed",
	StepDiarization:     "Diarization failed",
	StepSpeakingSpeed:   "Speaking speed calculation failed",
	StepPII:             "PII check failed",
	StepProfanity:       "Profanity check failed",
	StepRequiredPhrases: "Required phrases check failed",
	StepSentiment:       "Sentiment analysis failed",
	StepCategory:        "Call categorization failed",
}

// DisplayName returns the human label used by the dashboard and the CLI.
func (s Step) DisplayName() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	return string(s)
}

// Requestable reports whether s is part of the stage catalog.
func (s Step) Requestable() bool {
	for _, step := range Catalog {
		if step == s {
			return true
		}
	}
	return false
}

// StageSet is the requested subset of the catalog. The zero value is empty.
type StageSet struct {
	steps map[Step]struct{}
}

// NewStageSet builds a set from catalog steps. Non-catalog steps are dropped.
func NewStageSet(steps ...Step) StageSet {
	set := StageSet{steps: make(map[Step]struct{}, len(steps))}
	for _, step := range steps {
		if step.Requestable() {
			set.steps[step] = struct{}{}
		}
	}
	return set
}

// AllStages requests the whole catalog.
func AllStages() StageSet {
	return NewStageSet(Catalog...)
}

// Has reports whether step was requested.
func (s StageSet) Has(step Step) bool {
	_, ok := s.steps[step]
	return ok
}

// Len returns the number of requested stages.
func (s StageSet) Len() int {
	return len(s.steps)
}

// Steps returns the requested stages in catalog order.
func (s StageSet) Steps() []Step {
	out := make([]Step, 0, len(s.steps))
	for _, step := range Catalog {
		if s.Has(step) {
			out = append(out, step)
		}
	}
	return out
}

// Names returns the requested stage display names in catalog order.
func (s StageSet) Names() []string {
	steps := s.Steps()
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.DisplayName())
	}
	return out
}

// ParseStages maps requested names onto the catalog. Display names
// ("PII Check") and step names ("pii") are both accepted, case-insensitively.
// Unknown names are ignored and logged at debug.
func ParseStages(names []string, logger *slog.Logger) StageSet {
	steps := make([]Step, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		step, ok := lookupStage(name)
		if !ok {
			if logger != nil {
				logger.Debug("ignoring unknown stage name",
					logging.String(logging.FieldEventType, "unknown_stage"),
					logging.String("stage_name", name),
				)
			}
			continue
		}
		steps = append(steps, step)
	}
	return NewStageSet(steps...)
}

func lookupStage(name string) (Step, bool) {
	normalized := strings.ToLower(name)
	for _, step := range Catalog {
		if normalized == string(step) || strings.EqualFold(name, step.DisplayName()) {
			return step, true
		}
	}
	return "", false
}
