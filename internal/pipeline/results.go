package pipeline

import (
	"fmt"

	"callsight/internal/detect"
	"callsight/internal/speaker"
	"callsight/internal/summary"
)

// Results holds at most one settled outcome per stage for a session. A stage
// settles with either its payload or an error message.
type Results struct {
	settled  map[Step]Payload
	segments []SpeakerSegment
	records  speaker.Records
}

func newResults() *Results {
	return &Results{settled: make(map[Step]Payload, len(Catalog)+2)}
}

// settle records the outcome of step. Settling a stage twice breaks the
// one-event-per-stage contract.
func (r *Results) settle(step Step, p Payload) error {
	if _, dup := r.settled[step]; dup {
		return invariantf("stage %s settled twice", step)
	}
	r.settled[step] = p
	return nil
}

// Payload returns the settled payload of step, which may be an ErrorResult.
func (r *Results) Payload(step Step) (Payload, bool) {
	p, ok := r.settled[step]
	return p, ok
}

// Failed reports whether step settled with an error.
func (r *Results) Failed(step Step) bool {
	_, failed := r.settled[step].(ErrorResult)
	return failed
}

func successful[T Payload](r *Results, step Step) (T, bool) {
	value, ok := r.settled[step].(T)
	return value, ok
}

// summaryInputs collects the successful outputs the summary consumes.
func (r *Results) summaryInputs() summary.Inputs {
	var in summary.Inputs
	if speeds, ok := successful[SpeakingSpeedResult](r, StepSpeakingSpeed); ok {
		in.Speeds = speeds
		in.Records = r.records
	}
	if pii, ok := successful[PIIResult](r, StepPII); ok {
		v := detect.PIIResult(pii)
		in.PII = &v
	}
	if profanity, ok := successful[ProfanityResult](r, StepProfanity); ok {
		v := detect.ProfanityResult(profanity)
		in.Profanity = &v
	}
	if phrases, ok := successful[RequiredPhrasesResult](r, StepRequiredPhrases); ok {
		v := detect.PhrasesResult(phrases)
		in.Phrases = &v
	}
	if sentiment, ok := successful[SentimentResult](r, StepSentiment); ok {
		v := detect.SentimentResult(sentiment)
		in.Sentiment = &v
	}
	return in
}

// InvariantError reports a broken orchestrator invariant. It is fatal to the
// session.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "pipeline invariant violated: " + e.Detail
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
