package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callsight/internal/detect"
	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/services"
	"callsight/internal/speaker"
	"callsight/internal/stageexec"
	"callsight/internal/summary"
)

// ErrDelivery marks an emitter failure caused by the transport to the
// consumer. It aborts delivery for the session only.
var ErrDelivery = errors.New("event delivery failed")

// Emitter receives events in order. Emit must not return before the event is
// handed to the consumer.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Transcriber converts speech to text for a whole file or a time range.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	TranscribeRange(ctx context.Context, audioPath string, start, end float64) (string, error)
}

// Diarizer splits audio into speaker turns.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]SpeakerSegment, error)
}

// PIIDetector masks personal data in the transcript.
type PIIDetector interface {
	DetectPII(ctx context.Context, text string) (detect.PIIResult, error)
}

// ProfanityFilter censors listed words in the transcript.
type ProfanityFilter interface {
	CensorProfanity(ctx context.Context, text string) (detect.ProfanityResult, error)
}

// PhraseChecker reports which required phrases the agent said.
type PhraseChecker interface {
	CheckRequiredPhrases(ctx context.Context, text string) (detect.PhrasesResult, error)
}

// SentimentAnalyzer scores the polarity of the transcript.
type SentimentAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (detect.SentimentResult, error)
}

// Categorizer assigns the call to a keyword category.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (detect.CategoryResult, error)
}

// Adapters are the external capabilities a session invokes.
type Adapters struct {
	Transcriber Transcriber
	Diarizer    Diarizer
	PII         PIIDetector
	Profanity   ProfanityFilter
	Phrases     PhraseChecker
	Sentiment   SentimentAnalyzer
	Category    Categorizer
}

// WithRules fills every text analytics slot from one compiled rule set.
func (a Adapters) WithRules(rules *detect.Rules) Adapters {
	a.PII = rules
	a.Profanity = rules
	a.Phrases = rules
	a.Sentiment = rules
	a.Category = rules
	return a
}

func (a Adapters) validate() error {
	var missing []string
	if a.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if a.Diarizer == nil {
		missing = append(missing, "diarizer")
	}
	if a.PII == nil {
		missing = append(missing, "pii")
	}
	if a.Profanity == nil {
		missing = append(missing, "profanity")
	}
	if a.Phrases == nil {
		missing = append(missing, "required phrases")
	}
	if a.Sentiment == nil {
		missing = append(missing, "sentiment")
	}
	if a.Category == nil {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing adapters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Options tune an Orchestrator.
type Options struct {
	Logger          *slog.Logger
	Metrics         *observe.Metrics
	ShowAllSpeakers bool
}

// segmentAggregator turns diarized segments into per-speaker records.
type segmentAggregator interface {
	Aggregate(ctx context.Context, audioPath string, segments []speaker.Segment) (speaker.Records, error)
}

// Orchestrator runs sessions. It holds only immutable collaborators and is
// safe for concurrent Run calls.
type Orchestrator struct {
	adapters        Adapters
	aggregator      segmentAggregator
	logger          *slog.Logger
	metrics         *observe.Metrics
	showAllSpeakers bool
}

// New validates the adapters and builds an orchestrator.
func New(adapters Adapters, opts Options) (*Orchestrator, error) {
	if err := adapters.validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "", err)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.Nop()
	}
	logger := logging.NewComponentLogger(opts.Logger, "pipeline")
	return &Orchestrator{
		adapters:        adapters,
		aggregator:      speaker.NewAggregator(adapters.Transcriber, opts.Logger, metrics),
		logger:          logger,
		metrics:         metrics,
		showAllSpeakers: opts.ShowAllSpeakers,
	}, nil
}

// Run executes session and hands every event to emitter before starting the
// next stage. Adapter failures are reported as events and never returned.
// Run returns an error only when delivery fails (wrapping ErrDelivery and
// services.ErrTransient) or an invariant breaks (*InvariantError).
func (o *Orchestrator) Run(ctx context.Context, session Session, emitter Emitter) (err error) {
	if err := session.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "run", "", err)
	}
	if emitter == nil {
		return services.Wrap(services.ErrValidation, "pipeline", "run", "emitter is required", nil)
	}

	ctx = services.WithSessionID(ctx, session.ID)
	r := &run{
		o:       o,
		session: session,
		emitter: emitter,
		results: newResults(),
		logger:  logging.WithContext(ctx, o.logger),
	}

	start := time.Now()
	o.metrics.SessionStarted(ctx)
	r.logger.Info("call analysis started",
		logging.String(logging.FieldEventType, "session_start"),
		logging.String("audio", session.AudioPath),
		logging.String("requested", strings.Join(session.Requested.Names(), ", ")),
	)
	defer func() {
		status := RunStatus(err)
		o.metrics.SessionFinished(ctx, status, time.Since(start))
		r.logger.Info("call analysis finished",
			logging.String(logging.FieldEventType, "session_finish"),
			logging.String("status", status),
			logging.Int("events", r.emitted),
			logging.Duration("elapsed", time.Since(start)),
		)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = r.abort(ctx, invariantf("panic: %v", rec))
		}
	}()

	err = r.execute(ctx)
	var inv *InvariantError
	if errors.As(err, &inv) {
		return r.abort(ctx, inv)
	}
	return err
}

// Session outcomes reported by RunStatus.
const (
	StatusCompleted    = "completed"
	StatusAborted      = "aborted"
	StatusDisconnected = "disconnected"
	StatusTimedOut     = "timed_out"
	StatusFailed       = "failed"
)

// RunStatus classifies the error returned by Run. A session whose own
// deadline expired is timed out rather than disconnected.
func RunStatus(err error) string {
	var inv *InvariantError
	switch {
	case err == nil:
		return StatusCompleted
	case errors.As(err, &inv):
		return StatusAborted
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimedOut
	case errors.Is(err, ErrDelivery):
		return StatusDisconnected
	default:
		return StatusFailed
	}
}

// run is the state of one session.
type run struct {
	o       *Orchestrator
	session Session
	emitter Emitter
	results *Results
	logger  *slog.Logger
	emitted int
}

func (r *run) execute(ctx context.Context) error {
	text, err := r.transcription(ctx)
	if err != nil {
		return err
	}
	segments, err := r.diarization(ctx)
	if err != nil {
		return err
	}
	if err := r.speakingSpeed(ctx, segments); err != nil {
		return err
	}

	adapters := r.o.adapters
	if err := textStage(ctx, r, StepPII, text, func(ctx context.Context, text string) (PIIResult, error) {
		res, err := adapters.PII.DetectPII(ctx, text)
		return PIIResult(res), err
	}); err != nil {
		return err
	}
	if err := textStage(ctx, r, StepProfanity, text, func(ctx context.Context, text string) (ProfanityResult, error) {
		res, err := adapters.Profanity.CensorProfanity(ctx, text)
		return ProfanityResult(res), err
	}); err != nil {
		return err
	}
	if err := textStage(ctx, r, StepRequiredPhrases, text, func(ctx context.Context, text string) (RequiredPhrasesResult, error) {
		res, err := adapters.Phrases.CheckRequiredPhrases(ctx, text)
		return RequiredPhrasesResult(res), err
	}); err != nil {
		return err
	}
	if err := textStage(ctx, r, StepSentiment, text, func(ctx context.Context, text string) (SentimentResult, error) {
		res, err := adapters.Sentiment.AnalyzeSentiment(ctx, text)
		return SentimentResult(res), err
	}); err != nil {
		return err
	}
	if err := textStage(ctx, r, StepCategory, text, func(ctx context.Context, text string) (CategoryResult, error) {
		res, err := adapters.Category.Categorize(ctx, text)
		return CategoryResult(res), err
	}); err != nil {
		return err
	}

	table := summary.Build(r.results.summaryInputs(), r.o.showAllSpeakers)
	if err := r.emit(ctx, SummaryResult{Table: table}); err != nil {
		return err
	}
	return r.emit(ctx, CompleteResult(CompletionMessage))
}

// transcription always runs because later stages consume its text. A failure
// counts as empty text; it is reported only when transcription was requested.
func (r *run) transcription(ctx context.Context) (string, error) {
	requested := r.session.Requested.Has(StepTranscription)
	text, err := stageexec.Run(ctx, r.stageOptions(StepTranscription), func(ctx context.Context) (string, error) {
		return r.o.adapters.Transcriber.Transcribe(ctx, r.session.AudioPath)
	})
	if err != nil {
		if requested {
			return "", r.fail(ctx, StepTranscription, err)
		}
		r.logger.Debug("transcription failed outside the requested set; text stages will be skipped",
			logging.String(logging.FieldEventType, "implicit_transcription_failed"),
			logging.Error(err),
		)
		return "", nil
	}
	text = strings.TrimSpace(text)
	if requested {
		if err := r.emit(ctx, TranscriptionResult(text)); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (r *run) diarization(ctx context.Context) ([]SpeakerSegment, error) {
	if !r.session.Requested.Has(StepDiarization) {
		return nil, nil
	}
	segments, err := stageexec.Run(ctx, r.stageOptions(StepDiarization), func(ctx context.Context) ([]SpeakerSegment, error) {
		return r.o.adapters.Diarizer.Diarize(ctx, r.session.AudioPath)
	})
	if err != nil {
		return nil, r.fail(ctx, StepDiarization, err)
	}
	segments = speaker.Clean(segments)
	r.results.segments = segments

	metrics := speaker.ComputeMetrics(segments)
	result := DiarizationResult{
		Segments:         segments,
		Interruptions:    metrics.Interruptions,
		TimeToFirstToken: metrics.TimeToFirstToken,
	}
	if metrics.Ratio != nil {
		result.SpeakingRatio = Ratio{Value: *metrics.Ratio, Valid: true}
	}
	return segments, r.emit(ctx, result)
}

// speakingSpeed needs diarization to have been requested and to have
// produced at least one segment.
func (r *run) speakingSpeed(ctx context.Context, segments []SpeakerSegment) error {
	if !r.session.Requested.Has(StepSpeakingSpeed) {
		return nil
	}
	opts := r.stageOptions(StepSpeakingSpeed)
	switch {
	case !r.session.Requested.Has(StepDiarization):
		stageexec.Skip(ctx, opts, "diarization not requested")
		return nil
	case len(segments) == 0:
		stageexec.Skip(ctx, opts, "diarization produced no segments")
		return nil
	}

	records, err := stageexec.Run(ctx, opts, func(ctx context.Context) (speaker.Records, error) {
		return r.o.aggregator.Aggregate(ctx, r.session.AudioPath, segments)
	})
	if err != nil {
		return r.fail(ctx, StepSpeakingSpeed, err)
	}
	r.results.records = records
	return r.emit(ctx, SpeakingSpeedResult(records.Speeds()))
}

// textStage runs one of the stages that consume the transcript.
func textStage[T Payload](ctx context.Context, r *run, step Step, text string, fn func(context.Context, string) (T, error)) error {
	if !r.session.Requested.Has(step) {
		return nil
	}
	opts := r.stageOptions(step)
	if text == "" {
		stageexec.Skip(ctx, opts, "empty transcription")
		return nil
	}
	result, err := stageexec.Run(ctx, opts, func(ctx context.Context) (T, error) {
		return fn(ctx, text)
	})
	if err != nil {
		return r.fail(ctx, step, err)
	}
	return r.emit(ctx, result)
}

func (r *run) stageOptions(step Step) stageexec.Options {
	return stageexec.Options{Logger: r.o.logger, Metrics: r.o.metrics, Stage: string(step)}
}

// fail settles step with an error event.
func (r *run) fail(ctx context.Context, step Step, stageErr error) error {
	prefix, ok := failureMessages[step]
	if !ok {
		return invariantf("no failure message for stage %q", step)
	}
	detail := services.Details(stageErr)
	if detail == "" {
		detail = "unknown error"
	}
	payload := ErrorResult(prefix + ": " + detail)
	if err := r.results.settle(step, payload); err != nil {
		return err
	}
	return r.deliver(ctx, NewEvent(payload))
}

// emit settles the payload's stage and delivers its event.
func (r *run) emit(ctx context.Context, p Payload) error {
	step := p.step()
	if step != StepSummary && step != StepComplete && !step.Requestable() {
		return invariantf("stage %q is outside the catalog", step)
	}
	if err := r.results.settle(step, p); err != nil {
		return err
	}
	return r.deliver(ctx, NewEvent(p))
}

func (r *run) deliver(ctx context.Context, event Event) error {
	if err := r.emitter.Emit(ctx, event); err != nil {
		r.o.metrics.RecordDeliveryFailure(ctx, string(event.Step))
		if errors.Is(err, ErrDelivery) {
			logging.WarnWithContext(r.logger, "event delivery failed; abandoning session stream", "delivery_failed",
				logging.String("step", string(event.Step)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "remaining events for this call are not delivered"),
				logging.String(logging.FieldErrorHint, "client disconnected or stalled"),
			)
			return fmt.Errorf("%w: %w", services.ErrTransient, err)
		}
		return invariantf("emitter rejected %s event: %v", event.Step, err)
	}
	r.emitted++
	r.o.metrics.RecordEvent(ctx, string(event.Step))
	return nil
}

// abort emits the final error event for a broken invariant. Delivery of that
// event is best effort.
func (r *run) abort(ctx context.Context, inv *InvariantError) error {
	logging.ErrorWithContext(r.logger, "call analysis aborted", "invariant_violation",
		logging.String("detail", inv.Detail),
		logging.String(logging.FieldErrorHint, "report this as a bug with the session log"),
	)
	final := NewEvent(ErrorResult("Unexpected error: " + inv.Detail))
	if err := r.emitter.Emit(ctx, final); err != nil {
		r.logger.Debug("final error event not delivered", logging.Error(err))
	} else {
		r.emitted++
	}
	return inv
}
