package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"callsight/internal/detect"
	"callsight/internal/speaker"
	"callsight/internal/summary"
)

// CompletionMessage is the payload of the terminal event.
const CompletionMessage = "Call processing completed."

// SpeakerSegment is one diarized turn.
type SpeakerSegment = speaker.Segment

// Payload is implemented by every event result type. The set is closed.
type Payload interface {
	step() Step
}

// TranscriptionResult is the full-call transcript.
type TranscriptionResult string

// DiarizationResult carries the speaker turns and call-level figures.
type DiarizationResult struct {
	Segments         []SpeakerSegment `json:"speaker_segments"`
	SpeakingRatio    Ratio            `json:"speaking_ratio"`
	Interruptions    int              `json:"interruptions"`
	TimeToFirstToken float64          `json:"time_to_first_token"`
}

// Ratio is the first speaker's talk time over the second's. Without a second
// speaker it is encoded as the string "N/A (only one speaker detected)".
type Ratio struct {
	Value float64
	Valid bool
}

// MarshalJSON encodes a number or the one-speaker sentinel.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return json.Marshal(speaker.OneSpeakerRatio)
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or any string.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*r = Ratio{}
		return nil
	}
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("speaking ratio: %w", err)
	}
	*r = Ratio{Value: value, Valid: true}
	return nil
}

// SpeakingSpeedResult maps speaker labels to words per minute.
type SpeakingSpeedResult map[string]float64

// The text analytics payloads share their shape with the detector results.
type (
	PIIResult             detect.PIIResult
	ProfanityResult       detect.ProfanityResult
	RequiredPhrasesResult detect.PhrasesResult
	SentimentResult       detect.SentimentResult
	CategoryResult        detect.CategoryResult
)

// SummaryResult wraps the summary table.
type SummaryResult struct {
	Table summary.Table
}

// MarshalJSON emits the table's wire shape directly.
func (s SummaryResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Table)
}

// UnmarshalJSON decodes the table's wire shape.
func (s *SummaryResult) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.Table)
}

// CompleteResult is the terminal event payload.
type CompleteResult string

// ErrorResult is "<stage failure message>: <detail>".
type ErrorResult string

func (TranscriptionResult) step() Step   { return StepTranscription }
func (DiarizationResult) step() Step     { return StepDiarization }
func (SpeakingSpeedResult) step() Step   { return StepSpeakingSpeed }
func (PIIResult) step() Step             { return StepPII }
func (ProfanityResult) step() Step       { return StepProfanity }
func (RequiredPhrasesResult) step() Step { return StepRequiredPhrases }
func (SentimentResult) step() Step       { return StepSentiment }
func (CategoryResult) step() Step        { return StepCategory }
func (SummaryResult) step() Step         { return StepSummary }
func (CompleteResult) step() Step        { return StepComplete }
func (ErrorResult) step() Step           { return StepError }

// Event is one settled stage.
type Event struct {
	Step   Step    `json:"step"`
	Result Payload `json:"result"`
}

// NewEvent pairs a payload with its step.
func NewEvent(p Payload) Event {
	return Event{Step: p.step(), Result: p}
}

// Frame encodes the event as a server-sent-events frame:
// "data: <json>" followed by a blank line.
func (e Event) Frame() ([]byte, error) {
	if e.Result == nil {
		return nil, fmt.Errorf("event %q has no result", e.Step)
	}
	if e.Result.step() != e.Step {
		return nil, fmt.Errorf("event %q carries a %q payload", e.Step, e.Result.step())
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Step, err)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// UnmarshalJSON decodes {"step","result"} through DecodeEvent.
func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

// DecodeEvent parses the JSON body of one frame. Unknown steps are an error.
func DecodeEvent(data []byte) (Event, error) {
	var wire struct {
		Step   Step            `json:"step"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var (
		payload Payload
		err     error
	)
	switch wire.Step {
	case StepTranscription:
		payload, err = decodePayload[TranscriptionResult](wire.Result)
	case StepDiarization:
		payload, err = decodePayload[DiarizationResult](wire.Result)
	case StepSpeakingSpeed:
		payload, err = decodePayload[SpeakingSpeedResult](wire.Result)
	case StepPII:
		payload, err = decodePayload[PIIResult](wire.Result)
	case StepProfanity:
		payload, err = decodePayload[ProfanityResult](wire.Result)
	case StepRequiredPhrases:
		payload, err = decodePayload[RequiredPhrasesResult](wire.Result)
	case StepSentiment:
		payload, err = decodePayload[SentimentResult](wire.Result)
	case StepCategory:
		payload, err = decodePayload[CategoryResult](wire.Result)
	case StepSummary:
		payload, err = decodePayload[SummaryResult](wire.Result)
	case StepComplete:
		payload, err = decodePayload[CompleteResult](wire.Result)
	case StepError:
		payload, err = decodePayload[ErrorResult](wire.Result)
	default:
		return Event{}, fmt.Errorf("decode event: unknown step %q", wire.Step)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", wire.Step, err)
	}
	return Event{Step: wire.Step, Result: payload}, nil
}

func decodePayload[T Payload](raw json.RawMessage) (Payload, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}
