package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"callsight/internal/detect"
	"callsight/internal/speaker"
)

// NotAvailable is rendered for any missing input.
const NotAvailable = "N/A"

// Row labels, in table order.
const (
	RowSpeechData      = "Speech Data"
	RowSpeakingSpeed   = "Speaking Speed (WPM)"
	RowPII             = "PII Check"
	RowProfanity       = "Profanity Check"
	RowRequiredPhrases = "Required Phrases"
	RowSentiment       = "Sentiment Analysis"
)

// RowLabels lists every row in the order Build emits them.
var RowLabels = []string{
	RowSpeechData,
	RowSpeakingSpeed,
	RowPII,
	RowProfanity,
	RowRequiredPhrases,
	RowSentiment,
}

// CanonicalSpeakers are the diarization labels shown as "Speaker 1" and "Speaker 2".
var CanonicalSpeakers = []string{"SPEAKER_00", "SPEAKER_01"}

const firstColumn = "Analysis"

// Inputs carries whatever stage outputs exist. Nil means the stage did not
// produce a result.
type Inputs struct {
	Records   speaker.Records
	Speeds    map[string]float64
	PII       *detect.PIIResult
	Profanity *detect.ProfanityResult
	Phrases   *detect.PhrasesResult
	Sentiment *detect.SentimentResult
}

// Row is one labelled line of the table with a display value per speaker.
type Row struct {
	Label  string
	Values map[string]string
}

// Table is the summary payload. On the wire it is
// {"columns": [...], "rows": [[label, speaker1, speaker2, ...], ...]}.
type Table struct {
	Speakers []string
	Rows     []Row
}

// Build renders the summary. With showAllSpeakers, speakers beyond the two
// canonical slots get extra columns ordered by label.
func Build(in Inputs, showAllSpeakers bool) Table {
	speakers := slices.Clone(CanonicalSpeakers)
	if showAllSpeakers {
		speakers = append(speakers, extraSpeakers(in)...)
	}

	table := Table{Speakers: speakers, Rows: make([]Row, 0, len(RowLabels))}
	table.Rows = append(table.Rows,
		perSpeaker(RowSpeechData, speakers, func(id string) string {
			rec, ok := in.Records[id]
			if !ok {
				return fmt.Sprintf("Length: %s\nTime: %s", NotAvailable, NotAvailable)
			}
			return fmt.Sprintf("Length: %d\nTime: %s", rec.WordCount, FormatNumber(rec.Duration))
		}),
		perSpeaker(RowSpeakingSpeed, speakers, func(id string) string {
			wpm, ok := in.Speeds[id]
			if !ok {
				return NotAvailable
			}
			return FormatNumber(wpm)
		}),
		callLevel(RowPII, speakers, "Detected: "+boolOrNA(in.PII != nil, func() bool { return in.PII.Detected })),
		callLevel(RowProfanity, speakers, "Detected: "+boolOrNA(in.Profanity != nil, func() bool { return in.Profanity.Detected })),
		callLevel(RowRequiredPhrases, speakers, phrasesValue(in.Phrases)),
		callLevel(RowSentiment, speakers, sentimentValue(in.Sentiment)),
	)
	return table
}

// Columns returns the header row.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.Speakers)+1)
	cols = append(cols, firstColumn)
	for i := range t.Speakers {
		cols = append(cols, "Speaker "+strconv.Itoa(i+1))
	}
	return cols
}

// Cells returns the rows as display strings in column order.
func (t Table) Cells() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		line := make([]string, 0, len(t.Speakers)+1)
		line = append(line, row.Label)
		for _, id := range t.Speakers {
			value, ok := row.Values[id]
			if !ok {
				value = NotAvailable
			}
			line = append(line, value)
		}
		out = append(out, line)
	}
	return out
}

// Row returns the row with the given label.
func (t Table) Row(label string) (Row, bool) {
	for _, row := range t.Rows {
		if row.Label == label {
			return row, true
		}
	}
	return Row{}, false
}

type wireTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// MarshalJSON emits the columns/rows shape consumed by the dashboard.
func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTable{Columns: t.Columns(), Rows: t.Cells()})
}

// UnmarshalJSON reads the wire shape back. Speaker columns map to
// SPEAKER_00, SPEAKER_01, ... by position.
func (t *Table) UnmarshalJSON(data []byte) error {
	var wire wireTable
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Columns) == 0 || wire.Columns[0] != firstColumn {
		return fmt.Errorf("summary table: unexpected columns %v", wire.Columns)
	}
	speakers := make([]string, 0, len(wire.Columns)-1)
	for i := range wire.Columns[1:] {
		speakers = append(speakers, fmt.Sprintf("SPEAKER_%02d", i))
	}
	rows := make([]Row, 0, len(wire.Rows))
	for _, cells := range wire.Rows {
		if len(cells) != len(wire.Columns) {
			return fmt.Errorf("summary table: row has %d cells, want %d", len(cells), len(wire.Columns))
		}
		row := Row{Label: cells[0], Values: make(map[string]string, len(speakers))}
		for i, id := range speakers {
			row.Values[id] = cells[i+1]
		}
		rows = append(rows, row)
	}
	t.Speakers = speakers
	t.Rows = rows
	return nil
}

// FormatNumber rounds to two decimals and always keeps one ("120.0", "7.25").
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	s := strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func perSpeaker(label string, speakers []string, value func(id string) string) Row {
	row := Row{Label: label, Values: make(map[string]string, len(speakers))}
	for _, id := range speakers {
		row.Values[id] = value(id)
	}
	return row
}

// callLevel repeats a call-wide value in every speaker column.
func callLevel(label string, speakers []string, value string) Row {
	return perSpeaker(label, speakers, func(string) string { return value })
}

func boolOrNA(present bool, value func() bool) string {
	if !present {
		return NotAvailable
	}
	return strconv.FormatBool(value())
}

func phrasesValue(p *detect.PhrasesResult) string {
	if p == nil {
		return fmt.Sprintf("Present: %s\nPhrases: %s", NotAvailable, NotAvailable)
	}
	phrases := "none"
	if len(p.Phrases) > 0 {
		phrases = strings.Join(p.Phrases, ", ")
	}
	return fmt.Sprintf("Present: %t\nPhrases: %s", p.Present, phrases)
}

func sentimentValue(s *detect.SentimentResult) string {
	if s == nil {
		return fmt.Sprintf("Polarity: %s\nSubjectivity: %s\nOverall: %s", NotAvailable, NotAvailable, NotAvailable)
	}
	return fmt.Sprintf("Polarity: %s\nSubjectivity: %s\nOverall: %s",
		FormatNumber(s.Polarity), FormatNumber(s.Subjectivity), s.Overall)
}

func extraSpeakers(in Inputs) []string {
	seen := make(map[string]struct{})
	for id := range in.Records {
		seen[id] = struct{}{}
	}
	for id := range in.Speeds {
		seen[id] = struct{}{}
	}
	for _, id := range CanonicalSpeakers {
		delete(seen, id)
	}
	extra := make([]string, 0, len(seen))
	for id := range seen {
		extra = append(extra, id)
	}
	slices.Sort(extra)
	return extra
}
