package detect

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Sentiment labels derived from polarity.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// SentimentResult is the lexicon score of a text.
type SentimentResult struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	Overall      string  `json:"overall_sentiment"`
}

// WordScore is the lexicon entry for one word.
type WordScore struct {
	Polarity     float64 `yaml:"polarity"`
	Subjectivity float64 `yaml:"subjectivity"`
}

// Lexicon scores text by averaging the entries of the words it contains.
type Lexicon struct {
	Words          map[string]WordScore `yaml:"words"`
	Negations      []string             `yaml:"negations"`
	NegationFactor float64              `yaml:"negation_factor"`
	Intensifiers   map[string]float64   `yaml:"intensifiers"`

	negations map[string]struct{}
}

// LoadLexicon reads a YAML lexicon from path, or the embedded default when
// path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return decodeLexicon(bytes.NewReader(defaultLexicon))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sentiment lexicon: %w", err)
	}
	defer f.Close()
	lex, err := decodeLexicon(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lex, nil
}

func decodeLexicon(r io.Reader) (*Lexicon, error) {
	var lex Lexicon
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("decode sentiment lexicon: %w", err)
	}
	if len(lex.Words) == 0 {
		return nil, fmt.Errorf("sentiment lexicon has no words")
	}
	if lex.NegationFactor == 0 {
		lex.NegationFactor = -0.5
	}
	lex.negations = make(map[string]struct{}, len(lex.Negations))
	for _, n := range lex.Negations {
		lex.negations[n] = struct{}{}
	}
	return &lex, nil
}

// Score computes mean polarity and subjectivity over lexicon words. A
// preceding intensifier scales a word; a negation within the two previous
// tokens flips it by the negation factor.
func (l *Lexicon) Score(text string) SentimentResult {
	tokens := tokenize(text)
	var polarity, subjectivity float64
	matched := 0
	for i, token := range tokens {
		entry, ok := l.Words[token]
		if !ok {
			continue
		}
		p, s := entry.Polarity, entry.Subjectivity
		if i > 0 {
			if factor, ok := l.Intensifiers[tokens[i-1]]; ok {
				p *= factor
				s = math.Min(1, s*factor)
			}
		}
		if l.negated(tokens, i) {
			p *= l.NegationFactor
		}
		polarity += clamp(p, -1, 1)
		subjectivity += s
		matched++
	}
	if matched == 0 {
		return SentimentResult{Overall: SentimentNeutral}
	}
	result := SentimentResult{
		Polarity:     round(polarity / float64(matched)),
		Subjectivity: round(subjectivity / float64(matched)),
	}
	switch {
	case result.Polarity > 0:
		result.Overall = SentimentPositive
	case result.Polarity < 0:
		result.Overall = SentimentNegative
	default:
		result.Overall = SentimentNeutral
	}
	return result
}

func (l *Lexicon) negated(tokens []string, idx int) bool {
	for j := idx - 1; j >= 0 && j >= idx-2; j-- {
		if _, ok := l.negations[tokens[j]]; ok {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
