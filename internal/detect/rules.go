package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"callsight/internal/config"
)

const piiMask = "****"

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

type phrase struct {
	text string
	re   *regexp.Regexp
	// words is set for plain-word phrases that may be fuzzily matched.
	words []string
}

type category struct {
	name     string
	keywords []*regexp.Regexp
}

// Rules is the immutable, compiled detector configuration.
type Rules struct {
	pii            []namedPattern
	sensitive      []string
	profanity      *regexp.Regexp
	phrases        []phrase
	fuzzyThreshold float64
	categories     []category
	lexicon        *Lexicon
}

// Compile builds Rules from the detectors configuration section.
func Compile(cfg config.Detectors) (*Rules, error) {
	r := &Rules{
		sensitive:      append([]string(nil), cfg.SensitiveWords...),
		fuzzyThreshold: cfg.FuzzyPhraseThreshold,
	}

	for _, name := range cfg.PIIPatternNames() {
		re, err := regexp.Compile(cfg.PIIPatterns[name])
		if err != nil {
			return nil, fmt.Errorf("compile pii pattern %s: %w", name, err)
		}
		r.pii = append(r.pii, namedPattern{name: name, re: re})
	}

	if len(cfg.ProfanityWords) > 0 {
		quoted := make([]string, 0, len(cfg.ProfanityWords))
		for _, word := range cfg.ProfanityWords {
			quoted = append(quoted, regexp.QuoteMeta(word))
		}
		r.profanity = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}

	for _, text := range cfg.RequiredPhrases {
		re, err := regexp.Compile("(?i)" + text)
		if err != nil {
			return nil, fmt.Errorf("compile required phrase %q: %w", text, err)
		}
		p := phrase{text: text, re: re}
		if regexp.QuoteMeta(text) == text {
			p.words = tokenize(text)
		}
		r.phrases = append(r.phrases, p)
	}

	for _, name := range cfg.CategoryNames() {
		c := category{name: name}
		for _, keyword := range cfg.Categories[name] {
			c.keywords = append(c.keywords, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(keyword)+`\b`))
		}
		r.categories = append(r.categories, c)
	}

	lexicon, err := LoadLexicon(cfg.SentimentLexicon)
	if err != nil {
		return nil, err
	}
	r.lexicon = lexicon
	return r, nil
}

// PIIResult reports whether personal data was found and the masked text.
type PIIResult struct {
	Detected   bool   `json:"detected"`
	MaskedText string `json:"masked_text"`
}

// DetectPII masks every PII pattern match with "****". Sensitive words mark
// the text as containing PII without being masked.
func (r *Rules) DetectPII(ctx context.Context, text string) (PIIResult, error) {
	if err := ctx.Err(); err != nil {
		return PIIResult{}, err
	}
	result := PIIResult{MaskedText: text}
	for _, p := range r.pii {
		if p.re.MatchString(text) {
			result.Detected = true
			result.MaskedText = p.re.ReplaceAllString(result.MaskedText, piiMask)
		}
	}
	lower := strings.ToLower(text)
	for _, word := range r.sensitive {
		if strings.Contains(lower, word) {
			result.Detected = true
			break
		}
	}
	return result, nil
}

// ProfanityResult reports whether profanity was found and the censored text.
type ProfanityResult struct {
	Detected     bool   `json:"detected"`
	CensoredText string `json:"censored_text"`
}

// CensorProfanity replaces each listed word with asterisks of the same length.
func (r *Rules) CensorProfanity(ctx context.Context, text string) (ProfanityResult, error) {
	if err := ctx.Err(); err != nil {
		return ProfanityResult{}, err
	}
	if r.profanity == nil {
		return ProfanityResult{CensoredText: text}, nil
	}
	detected := false
	censored := r.profanity.ReplaceAllStringFunc(text, func(match string) string {
		detected = true
		return strings.Repeat("*", len([]rune(match)))
	})
	return ProfanityResult{Detected: detected, CensoredText: censored}, nil
}

// PhrasesResult lists the required phrases found in the text.
type PhrasesResult struct {
	Present bool     `json:"required_phrases_present"`
	Phrases []string `json:"present_phrases"`
}

// CheckRequiredPhrases matches every configured phrase case-insensitively.
// Plain-word phrases fall back to fuzzy matching when a threshold is set.
func (r *Rules) CheckRequiredPhrases(ctx context.Context, text string) (PhrasesResult, error) {
	if err := ctx.Err(); err != nil {
		return PhrasesResult{}, err
	}
	result := PhrasesResult{Phrases: []string{}}
	var tokens []string
	for _, p := range r.phrases {
		found := p.re.MatchString(text)
		if !found && r.fuzzyThreshold > 0 && len(p.words) > 0 {
			if tokens == nil {
				tokens = tokenize(text)
			}
			found = fuzzyContains(tokens, p.words, r.fuzzyThreshold)
		}
		if found {
			result.Phrases = append(result.Phrases, p.text)
		}
	}
	result.Present = len(result.Phrases) > 0
	return result, nil
}

// CategoryResult names the best matching call category.
type CategoryResult struct {
	Category string `json:"category"`
}

// UnknownCategory is reported when no keyword matches.
const UnknownCategory = "Unknown"

// Categorize counts matching keywords per category. The highest count wins;
// categories are evaluated in name order so ties resolve alphabetically.
func (r *Rules) Categorize(ctx context.Context, text string) (CategoryResult, error) {
	if err := ctx.Err(); err != nil {
		return CategoryResult{}, err
	}
	best, bestCount := UnknownCategory, 0
	for _, c := range r.categories {
		count := 0
		for _, kw := range c.keywords {
			if kw.MatchString(text) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = c.name, count
		}
	}
	return CategoryResult{Category: best}, nil
}

// AnalyzeSentiment scores the text against the sentiment lexicon.
func (r *Rules) AnalyzeSentiment(ctx context.Context, text string) (SentimentResult, error) {
	if err := ctx.Err(); err != nil {
		return SentimentResult{}, err
	}
	return r.lexicon.Score(text), nil
}

// CategoryNames returns the compiled category names in evaluation order.
func (r *Rules) CategoryNames() []string {
	names := make([]string, 0, len(r.categories))
	for _, c := range r.categories {
		names = append(names, c.name)
	}
	return names
}
