package detect

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// fuzzyContains slides a window the size of the phrase across tokens and
// reports whether any window is at least threshold similar (Jaro-Winkler),
// comparing both the spaced and the concatenated forms.
func fuzzyContains(tokens, phrase []string, threshold float64) bool {
	n := len(phrase)
	if n == 0 || len(tokens) < n {
		return false
	}
	target := strings.Join(phrase, " ")
	targetConcat := strings.Join(phrase, "")
	for i := 0; i+n <= len(tokens); i++ {
		window := tokens[i : i+n]
		if matchr.JaroWinkler(strings.Join(window, " "), target, false) >= threshold {
			return true
		}
		if n > 1 && matchr.JaroWinkler(strings.Join(window, ""), targetConcat, false) >= threshold {
			return true
		}
	}
	return false
}
