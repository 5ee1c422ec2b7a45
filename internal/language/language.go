package language

import (
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code2   string // ISO 639-1
	code3   string // ISO 639-2 primary
	alt3    string // ISO 639-2 bibliographic variant ("fre" vs "fra")
	display string
}

// languages lists the WhisperX languages most common on call recordings. Tags
// outside the table still resolve through x/text.
var languages = []entry{
	{"en", "eng", "", "English"},
	{"es", "spa", "", "Spanish"},
	{"fr", "fra", "fre", "French"},
	{"de", "deu", "ger", "German"},
	{"it", "ita", "", "Italian"},
	{"pt", "por", "", "Portuguese"},
	{"ja", "jpn", "", "Japanese"},
	{"ko", "kor", "", "Korean"},
	{"zh", "zho", "chi", "Chinese"},
	{"ru", "rus", "", "Russian"},
	{"ar", "ara", "", "Arabic"},
	{"hi", "hin", "", "Hindi"},
	{"nl", "nld", "dut", "Dutch"},
	{"pl", "pol", "", "Polish"},
	{"sv", "swe", "", "Swedish"},
	{"da", "dan", "", "Danish"},
	{"no", "nor", "", "Norwegian"},
	{"fi", "fin", "", "Finnish"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.code3] = e
		if e.alt3 != "" {
			m[e.alt3] = e
		}
		m[strings.ToLower(e.display)] = e
	}
	return m
}()

// Normalize reduces a language hint to its ISO 639-1 code. An empty hint
// stays empty so WhisperX auto-detects the language.
func Normalize(hint string) (string, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return "", nil
	}
	if e, ok := index[hint]; ok {
		return e.code2, nil
	}
	tag, err := xlanguage.Parse(hint)
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q", hint)
	}
	base, confidence := tag.Base()
	code := base.String()
	if confidence == xlanguage.No || len(code) != 2 {
		return "", fmt.Errorf("language %q has no two-letter code", hint)
	}
	return code, nil
}

// DisplayName returns the English name for a normalized code, or the code
// itself when no name is known.
func DisplayName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "auto-detect"
	}
	if e, ok := index[code]; ok {
		return e.display
	}
	if tag, err := xlanguage.Parse(code); err == nil {
		if name := display.English.Languages().Name(tag); name != "" {
			return name
		}
	}
	return code
}
