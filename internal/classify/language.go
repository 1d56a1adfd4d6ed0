package classify

import "unicode"

// Language codes returned by DetectLanguage. This is a script-level
// heuristic, not full language identification: Devanagari is reported as
// Hindi, Latin as English.
const (
	LangHindi   = "hi"
	LangEnglish = "en"
	LangUnknown = "unknown"
)

// DetectLanguage classifies text by script. Any Devanagari code point wins
// over any Latin letter, which wins over unknown.
func DetectLanguage(text string) string {
	hasLatin := false

	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return LangHindi
		}
		if unicode.Is(unicode.Latin, r) {
			hasLatin = true
		}
	}

	if hasLatin {
		return LangEnglish
	}
	return LangUnknown
}
