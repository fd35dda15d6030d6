package transcription

import (
	"strings"
	"unicode/utf8"
)

// Validate reports whether a provider transcript is worth keeping. Absent,
// blank and single-character text is rejected, as is text without a single
// ASCII letter or digit. Such output is far more often produced by silent or
// near-silent audio than by a real utterance.
func Validate(text *string) bool {
	if text == nil {
		return false
	}
	return ValidText(*text)
}

// ValidText is Validate for a transcript known to be present.
func ValidText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if utf8.RuneCountInString(trimmed) == 1 {
		return false
	}
	return hasASCIIAlnum(trimmed)
}

func hasASCIIAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			return true
		}
	}
	return false
}
