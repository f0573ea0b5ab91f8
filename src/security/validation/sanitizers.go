package validation

import (
	"strings"
	"unicode"
)

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}

// CleanFreeText trims and strips free-form user input (descriptions,
// categories) before it is persisted or echoed back.
func CleanFreeText(s string) string {
	return strings.TrimSpace(StripUnprintable(s))
}
