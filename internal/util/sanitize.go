package util

import "strings"

const maxInputLength = 1000

// SanitizeInput trims whitespace, strips characters that could carry markup
// into stored fields, and caps the length.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'':
			return -1
		}
		return r
	}, s)
	if len(s) > maxInputLength {
		s = s[:maxInputLength]
	}
	return s
}
