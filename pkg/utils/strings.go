package utils

import "strings"

// TruncateRunes shortens s to at most max runes.
// Counting runes keeps multi-byte previews (emoji, accented text) intact.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// NormalizeKey lowercases and trims a string for use as a case-insensitive map key
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
