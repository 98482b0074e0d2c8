// Package normalize canonicalizes the heterogeneous phone identifiers used by
// the messaging gateway and the persisted message log. Gateway chat IDs carry
// JID-style suffix tags (user, group, broadcast, legacy, lid) while the log and
// the lead registry store bare or standardized numbers; every comparison in the
// roster goes through Normalize so that all spellings of the same contact
// collapse onto one key.
package normalize

import "strings"

const (
	// StandardSuffix is the canonical tag appended whenever a phone is
	// persisted or compared in standardized form.
	StandardSuffix = "@s.whatsapp.net"

	// CountryPrefix is the domestic country code used by merge tie-breaks.
	CountryPrefix = "55"
)

// knownSuffixes are the gateway ID tags stripped during normalization.
// Order matters only for readability; each entry is matched anywhere in the
// string, not just as a trailing exact suffix.
var knownSuffixes = []string{
	"@s.whatsapp.net",
	"@c.us",
	"@g.us",
	"@broadcast",
	"@lid",
}

// Normalize strips every known suffix tag from raw and trims whitespace,
// returning the bare identifier string. Idempotent: Normalize(Normalize(x))
// == Normalize(x). Two raw identifiers normalizing to the same string are the
// same contact; no other equivalence (country-code variants included) is
// assumed at this layer.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for _, suffix := range knownSuffixes {
		if i := strings.Index(s, suffix); i >= 0 {
			s = s[:i]
		}
	}
	// Gateway IDs occasionally carry a numeric-only host tag (e.g.
	// "5511999999999@123456"); treat it like any other suffix.
	if i := strings.IndexByte(s, '@'); i >= 0 && isDigits(s[i+1:]) {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Standardize returns the canonical storage form: the normalized identifier
// with the single standard suffix tag.
func Standardize(raw string) string {
	return Normalize(raw) + StandardSuffix
}

// BareDigits returns only the digit characters of the normalized identifier.
func BareDigits(raw string) string {
	var b strings.Builder
	for _, r := range Normalize(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LooksLikePhone reports whether s reads as a phone number rather than a
// human name: non-empty and composed solely of digits, '+', spaces, dashes
// and parentheses.
func LooksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return hasDigit
}

// HasCountryPrefix reports whether the bare digits of raw start with the
// domestic country code.
func HasCountryPrefix(raw string) bool {
	return strings.HasPrefix(BareDigits(raw), CountryPrefix)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
