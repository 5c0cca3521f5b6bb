// Package slug holds the string and geometry predicates shared by scanning
// and export validation.
package slug

import (
	"regexp"
	"strings"
	"unicode"
)

// Pattern is the shape every quest key and questline id must have.
const Pattern = `^[a-z0-9-]+$`

var (
	keyRe        = regexp.MustCompile(Pattern)
	disallowedRe = regexp.MustCompile(`[^a-z0-9-]`)
)

// KeyPattern returns the compiled quest key pattern.
func KeyPattern() *regexp.Regexp {
	return keyRe
}

// Slugify lower-cases and trims s, joins whitespace runs with a single hyphen
// and drops every character outside [a-z0-9-].
func Slugify(s string) string {
	joined := strings.Join(strings.Fields(strings.ToLower(s)), "-")
	return disallowedRe.ReplaceAllString(joined, "")
}

// ValidKey reports whether s matches Pattern.
func ValidKey(s string) bool {
	return keyRe.MatchString(s)
}

// HasDoubleWhitespace reports whether s contains two or more consecutive
// whitespace characters.
func HasDoubleWhitespace(s string) bool {
	prev := false
	for _, r := range s {
		ws := unicode.IsSpace(r)
		if ws && prev {
			return true
		}
		prev = ws
	}
	return false
}

// NormalizeKey is the identity used for duplicate detection.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StripPrefix removes prefix from the trimmed name, ignoring case.
// The name is returned trimmed but otherwise unchanged when it does not
// carry the prefix.
func StripPrefix(name, prefix string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return trimmed[len(prefix):]
	}
	return trimmed
}

// HasPrefixFold reports whether the trimmed, lower-cased name starts with
// the lower-cased prefix.
func HasPrefixFold(name, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), strings.ToLower(prefix))
}

// Clamp limits val to [lo, hi].
func Clamp(val, lo, hi float64) float64 {
	return max(lo, min(hi, val))
}

// IsInsideBounds reports whether the rectangle (x, y, w, h) lies entirely
// inside a parent of size parentW x parentH anchored at the origin.
func IsInsideBounds(x, y, w, h, parentW, parentH float64) bool {
	return x >= 0 && y >= 0 && x+w <= parentW && y+h <= parentH
}
