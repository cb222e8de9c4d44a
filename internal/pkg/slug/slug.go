// Package slug normalizes URL path segments for posts and categories.
package slug

import (
	"strings"
	"unicode"
)

// Make lowercases s, turns whitespace and separators into single hyphens and
// drops everything that is not a letter, digit or hyphen. Leading and
// trailing hyphens are trimmed, so the result may be empty.
func Make(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || r == '.' || r == '/' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
