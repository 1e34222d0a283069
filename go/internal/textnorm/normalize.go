// Package textnorm canonicalizes player input so answers can be compared and
// checked against a round letter regardless of case, accents or punctuation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningDiacritics is the Combining Diacritical Marks block (U+0300..U+036F).
var combiningDiacritics = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// Normalize returns the canonical form of s: NFD decomposed with diacritics
// removed, lower-cased, trimmed, restricted to [a-z0-9_] with runs of
// whitespace and hyphens collapsed to a single underscore.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacritics)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.TrimSpace(strings.ToLower(stripped))

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSep := false
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_', r == '-', unicode.IsSpace(r):
			pendingSep = true
		}
	}
	return b.String()
}

// StartsWithLetter reports whether the normalized word is non-empty and
// begins with the normalized letter.
func StartsWithLetter(word, letter string) bool {
	n := Normalize(word)
	l := Normalize(letter)
	if n == "" || l == "" {
		return false
	}
	return strings.HasPrefix(n, l)
}
