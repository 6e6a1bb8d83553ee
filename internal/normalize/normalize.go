// Package normalize provides text canonicalization shared by the dedup
// engine, the store, the source backends, and the exporters. Matching
// decisions are only stable if every producer normalizes identically.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var doiPrefixRE = regexp.MustCompile(`^https?://(dx\.)?doi\.org/`)

// stripMarks removes combining marks after NFKD decomposition, so
// accented characters compare equal to their base forms.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// DOI canonicalizes a DOI: lowercase, trimmed, resolver URL prefix
// removed. Returns "" for empty input.
func DOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	return doiPrefixRE.ReplaceAllString(doi, "")
}

// Title canonicalizes a title for comparison: casefolded, diacritics
// stripped, punctuation removed, whitespace collapsed.
func Title(title string) string {
	text := strings.ToLower(strings.TrimSpace(title))
	if folded, _, err := transform.String(stripMarks, text); err == nil {
		text = folded
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SplitName splits an author name into (given, family) parts, assuming
// "Given [Middle] Family" ordering as returned by the upstream catalogs.
// Single-word names are treated as a bare family name.
func SplitName(name string) (given, family string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// Surname extracts the lowercased family name from an author name, or
// "" if the name is blank.
func Surname(name string) string {
	_, family := SplitName(name)
	return strings.ToLower(family)
}
