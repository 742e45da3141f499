package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)
var nameSeparatorRegex = regexp.MustCompile(`[\s_-]+`)

// CollapseWhitespace drops non-printable runes, then trims and collapses
// every run of whitespace into a single space.
func CollapseWhitespace(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for _, c := range s {
		if unicode.IsSpace(c) {
			out.WriteRune(' ')
			continue
		}
		if unicode.IsPrint(c) {
			out.WriteRune(c)
		}
	}
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(out.String(), " "))
}

// NormalizeText is the comparison form of a change: lowercase, collapsed
// whitespace and no leading bullet or trailing period. Two changes with
// the same normalized text are considered the same change.
func NormalizeText(s string) string {
	s = strings.ToLower(CollapseWhitespace(s))
	s = strings.TrimLeft(s, "-*• ")
	s = strings.TrimRight(s, ". ")
	return s
}

// Fold is the unicode case folded form of s used for case insensitive
// matching, "ÉTAT" and "état" fold the same and so do "Größe" and "GRÖSSE".
func Fold(s string) string {
	return cases.Fold().String(s)
}

// NormalizeName lowercases a name and strips all whitespace, dashes and
// underscores from it, "TPC_DS" and "tpc-ds" both become "tpcds".
func NormalizeName(name string) string {
	return nameSeparatorRegex.ReplaceAllString(strings.ToLower(name), "")
}

// Slug turns a display name into its lowercase kebab form,
// "Delta Lake" becomes "delta-lake".
func Slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonSlugRegex.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

