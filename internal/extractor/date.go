package extractor

import (
	"regexp"
	"strings"
	"time"
)

var dateRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\((\d{1,2} [A-Za-z]+,? \d{4})\)`),
	regexp.MustCompile(`(?i)release(?:d| date)[:\s]+([A-Za-z]+ \d{1,2},? \d{4}|\d{1,2} [A-Za-z]+ \d{4}|\d{4}-\d{2}-\d{2})`),
}

var dateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2006-01-02",
}

// ParseReleaseDate finds the first release date in text, as in
// "Release 476 (5 Jun 2025)" or "Released: June 5, 2025".
func ParseReleaseDate(text string) *time.Time {
	for _, re := range dateRegexes {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			if date, ok := parseDate(match[1]); ok {
				return &date
			}
		}
	}
	return nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.Join(strings.Fields(raw), " ")
	// "Sept" is common but unknown to time.Parse
	raw = strings.Replace(raw, "Sept ", "Sep ", 1)
	for _, layout := range dateLayouts {
		date, err := time.Parse(layout, raw)
		if err == nil {
			return date.UTC(), true
		}
	}
	return time.Time{}, false
}
