package catalog

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sidebyside-backend/internal/model"
)

// labels look like 476, 476-e or 476-e.2
var labelRegex = regexp.MustCompile(`^(\d+)(?:-([a-z]{1,8}))?(?:\.(\d+))?$`)

// Label is a parsed version label. Labels order numerically by Number, then
// by Suffix (no suffix first), then by Patch (no patch first).
type Label struct {
	Raw      string
	Number   int
	Suffix   string
	Patch    int
	HasPatch bool
}

func (l Label) String() string {
	return l.Raw
}

// ParseLabel validates and canonicalizes a version label.
func ParseLabel(raw string) (Label, error) {
	canonical := strings.ToLower(strings.TrimSpace(raw))
	match := labelRegex.FindStringSubmatch(canonical)
	if match == nil {
		return Label{}, &model.ValidationError{
			Field:      "version",
			Value:      raw,
			Reason:     "not a release label",
			Suggestion: "a label like 476 or 476-e",
		}
	}

	number, err := strconv.Atoi(match[1])
	if err != nil {
		return Label{}, &model.ValidationError{Field: "version", Value: raw, Reason: err.Error()}
	}
	out := Label{
		Raw:    canonical,
		Number: number,
		Suffix: match[2],
	}
	if match[3] != "" {
		patch, err := strconv.Atoi(match[3])
		if err != nil {
			return Label{}, &model.ValidationError{Field: "version", Value: raw, Reason: err.Error()}
		}
		out.Patch = patch
		out.HasPatch = true
	}
	return out, nil
}

// CompareLabels returns -1, 0 or 1 if a sorts before, equal to or after b.
func CompareLabels(a, b Label) int {
	if c := cmp.Compare(a.Number, b.Number); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Suffix, b.Suffix); c != 0 {
		return c
	}
	return cmp.Compare(a.patchRank(), b.patchRank())
}

func (l Label) patchRank() int {
	if !l.HasPatch {
		return 0
	}
	return l.Patch + 1
}

// Compare parses and compares two raw labels.
func Compare(a, b string) (int, error) {
	left, err := ParseLabel(a)
	if err != nil {
		return 0, err
	}
	right, err := ParseLabel(b)
	if err != nil {
		return 0, err
	}
	return CompareLabels(left, right), nil
}

// SortKey returns a string whose lexical order matches CompareLabels, so
// ordering can happen in SQL.
func SortKey(l Label) string {
	return fmt.Sprintf("%010d-%-8s-%06d", l.Number, l.Suffix, l.patchRank())
}

// SortKeyOf is SortKey for a raw label.
func SortKeyOf(raw string) (string, error) {
	l, err := ParseLabel(raw)
	if err != nil {
		return "", err
	}
	return SortKey(l), nil
}
