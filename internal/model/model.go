package model

import (
	"fmt"
	"strings"
	"time"
)

// Product is a distribution whose release notes are tracked.
type Product string

const (
	Trino     Product = "trino"
	Starburst Product = "starburst"
)

// Products returns every supported product, in display order.
func Products() []Product {
	return []Product{Trino, Starburst}
}

func (p Product) DisplayName() string {
	switch p {
	case Trino:
		return "Trino"
	case Starburst:
		return "Starburst Enterprise"
	}
	return string(p)
}

func (p Product) Valid() bool {
	for _, known := range Products() {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProduct resolves a user supplied product name, case insensitive.
func ParseProduct(raw string) (Product, error) {
	p := Product(strings.ToLower(strings.TrimSpace(raw)))
	if p.Valid() {
		return p, nil
	}
	return "", &ValidationError{
		Field:      "product",
		Value:      raw,
		Reason:     "unknown product",
		Suggestion: fmt.Sprintf("one of %s, %s", Trino, Starburst),
	}
}

// Version is a single release of a product. Versions are totally ordered
// within a product by their label, SequenceIndex is the dense 1-based rank
// of the version in that order and is only set on catalog listings.
type Version struct {
	Product       Product
	Label         string
	SequenceIndex int
	ReleaseDate   *time.Time
	URL           string
	ScrapedAt     *time.Time
}

// Scraped reports if the version's release notes have been stored.
func (v Version) Scraped() bool {
	return v.ScrapedAt != nil
}

func (v Version) String() string {
	return fmt.Sprintf("%s %s", v.Product, v.Label)
}

// GeneralConnector is the connector of every change that no classifier rule
// matched.
const GeneralConnector = "general"

// Change is one atomic release-note item. A change is uniquely identified by
// (Product, Version, Text).
type Change struct {
	ID           int64
	Product      Product
	Version      string
	Position     int
	Connector    string
	Section      string
	Text         string
	IsBreaking   bool
	IssueNumber  string
	SourceAnchor string
}

type SectionKind int

const (
	SectionRegular SectionKind = iota
	SectionBreaking
	// SectionTitle is the implicit section before the first heading below
	// the page title.
	SectionTitle
)

func (k SectionKind) String() string {
	switch k {
	case SectionBreaking:
		return "breaking"
	case SectionTitle:
		return "title"
	}
	return "regular"
}

// ParsedFragment is one candidate change extracted from a release page,
// before classification.
type ParsedFragment struct {
	Text         string
	Section      string
	SectionKind  SectionKind
	Anchor       string
	IssueNumber  string
	BreakingHint bool
}

// Breaking reports if the fragment is marked breaking, either by its
// section or by an inline marker.
func (f ParsedFragment) Breaking() bool {
	return f.SectionKind == SectionBreaking || f.BreakingHint
}

// ParseWarning records a part of a release page that could not be
// interpreted. Warnings never fail a scrape.
type ParseWarning struct {
	Product Product
	Version string
	Section string
	Reason  string
}

func (w ParseWarning) String() string {
	location := fmt.Sprintf("%s %s", w.Product, w.Version)
	if w.Section != "" {
		location = fmt.Sprintf("%s (%s)", location, w.Section)
	}
	return fmt.Sprintf("%s: %s", location, w.Reason)
}
