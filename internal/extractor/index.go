package extractor

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"sidebyside-backend/internal/catalog"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var indexRegexes = map[model.Product]*regexp.Regexp{
	model.Trino:     regexp.MustCompile(`^release-(\d+)\.html$`),
	model.Starburst: regexp.MustCompile(`^release-(\d+(?:-[a-z]+)?(?:\.\d+)?)\.html$`),
}

// IndexEntry is a version linked from a product's release index page.
type IndexEntry struct {
	Label string
	URL   string
}

// ParseIndex lists every release linked from an index page, oldest first.
// Relative links are resolved against base, the URL of the index page.
func ParseIndex(ctx context.Context, product model.Product, doc string, base *url.URL) ([]IndexEntry, error) {
	re, ok := indexRegexes[product]
	if !ok {
		return nil, fmt.Errorf("no index pattern for product %q", product)
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}

	byLabel := map[string]IndexEntry{}
	labels := map[string]catalog.Label{}
	for _, anchor := range htmlutil.GetAnchors(ctx, base, parsed.Find("a[href]")) {
		link := *anchor.Url
		link.Fragment = ""
		link.RawQuery = ""

		match := re.FindStringSubmatch(path.Base(link.Path))
		if match == nil {
			continue
		}
		label, err := catalog.ParseLabel(match[1])
		if err != nil {
			continue
		}
		if _, exists := byLabel[label.Raw]; exists {
			continue
		}
		byLabel[label.Raw] = IndexEntry{Label: label.Raw, URL: link.String()}
		labels[label.Raw] = label
	}

	out := make([]IndexEntry, 0, len(byLabel))
	for _, entry := range byLabel {
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b IndexEntry) int {
		return catalog.CompareLabels(labels[a.Label], labels[b.Label])
	})
	return out, nil
}
