package extractor

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sidebyside-backend/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	contents, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(contents)
}

func TestExtractTrino(t *testing.T) {
	result := New().Extract(readFixture(t, "trino-476.html"))

	require.Equal(t, "Release 476 (5 Jun 2025)", result.Title)
	require.NotNil(t, result.ReleaseDate)
	require.Equal(t, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), *result.ReleaseDate)
	require.Empty(t, result.Warnings)

	expected := []model.ParsedFragment{
		{
			Text:        "Add support for the ALTER MATERIALIZED VIEW ... SET AUTHORIZATION statement. (#25001)",
			Section:     "General",
			Anchor:      "general",
			IssueNumber: "25001",
		},
		{
			Text:         "⚠ Breaking change: Remove the deprecated legacy.table-functions property. (#25002)",
			Section:      "General",
			Anchor:       "general",
			IssueNumber:  "25002",
			BreakingHint: true,
		},
		{
			Text:    "Improve performance of queries with large IN lists. Most noticeable for lists with thousands of values.",
			Section: "General",
			Anchor:  "general",
		},
		{
			Text:        "Fix incorrect access control checks for SHOW GRANTS. (#25010)",
			Section:     "Security",
			Anchor:      "security",
			IssueNumber: "25010",
		},
		{
			Text:        "Add support for reading Hive views from the Iceberg catalog. (#25020)",
			Section:     "Iceberg connector",
			Anchor:      "iceberg-connector",
			IssueNumber: "25020",
		},
		{
			Text:    "Fix failure when reading tables with equality deletes.",
			Section: "Iceberg connector",
			Anchor:  "iceberg-connector",
		},
		{
			Text:         "Breaking change: Require hive.metastore.uri to be set.",
			Section:      "Hive connector",
			Anchor:       "hive-connector",
			BreakingHint: true,
		},
		{
			Text:    "Remove deprecated ConnectorMetadata.getTableHandle method.",
			Section: "SPI",
			Anchor:  "spi",
		},
	}

	if diff := cmp.Diff(expected, result.Fragments); diff != "" {
		t.Fatal(diff)
	}
}

func TestExtractStarburst(t *testing.T) {
	result := New().Extract(readFixture(t, "starburst-476-e.html"))

	require.Equal(t, "Starburst Enterprise 476-e LTS", result.Title)
	require.NotNil(t, result.ReleaseDate)
	require.Equal(t, time.Date(2025, time.June, 18, 0, 0, 0, 0, time.UTC), *result.ReleaseDate)

	expected := []model.ParsedFragment{
		{
			Text:        "The Delta Lake connector no longer supports reading tables with column mapping mode id.",
			Section:     "Breaking changes",
			SectionKind: model.SectionBreaking,
			Anchor:      "breaking-changes",
		},
		{
			Text:    "Added support for Starburst Warp Speed index caching on Hive tables.",
			Section: "General",
			Anchor:  "general",
		},
		{
			Text:    "Fixed an issue with Security insights.",
			Section: "General",
			Anchor:  "general",
		},
		{
			Text:    "Improved performance of bulk inserts.",
			Section: "SQL Server connector",
			Anchor:  "sql-server-connector",
		},
		{
			Text:    "Fixed query failures for MongoDB collections with mixed types.",
			Section: "476-e.1 changes",
			Anchor:  "476-e-1-changes",
		},
	}

	if diff := cmp.Diff(expected, result.Fragments); diff != "" {
		t.Fatal(diff)
	}
}

func TestExtractBreakingInheritance(t *testing.T) {
	doc := `<html><body>
		<h1>Release 400</h1>
		<h2 id="breaking">Backward incompatible changes</h2>
		<h3 id="hive">Hive connector</h3>
		<ul><li>Remove the hive.legacy property.</li></ul>
		<h2 id="general">General</h2>
		<ul><li>Improve planner performance.</li></ul>
	</body></html>`

	result := New().Extract(doc)
	require.Len(t, result.Fragments, 2)
	require.Equal(t, model.SectionBreaking, result.Fragments[0].SectionKind)
	require.Equal(t, "Hive connector", result.Fragments[0].Section)
	require.Equal(t, "hive", result.Fragments[0].Anchor)
	require.True(t, result.Fragments[0].Breaking())
	require.Equal(t, model.SectionRegular, result.Fragments[1].SectionKind)
	require.False(t, result.Fragments[1].Breaking())
	require.Nil(t, result.ReleaseDate)
}

func TestExtractParagraphOnlyPage(t *testing.T) {
	doc := `<html><body><main>
		<p>Fix a rare deadlock in the coordinator.</p>
		<p>See the upgrade guide.</p>
	</main></body></html>`

	result := New().Extract(doc)
	require.Len(t, result.Fragments, 1)
	require.Equal(t, "Fix a rare deadlock in the coordinator.", result.Fragments[0].Text)
	require.Equal(t, model.SectionTitle, result.Fragments[0].SectionKind)
}

func TestExtractWarnings(t *testing.T) {
	testCases := []struct {
		name   string
		doc    string
		reason string
	}{
		{name: "empty", doc: "   \n", reason: "empty document"},
		{name: "no notes", doc: "<html><body><h1>Release 1</h1></body></html>", reason: "no release notes found"},
		{name: "short items", doc: "<ul><li>ok</li><li>-</li></ul>", reason: "no release notes found"},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			result := New().Extract(test.doc)
			require.Empty(t, result.Fragments)
			require.NotEmpty(t, result.Warnings)
			require.Equal(t, test.reason, result.Warnings[len(result.Warnings)-1].Reason)
		})
	}
}

func TestExtractMinLength(t *testing.T) {
	doc := `<ul><li>Add a thing.</li><li>Fix</li></ul>`

	require.Len(t, New().Extract(doc).Fragments, 2)
	require.Len(t, New(WithMinLength(5)).Extract(doc).Fragments, 1)
}

func TestParseReleaseDate(t *testing.T) {
	testCases := []struct {
		text     string
		expected string
	}{
		{text: "Release 476 (5 Jun 2025)", expected: "2025-06-05"},
		{text: "Release 470 (5 February 2025)", expected: "2025-02-05"},
		{text: "Released: March 3, 2024", expected: "2024-03-03"},
		{text: "Release date: 2024-11-20", expected: "2024-11-20"},
		{text: "Release 440 (8 Sept 2024)", expected: "2024-09-08"},
		{text: "Release 476", expected: ""},
		{text: "(40 Foo 2025)", expected: ""},
	}

	for _, test := range testCases {
		date := ParseReleaseDate(test.text)
		if test.expected == "" {
			require.Nil(t, date, test.text)
			continue
		}
		require.NotNil(t, date, test.text)
		require.Equal(t, test.expected, date.Format("2006-01-02"), test.text)
	}
}

func TestParseIndex(t *testing.T) {
	testCases := []struct {
		product  model.Product
		fixture  string
		base     string
		expected []IndexEntry
	}{
		{
			product: model.Trino,
			fixture: "trino-index.html",
			base:    "https://trino.io/docs/current/release.html",
			expected: []IndexEntry{
				{Label: "474", URL: "https://trino.io/docs/current/release/release-474.html"},
				{Label: "475", URL: "https://trino.io/docs/current/release/release-475.html"},
				{Label: "476", URL: "https://trino.io/docs/current/release/release-476.html"},
			},
		},
		{
			product: model.Starburst,
			fixture: "starburst-index.html",
			base:    "https://docs.starburst.io/latest/release.html",
			expected: []IndexEntry{
				{Label: "468-e", URL: "https://docs.starburst.io/latest/release/release-468-e.html"},
				{Label: "475-e", URL: "https://docs.starburst.io/latest/release/release-475-e.html"},
				{Label: "476-e", URL: "https://docs.starburst.io/latest/release/release-476-e.html"},
			},
		},
	}

	for _, test := range testCases {
		base, err := url.Parse(test.base)
		require.NoError(t, err)

		entries, err := ParseIndex(context.Background(), test.product, readFixture(t, test.fixture), base)
		require.NoError(t, err)
		if diff := cmp.Diff(test.expected, entries); diff != "" {
			t.Fatal(diff)
		}
	}
}

func TestParseIndexUnknownProduct(t *testing.T) {
	_, err := ParseIndex(context.Background(), model.Product("presto"), "<html></html>", nil)
	require.Error(t, err)
}
