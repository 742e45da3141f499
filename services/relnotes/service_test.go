package relnotes

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/testutil"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.July, 1, 9, 30, 0, 0, time.UTC)

func releasePage(title string, sections map[string][]string) string {
	var body strings.Builder
	for _, heading := range []string{"General", "Hive connector", "PostgreSQL connector", "Delta Lake connector"} {
		items, ok := sections[heading]
		if !ok {
			continue
		}
		fmt.Fprintf(&body, "<h2>%s</h2><ul>", heading)
		for _, item := range items {
			fmt.Fprintf(&body, "<li>%s</li>", item)
		}
		body.WriteString("</ul>")
	}
	return fmt.Sprintf(`<html><body><div role="main"><h1>%s</h1>%s</div></body></html>`, title, body.String())
}

func indexPage(labels ...string) string {
	var links strings.Builder
	for _, label := range labels {
		fmt.Fprintf(&links, `<li><a href="release/release-%s.html">Release %s</a></li>`, label, label)
	}
	return fmt.Sprintf(`<html><body><div role="main"><ul>%s</ul></div></body></html>`, links.String())
}

type harness struct {
	service  *Service
	fixture  *fetcher.FixtureFetcher
	searches []SearchEvent
	compares []ComparisonEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	res := testutil.SetupStore(t, testutil.StoreParams{Now: now})
	h := &harness{fixture: fetcher.NewFixtureFetcher()}
	h.fixture.
		Set(model.Trino, fetcher.Index, indexPage("474", "475", "476")).
		Set(model.Trino, "474", releasePage("Release 474 (21 Mar 2025)", map[string][]string{
			"General":        {"Add JSON table function."},
			"Hive connector": {"Fix reading ORC files."},
		})).
		Set(model.Trino, "475", releasePage("Release 475 (23 Apr 2025)", map[string][]string{
			"General":              {"Improve json_extract performance."},
			"PostgreSQL connector": {"Add support for the JSONB type."},
		})).
		Set(model.Trino, "476", releasePage("Release 476 (5 Jun 2025)", map[string][]string{
			"Delta Lake connector": {"Breaking change: Drop support for reader version 1."},
			"Hive connector":       {"Fix json decoding of nested maps."},
		})).
		Set(model.Starburst, fetcher.Index, indexPage("476-e", "476-e.1")).
		Set(model.Starburst, "476-e", releasePage("Release 476-e (10 Jun 2025)", map[string][]string{
			"General": {"Add support for JSON parsing in the warp speed cache."},
		})).
		Set(model.Starburst, "476-e.1", releasePage("Release 476-e.1 (20 Jun 2025)", map[string][]string{
			"General": {"Fix failure on empty tables."},
		}))

	h.service = NewService(res.Store, h.fixture, classifier.NewDefault(), res.Clock, res.Telemetry, Options{
		Concurrency: 2,
		Hooks: Hooks{
			OnSearch:     func(e SearchEvent) { h.searches = append(h.searches, e) },
			OnComparison: func(e ComparisonEvent) { h.compares = append(h.compares, e) },
		},
	})
	return h
}

func (h *harness) scrapeAll(t *testing.T) {
	t.Helper()
	summaries, err := h.service.ScrapeNew(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, summary := range summaries {
		require.Empty(t, summary.Failures)
	}
}

func TestScrapeNewAllProducts(t *testing.T) {
	h := newHarness(t)
	h.fixture.Fail(model.Starburst, fetcher.Index, &model.FetchError{Product: model.Starburst, Target: fetcher.Index, StatusCode: 502})

	summaries, err := h.service.ScrapeNew(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "starburst")
	var fetchErr *model.FetchError
	require.ErrorAs(t, err, &fetchErr)

	require.Len(t, summaries, 2)
	require.Equal(t, model.Trino, summaries[0].Product)
	require.Equal(t, "476", summaries[0].Latest)
	require.Len(t, summaries[0].Scraped, 3)
	require.Equal(t, 6, summaries[0].ChangesAdded)
}

func TestKnownVersions(t *testing.T) {
	h := newHarness(t)
	h.scrapeAll(t)
	ctx := context.Background()

	versions, err := h.service.KnownVersions(ctx, model.Starburst)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "476-e", versions[0].Label)
	require.Equal(t, 1, versions[0].SequenceIndex)
	require.Equal(t, "476-e.1", versions[1].Label)
	require.NotNil(t, versions[1].ReleaseDate)
	require.Equal(t, time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC), *versions[1].ReleaseDate)

	latest, err := h.service.Latest(ctx, model.Trino)
	require.NoError(t, err)
	require.Equal(t, "476", latest.Label)

	order, err := h.service.Compare(ctx, model.Trino, "476", "474")
	require.NoError(t, err)
	require.Equal(t, 1, order)

	_, err = h.service.Compare(ctx, model.Trino, "476", "480")
	var unknown *model.UnknownVersionError
	require.ErrorAs(t, err, &unknown)

	_, err = h.service.KnownVersions(ctx, model.Product("presto"))
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "product", validation.Field)
}

func TestKnownConnectors(t *testing.T) {
	h := newHarness(t)
	h.scrapeAll(t)
	ctx := context.Background()

	connectors, err := h.service.KnownConnectors(ctx, model.Trino)
	require.NoError(t, err)
	require.Equal(t, []string{"delta-lake", "general", "hive", "postgresql"}, connectors)

	connectors, err = h.service.KnownConnectors(ctx, model.Starburst)
	require.NoError(t, err)
	require.Equal(t, []string{"general"}, connectors)

	connectors, err = h.service.KnownConnectors(ctx, "")
	require.NoError(t, err)
	require.Len(t, connectors, 4)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	h.scrapeAll(t)
	ctx := context.Background()

	texts := func(changes []model.Change) []string {
		out := make([]string, len(changes))
		for i, c := range changes {
			out[i] = fmt.Sprintf("%s %s", c.Version, c.Text)
		}
		return out
	}

	changes, err := h.service.Search(ctx, SearchRequest{Keyword: "json", Product: model.Trino})
	require.NoError(t, err)
	require.Equal(t, []string{
		"476 Fix json decoding of nested maps.",
		"475 Improve json_extract performance.",
		"475 Add support for the JSONB type.",
		"474 Add JSON table function.",
	}, texts(changes))

	changes, err = h.service.Search(ctx, SearchRequest{Keyword: "  JSON ", Product: model.Trino, FromVersion: "475", ToVersion: "475"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"475 Improve json_extract performance.",
		"475 Add support for the JSONB type.",
	}, texts(changes))

	changes, err = h.service.Search(ctx, SearchRequest{Keyword: "json", Connector: "Postgres"})
	require.NoError(t, err)
	require.Equal(t, []string{"475 Add support for the JSONB type."}, texts(changes))

	changes, err = h.service.Search(ctx, SearchRequest{Keyword: "json", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, changes, 2)

	changes, err = h.service.Search(ctx, SearchRequest{Keyword: "nothing matches this"})
	require.NoError(t, err)
	require.Empty(t, changes)

	require.Len(t, h.searches, 5)
	require.Equal(t, SearchEvent{Keyword: "json", Connector: "postgresql", Results: 1, At: now}, h.searches[2])
}

func TestSearchValidation(t *testing.T) {
	testCases := []struct {
		name  string
		req   SearchRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "short keyword",
			req:  SearchRequest{Keyword: "ab"},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
				require.Equal(t, "keyword", validation.Field)
			},
		},
		{
			name: "padded short keyword",
			req:  SearchRequest{Keyword: "   ab   "},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
			},
		},
		{
			name: "range without product",
			req:  SearchRequest{Keyword: "json", FromVersion: "474"},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
				require.Equal(t, "product", validation.Field)
			},
		},
		{
			name: "unknown product",
			req:  SearchRequest{Keyword: "json", Product: model.Product("presto")},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
			},
		},
		{
			name: "unknown version",
			req:  SearchRequest{Keyword: "json", Product: model.Trino, ToVersion: "499"},
			check: func(t *testing.T, err error) {
				var unknown *model.UnknownVersionError
				require.ErrorAs(t, err, &unknown)
				require.Equal(t, "499", unknown.Label)
			},
		},
		{
			name: "reversed range",
			req:  SearchRequest{Keyword: "json", Product: model.Trino, FromVersion: "476", ToVersion: "474"},
			check: func(t *testing.T, err error) {
				var rangeErr *model.InvalidRangeError
				require.ErrorAs(t, err, &rangeErr)
			},
		},
		{
			name: "unknown connector",
			req:  SearchRequest{Keyword: "json", Connector: "hiv"},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
				require.Equal(t, "connector", validation.Field)
				require.Equal(t, "hive", validation.Suggestion)
			},
		},
		{
			name: "negative limit",
			req:  SearchRequest{Keyword: "json", Limit: -1},
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
				require.Equal(t, "limit", validation.Field)
			},
		},
	}

	h := newHarness(t)
	h.scrapeAll(t)
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := h.service.Search(context.Background(), test.req)
			require.Error(t, err)
			test.check(t, err)
		})
	}
	require.Empty(t, h.searches)
}

func TestDiff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// nothing scraped yet, discovery only knows the labels
	_, err := h.service.Discover(ctx, model.Trino)
	require.NoError(t, err)

	res, err := h.service.Diff(ctx, DiffRequest{Product: model.Trino, From: "474", To: "476"})
	require.NoError(t, err)
	require.Equal(t, []string{"475", "476"}, res.Scraped)
	require.Equal(t, 4, res.Summary.Total)
	require.Len(t, res.Breaking, 1)
	require.Equal(t, "delta-lake", res.Breaking[0].Connector)
	require.Equal(t, 0, h.fixture.Calls(model.Trino, "474"))

	res, err = h.service.Diff(ctx, DiffRequest{Product: model.Trino, From: "474", To: "476", Connector: "Delta Lake"})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	require.Equal(t, "delta-lake", res.Groups[0].Connector)

	require.Equal(t, []ComparisonEvent{
		{Product: model.Trino, From: "474", To: "476", Changes: 4, At: now},
		{Product: model.Trino, From: "474", To: "476", Connector: "delta-lake", Changes: 1, At: now},
	}, h.compares)

	_, err = h.service.Diff(ctx, DiffRequest{Product: model.Trino, From: "474", To: "476", Connector: "deltalakes"})
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "delta-lake", validation.Suggestion)

	_, err = h.service.Diff(ctx, DiffRequest{Product: model.Trino, From: "476", To: "474"})
	var rangeErr *model.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	require.Len(t, h.compares, 2)
}

func TestBackfillReleaseDates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.Discover(ctx, model.Trino)
	require.NoError(t, err)

	summary, err := h.service.BackfillReleaseDates(ctx, model.Trino)
	require.NoError(t, err)
	require.Equal(t, []string{"474", "475", "476"}, summary.Updated)

	versions, err := h.service.KnownVersions(ctx, model.Trino)
	require.NoError(t, err)
	for _, v := range versions {
		require.NotNil(t, v.ReleaseDate, v.Label)
		require.False(t, v.Scraped())
	}
}
