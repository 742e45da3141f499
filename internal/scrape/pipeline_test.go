package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/store"
	"sidebyside-backend/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var scrapeTime = time.Date(2025, time.June, 20, 12, 0, 0, 0, time.UTC)

func releasePage(label, date string, sections map[string][]string) string {
	body := ""
	for _, heading := range []string{"General", "Hive connector", "Iceberg connector"} {
		items, ok := sections[heading]
		if !ok {
			continue
		}
		body += fmt.Sprintf("<section id=%q><h2>%s</h2><ul>", heading, heading)
		for _, item := range items {
			body += "<li>" + item + "</li>"
		}
		body += "</ul></section>"
	}
	title := "Release " + label
	if date != "" {
		title += " (" + date + ")"
	}
	return fmt.Sprintf(`<html><body><div role="main"><section id="release"><h1>%s</h1>%s</section></div></body></html>`, title, body)
}

const trinoIndex = `<html><body><div role="main"><ul>
<li><a href="release/release-476.html">Release 476 (5 Jun 2025)</a></li>
<li><a href="release/release-475.html">Release 475 (23 Apr 2025)</a></li>
<li><a href="release/release-474.html">Release 474 (21 Mar 2025)</a></li>
</ul></div></body></html>`

type harness struct {
	pipeline *Pipeline
	fixture  *fetcher.FixtureFetcher
	store    *store.Store
	rec      *telemetry.Recorder
}

func newHarness(t *testing.T) harness {
	t.Helper()

	res := testutil.SetupStore(t, testutil.StoreParams{Now: scrapeTime})
	fixture := fetcher.NewFixtureFetcher()
	pipeline := NewPipeline(fixture, fetcher.DefaultSources(), res.Store, classifier.NewDefault(), res.Telemetry, Options{Concurrency: 2})
	return harness{pipeline: pipeline, fixture: fixture, store: res.Store, rec: res.Telemetry}
}

func TestScrapeVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fixture.Set(model.Trino, "476", releasePage("476", "5 Jun 2025", map[string][]string{
		"General":        {"Improve planner performance. (#100)", "Fix rare failure of Hive views in the planner."},
		"Hive connector": {"Fix reading views."},
	}))

	res, err := h.pipeline.ScrapeVersion(ctx, model.Trino, "476")
	require.NoError(t, err)
	require.Equal(t, 3, res.Fragments)
	require.Equal(t, 3, res.ChangesAdded)
	require.NotNil(t, res.ReleaseDate)
	require.Equal(t, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), *res.ReleaseDate)
	require.Empty(t, res.Warnings)

	changes, err := h.store.ChangesFor(ctx, model.Trino, "476")
	require.NoError(t, err)
	type row struct {
		Position  int
		Connector string
		Section   string
		Text      string
		Issue     string
	}
	var got []row
	for _, c := range changes {
		got = append(got, row{c.Position, c.Connector, c.Section, c.Text, c.IssueNumber})
	}
	expected := []row{
		{0, "general", "General", "Improve planner performance. (#100)", "100"},
		{1, "hive", "General", "Fix rare failure of Hive views in the planner.", ""},
		{2, "hive", "Hive connector", "Fix reading views.", ""},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}

	version, ok, err := h.store.Version(ctx, model.Trino, "476")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, version.Scraped())
	require.Equal(t, "https://trino.io/docs/current/release/release-476.html", version.URL)

	// scraping again fetches the page but adds nothing
	res, err = h.pipeline.ScrapeVersion(ctx, model.Trino, "476")
	require.NoError(t, err)
	require.Equal(t, 0, res.ChangesAdded)
	require.Equal(t, 2, h.fixture.Calls(model.Trino, "476"))
}

func TestScrapeVersionFailures(t *testing.T) {
	testCases := []struct {
		name    string
		product model.Product
		label   string
		setup   func(f *fetcher.FixtureFetcher)
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unknown product",
			product: model.Product("presto"),
			label:   "476",
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
			},
		},
		{
			name:    "bad label",
			product: model.Trino,
			label:   "latest",
			check: func(t *testing.T, err error) {
				var validation *model.ValidationError
				require.ErrorAs(t, err, &validation)
			},
		},
		{
			name:    "missing page",
			product: model.Trino,
			label:   "999",
			check: func(t *testing.T, err error) {
				var fetchErr *model.FetchError
				require.ErrorAs(t, err, &fetchErr)
				require.True(t, fetchErr.NotFound())
			},
		},
		{
			name:    "plain error is wrapped",
			product: model.Trino,
			label:   "476",
			setup: func(f *fetcher.FixtureFetcher) {
				f.Fail(model.Trino, "476", errors.New("connection reset"))
			},
			check: func(t *testing.T, err error) {
				var fetchErr *model.FetchError
				require.ErrorAs(t, err, &fetchErr)
				require.Equal(t, "476", fetchErr.Target)
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			if test.setup != nil {
				test.setup(h.fixture)
			}
			_, err := h.pipeline.ScrapeVersion(context.Background(), test.product, test.label)
			require.Error(t, err)
			test.check(t, err)

			if test.product.Valid() {
				scraped, err := h.store.IsScraped(context.Background(), test.product, test.label)
				if err == nil {
					require.False(t, scraped)
				}
			}
		})
	}
}

func TestScrapeVersionEmptyPage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fixture.Set(model.Starburst, "476-e", `<html><body><div role="main"><h1>Release 476-e</h1></div></body></html>`)
	res, err := h.pipeline.ScrapeVersion(ctx, model.Starburst, "476-e")
	require.NoError(t, err)
	require.Equal(t, 0, res.Fragments)
	require.NotEmpty(t, res.Warnings)
	for _, w := range res.Warnings {
		require.Equal(t, model.Starburst, w.Product)
		require.Equal(t, "476-e", w.Version)
	}
	require.NotEmpty(t, h.rec.Reports(telemetry.LevelWarning))

	scraped, err := h.store.IsScraped(ctx, model.Starburst, "476-e")
	require.NoError(t, err)
	require.True(t, scraped)
}

func TestDiscover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fixture.Set(model.Trino, fetcher.Index, trinoIndex)

	discovered, err := h.pipeline.Discover(ctx, model.Trino)
	require.NoError(t, err)
	var labels []string
	for _, v := range discovered {
		labels = append(labels, v.Label)
	}
	require.Equal(t, []string{"474", "475", "476"}, labels)
	require.Equal(t, "https://trino.io/docs/current/release/release-474.html", discovered[0].URL)

	discovered, err = h.pipeline.Discover(ctx, model.Trino)
	require.NoError(t, err)
	require.Empty(t, discovered)

	versions, err := h.store.Versions(ctx, model.Trino)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for _, v := range versions {
		require.False(t, v.Scraped())
	}
}

func TestDiscoverStoresFetchedURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fixture.
		Set(model.Trino, fetcher.Index, `<html><body><div role="main"><ul>
<li><a href="/archive/2025/release-476.html">Release 476 (5 Jun 2025)</a></li>
</ul></div></body></html>`).
		Set(model.Trino, "476", releasePage("476", "5 Jun 2025", map[string][]string{
			"General": {"Improve planner performance."},
		}))

	_, err := h.pipeline.ScrapeNew(ctx, model.Trino)
	require.NoError(t, err)

	version, ok, err := h.store.Version(ctx, model.Trino, "476")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, version.Scraped())
	require.Equal(t, "https://trino.io/docs/current/release/release-476.html", version.URL)
	require.Equal(t, 1, h.fixture.Calls(model.Trino, "476"))
}

func TestScrapeNew(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fixture.
		Set(model.Trino, fetcher.Index, trinoIndex).
		Set(model.Trino, "474", releasePage("474", "21 Mar 2025", map[string][]string{
			"General": {"Add support for the MERGE statement."},
		})).
		Set(model.Trino, "475", releasePage("475", "23 Apr 2025", map[string][]string{
			"Iceberg connector": {"Add support for Iceberg v3.", "Fix failure on equality deletes."},
		})).
		Fail(model.Trino, "476", &model.FetchError{Product: model.Trino, Target: "476", StatusCode: http.StatusServiceUnavailable})

	summary, err := h.pipeline.ScrapeNew(ctx, model.Trino)
	require.NoError(t, err)
	require.Equal(t, []string{"474", "475", "476"}, summary.Discovered)
	require.Equal(t, "476", summary.Latest)
	require.Equal(t, 3, summary.ChangesAdded)
	require.Len(t, summary.Scraped, 2)
	require.Equal(t, "474", summary.Scraped[0].Version)
	require.Equal(t, "475", summary.Scraped[1].Version)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "476", summary.Failures[0].Version)

	var fetchErr *model.FetchError
	require.ErrorAs(t, summary.Failures[0].Err, &fetchErr)
	require.True(t, fetchErr.Retryable())
	require.Equal(t, 1, h.fixture.Calls(model.Trino, fetcher.Index))

	// the failed version is retried by the next run, scraped ones are not
	h.fixture.Set(model.Trino, "476", releasePage("476", "5 Jun 2025", map[string][]string{
		"Hive connector": {"Fix reading views."},
	}))
	summary, err = h.pipeline.ScrapeNew(ctx, model.Trino)
	require.NoError(t, err)
	require.Empty(t, summary.Discovered)
	require.Empty(t, summary.Failures)
	require.Len(t, summary.Scraped, 1)
	require.Equal(t, "476", summary.Scraped[0].Version)
	require.Equal(t, 1, summary.ChangesAdded)
	require.Equal(t, 1, h.fixture.Calls(model.Trino, "474"))
	require.Equal(t, 2, h.fixture.Calls(model.Trino, "476"))
}

func TestScrapeNewIndexFailure(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.ScrapeNew(context.Background(), model.Trino)
	var fetchErr *model.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, fetcher.Index, fetchErr.Target)
}

func TestBackfillReleaseDates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, label := range []string{"474", "475", "476"} {
		require.NoError(t, h.store.UpsertVersion(ctx, model.Version{Product: model.Trino, Label: label}))
	}
	known := time.Date(2025, time.March, 21, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.store.SetReleaseDate(ctx, model.Trino, "474", known))

	h.fixture.
		Set(model.Trino, "475", releasePage("475", "23 Apr 2025", nil)).
		Set(model.Trino, "476", releasePage("476", "", nil))

	summary, err := h.pipeline.BackfillReleaseDates(ctx, model.Trino)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Checked)
	require.Equal(t, []string{"475"}, summary.Updated)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "476", summary.Failures[0].Version)
	require.Equal(t, 0, h.fixture.Calls(model.Trino, "474"))

	v, _, err := h.store.Version(ctx, model.Trino, "475")
	require.NoError(t, err)
	require.NotNil(t, v.ReleaseDate)
	require.Equal(t, time.Date(2025, time.April, 23, 0, 0, 0, 0, time.UTC), *v.ReleaseDate)

	// backfill never scrapes
	require.False(t, v.Scraped())
}
