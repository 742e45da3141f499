package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"sidebyside-backend/internal/catalog"
	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/keylock"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/extractor"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("internal/scrape")

const (
	report_pipeline_scrape_version = "pipeline.scrape-version"
	report_pipeline_parse          = "pipeline.parse"
	report_pipeline_discover       = "pipeline.discover"
	report_pipeline_changes_added  = "pipeline.changes-added"
	report_pipeline_backfill       = "pipeline.backfill-release-dates"
)

const DefaultConcurrency = 4

// Store is the part of the persistence layer the pipeline writes to.
type Store interface {
	UpsertVersion(ctx context.Context, v model.Version) error
	UpsertChanges(ctx context.Context, v model.Version, changes []model.Change) (int, error)
	Version(ctx context.Context, product model.Product, label string) (model.Version, bool, error)
	Versions(ctx context.Context, product model.Product) ([]model.Version, error)
	SetReleaseDate(ctx context.Context, product model.Product, label string, date time.Time) error
}

// Result describes one scraped version.
type Result struct {
	Product      model.Product
	Version      string
	Fragments    int
	ChangesAdded int
	ReleaseDate  *time.Time
	Warnings     []model.ParseWarning
}

type Failure struct {
	Version string
	Err     error
}

// RunSummary describes one ScrapeNew run over a product.
type RunSummary struct {
	Product model.Product
	// Discovered lists versions seen on the index for the first time.
	Discovered   []string
	Scraped      []Result
	Failures     []Failure
	ChangesAdded int
	Latest       string
}

type BackfillSummary struct {
	Product  model.Product
	Checked  int
	Updated  []string
	Failures []Failure
}

type Options struct {
	// Concurrency bounds the release pages fetched at once by a run.
	Concurrency int
	Extractor   *extractor.Extractor
}

// Pipeline fetches, extracts, classifies and stores release notes.
type Pipeline struct {
	fetcher     fetcher.Fetcher
	sources     fetcher.Sources
	store       Store
	extractor   extractor.Extractor
	classifier  *classifier.Classifier
	tel         telemetry.API
	concurrency int
	locks       keylock.Map
}

func NewPipeline(f fetcher.Fetcher, sources fetcher.Sources, store Store, cls *classifier.Classifier, tel telemetry.API, opts Options) *Pipeline {
	assert.NotNil(f)
	assert.NotNil(store)
	assert.NotNil(cls)
	assert.NotNil(tel)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ex := extractor.New()
	if opts.Extractor != nil {
		ex = *opts.Extractor
	}
	return &Pipeline{
		fetcher:     f,
		sources:     sources,
		store:       store,
		extractor:   ex,
		classifier:  cls,
		tel:         telemetry.NewScopedAPI("scrape", tel),
		concurrency: concurrency,
	}
}

func validateProduct(product model.Product) error {
	if !product.Valid() {
		return &model.ValidationError{Field: "product", Value: string(product), Reason: "unknown product"}
	}
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ScrapeVersion fetches and stores the release notes of one version. It is
// idempotent, scraping a version again only adds changes that are new.
func (p *Pipeline) ScrapeVersion(ctx context.Context, product model.Product, label string) (Result, error) {
	if err := validateProduct(product); err != nil {
		return Result{}, err
	}
	parsed, err := catalog.ParseLabel(label)
	if err != nil {
		return Result{}, err
	}
	return p.scrapeVersion(ctx, p.fetcher, product, parsed.Raw)
}

// scrapeVersion always stores the url the page was fetched from, so the
// deep link of a version and its stored changes never disagree.
func (p *Pipeline) scrapeVersion(ctx context.Context, f fetcher.Fetcher, product model.Product, label string) (Result, error) {
	ctx, span := tracer.Start(ctx, "ScrapeVersion", trace.WithAttributes(
		attribute.String("product", string(product)),
		attribute.String("label", label),
	))
	defer span.End()

	unlock := p.locks.Lock(fmt.Sprintf("%s/%s", product, label))
	defer unlock()

	page, err := f.Fetch(ctx, product, label)
	if err != nil {
		var fetchErr *model.FetchError
		var validation *model.ValidationError
		if !errors.As(err, &fetchErr) && !errors.As(err, &validation) {
			err = &model.FetchError{Product: product, Target: label, Err: err}
		}
		recordError(span, err)
		return Result{}, err
	}

	extracted := p.extractor.Extract(page)
	changes := make([]model.Change, len(extracted.Fragments))
	for i, fragment := range extracted.Fragments {
		changes[i] = model.Change{
			Product:      product,
			Version:      label,
			Position:     i,
			Connector:    p.classifier.ClassifyFragment(fragment),
			Section:      fragment.Section,
			Text:         fragment.Text,
			IsBreaking:   fragment.Breaking(),
			IssueNumber:  fragment.IssueNumber,
			SourceAnchor: fragment.Anchor,
		}
	}

	link, _ := p.sources.URL(product, label)
	version := model.Version{
		Product:     product,
		Label:       label,
		ReleaseDate: extracted.ReleaseDate,
		URL:         link,
	}
	added, err := p.store.UpsertChanges(ctx, version, changes)
	if err != nil {
		recordError(span, err)
		p.tel.ReportBroken(report_pipeline_scrape_version, err, version.String())
		return Result{}, err
	}

	warnings := make([]model.ParseWarning, len(extracted.Warnings))
	for i, w := range extracted.Warnings {
		w.Product = product
		w.Version = label
		warnings[i] = w
		p.tel.ReportWarning(report_pipeline_parse, w.String())
	}
	p.tel.ReportCount(report_pipeline_changes_added, int64(added))
	span.SetAttributes(
		attribute.Int("fragments", len(changes)),
		attribute.Int("added", added),
	)

	return Result{
		Product:      product,
		Version:      label,
		Fragments:    len(changes),
		ChangesAdded: added,
		ReleaseDate:  extracted.ReleaseDate,
		Warnings:     warnings,
	}, nil
}

// Discover reads the release index of a product and records every version
// it links to. It returns the versions that were not known before.
func (p *Pipeline) Discover(ctx context.Context, product model.Product) ([]model.Version, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	return p.discover(ctx, p.fetcher, product)
}

func (p *Pipeline) discover(ctx context.Context, f fetcher.Fetcher, product model.Product) ([]model.Version, error) {
	ctx, span := tracer.Start(ctx, "Discover", trace.WithAttributes(
		attribute.String("product", string(product)),
	))
	defer span.End()

	indexURL, err := p.sources.URL(product, fetcher.Index)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, err
	}

	page, err := f.Fetch(ctx, product, fetcher.Index)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	entries, err := extractor.ParseIndex(ctx, product, page, base)
	if err != nil {
		recordError(span, err)
		p.tel.ReportBroken(report_pipeline_discover, err, product)
		return nil, err
	}
	if len(entries) == 0 {
		p.tel.ReportWarning(report_pipeline_discover, "no versions linked from index", indexURL)
	}

	var discovered []model.Version
	for _, entry := range entries {
		_, known, err := p.store.Version(ctx, product, entry.Label)
		if err != nil {
			return nil, err
		}
		link, err := p.sources.URL(product, entry.Label)
		if err != nil {
			return nil, err
		}
		if entry.URL != link {
			p.tel.ReportDebug("index links a page other than the one fetched", entry.URL, link)
		}
		version := model.Version{Product: product, Label: entry.Label, URL: link}
		err = p.store.UpsertVersion(ctx, version)
		if err != nil {
			return nil, err
		}
		if !known {
			discovered = append(discovered, version)
		}
	}
	span.SetAttributes(attribute.Int("discovered", len(discovered)))
	return discovered, nil
}

// ScrapeNew discovers the versions of a product and scrapes every version
// that has not been scraped yet, including ones that failed in earlier runs.
// A failing version never stops the others, it is reported in the summary.
func (p *Pipeline) ScrapeNew(ctx context.Context, product model.Product) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "ScrapeNew", trace.WithAttributes(
		attribute.String("product", string(product)),
	))
	defer span.End()

	summary := RunSummary{Product: product}
	if err := validateProduct(product); err != nil {
		return summary, err
	}

	run := fetcher.NewPageCache(p.fetcher)
	discovered, err := p.discover(ctx, run, product)
	if err != nil {
		recordError(span, err)
		return summary, err
	}
	for _, v := range discovered {
		summary.Discovered = append(summary.Discovered, v.Label)
	}

	versions, err := p.store.Versions(ctx, product)
	if err != nil {
		return summary, err
	}
	versions = catalog.Order(versions)
	if len(versions) > 0 {
		summary.Latest = versions[len(versions)-1].Label
	}

	var mutex sync.Mutex
	var group errgroup.Group
	group.SetLimit(p.concurrency)
	for _, v := range versions {
		if v.Scraped() {
			continue
		}
		group.Go(func() error {
			res, err := p.scrapeVersion(ctx, run, product, v.Label)

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				p.tel.ReportWarning(report_pipeline_scrape_version, err, v.String())
				summary.Failures = append(summary.Failures, Failure{Version: v.Label, Err: err})
				return nil
			}
			summary.Scraped = append(summary.Scraped, res)
			summary.ChangesAdded += res.ChangesAdded
			return nil
		})
	}
	_ = group.Wait()

	slices.SortFunc(summary.Scraped, func(a, b Result) int {
		result, _ := catalog.Compare(a.Version, b.Version)
		return result
	})
	slices.SortFunc(summary.Failures, func(a, b Failure) int {
		result, _ := catalog.Compare(a.Version, b.Version)
		return result
	})

	span.SetAttributes(
		attribute.Int("scraped", len(summary.Scraped)),
		attribute.Int("failures", len(summary.Failures)),
		attribute.Int("added", summary.ChangesAdded),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// BackfillReleaseDates fills in the release date of every version that
// lacks one, from the date printed on its release page.
func (p *Pipeline) BackfillReleaseDates(ctx context.Context, product model.Product) (BackfillSummary, error) {
	ctx, span := tracer.Start(ctx, "BackfillReleaseDates", trace.WithAttributes(
		attribute.String("product", string(product)),
	))
	defer span.End()

	summary := BackfillSummary{Product: product}
	if err := validateProduct(product); err != nil {
		return summary, err
	}

	versions, err := p.store.Versions(ctx, product)
	if err != nil {
		return summary, err
	}
	versions = catalog.Order(versions)

	run := fetcher.NewPageCache(p.fetcher)
	var mutex sync.Mutex
	var group errgroup.Group
	group.SetLimit(p.concurrency)
	for _, v := range versions {
		if v.ReleaseDate != nil {
			continue
		}
		summary.Checked++
		group.Go(func() error {
			date, err := p.releaseDate(ctx, run, v)
			if err == nil {
				err = p.store.SetReleaseDate(ctx, product, v.Label, date)
			}

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				p.tel.ReportWarning(report_pipeline_backfill, err, v.String())
				summary.Failures = append(summary.Failures, Failure{Version: v.Label, Err: err})
				return nil
			}
			summary.Updated = append(summary.Updated, v.Label)
			return nil
		})
	}
	_ = group.Wait()

	slices.SortFunc(summary.Updated, func(a, b string) int {
		result, _ := catalog.Compare(a, b)
		return result
	})
	slices.SortFunc(summary.Failures, func(a, b Failure) int {
		result, _ := catalog.Compare(a.Version, b.Version)
		return result
	})
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

var errNoReleaseDate = errors.New("no release date on page")

func (p *Pipeline) releaseDate(ctx context.Context, f fetcher.Fetcher, v model.Version) (time.Time, error) {
	page, err := f.Fetch(ctx, v.Product, v.Label)
	if err != nil {
		return time.Time{}, err
	}
	date := p.extractor.Extract(page).ReleaseDate
	if date == nil {
		return time.Time{}, errNoReleaseDate
	}
	return *date, nil
}
