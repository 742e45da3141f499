package relnotes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"sidebyside-backend/internal/catalog"
	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/chrono"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/diff"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/scrape"
	"sidebyside-backend/internal/store"
	"sidebyside-backend/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sidebyside.services.relnotes")

const MinKeywordLength = 3

// SearchEvent describes a search that was answered.
type SearchEvent struct {
	Keyword   string
	Product   model.Product
	Connector string
	Results   int
	At        time.Time
}

// ComparisonEvent describes a diff that was answered.
type ComparisonEvent struct {
	Product   model.Product
	From      string
	To        string
	Connector string
	Changes   int
	At        time.Time
}

// Hooks are called after successful queries, they must not block.
type Hooks struct {
	OnSearch     func(SearchEvent)
	OnComparison func(ComparisonEvent)
}

type Options struct {
	Sources     fetcher.Sources
	Concurrency int
	Hooks       Hooks
}

// Service is the entry point of the presentation layer: scraping, diffing,
// searching and listing the release notes of every product.
type Service struct {
	store      *store.Store
	catalog    catalog.Catalog
	pipeline   *scrape.Pipeline
	engine     *diff.Engine
	classifier *classifier.Classifier
	clock      chrono.API
	hooks      Hooks
}

func NewService(
	st *store.Store,
	f fetcher.Fetcher,
	cls *classifier.Classifier,
	clock chrono.API,
	tel telemetry.API,
	opts Options,
) *Service {
	assert.NotNil(st)
	assert.NotNil(f)
	assert.NotNil(cls)
	assert.NotNil(clock)
	assert.NotNil(tel)

	sources := opts.Sources
	if sources == nil {
		sources = fetcher.DefaultSources()
	}
	pipeline := scrape.NewPipeline(f, sources, st, cls, tel, scrape.Options{
		Concurrency: opts.Concurrency,
	})
	return &Service{
		store:      st,
		catalog:    catalog.New(st),
		pipeline:   pipeline,
		engine:     diff.New(st, pipeline, tel),
		classifier: cls,
		clock:      clock,
		hooks:      opts.Hooks,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func validateProduct(product model.Product) error {
	if !product.Valid() {
		return &model.ValidationError{
			Field:      "product",
			Value:      string(product),
			Reason:     "unknown product",
			Suggestion: fmt.Sprintf("one of %s, %s", model.Trino, model.Starburst),
		}
	}
	return nil
}

func (s *Service) ScrapeVersion(ctx context.Context, product model.Product, label string) (scrape.Result, error) {
	ctx, span := tracer.Start(ctx, "ScrapeVersion")
	defer span.End()

	res, err := s.pipeline.ScrapeVersion(ctx, product, label)
	if err != nil {
		return scrape.Result{}, fail(span, err)
	}
	return res, nil
}

// ScrapeNew runs a scrape of new versions for each product, every product
// when none are given. A product that fails does not stop the others, the
// returned error joins the failures.
func (s *Service) ScrapeNew(ctx context.Context, products ...model.Product) ([]scrape.RunSummary, error) {
	ctx, span := tracer.Start(ctx, "ScrapeNew")
	defer span.End()

	if len(products) == 0 {
		products = model.Products()
	}
	var summaries []scrape.RunSummary
	var errs []error
	for _, product := range products {
		summary, err := s.pipeline.ScrapeNew(ctx, product)
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", product, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		return summaries, fail(span, err)
	}
	return summaries, nil
}

func (s *Service) Discover(ctx context.Context, product model.Product) ([]model.Version, error) {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	discovered, err := s.pipeline.Discover(ctx, product)
	if err != nil {
		return nil, fail(span, err)
	}
	return discovered, nil
}

func (s *Service) BackfillReleaseDates(ctx context.Context, product model.Product) (scrape.BackfillSummary, error) {
	ctx, span := tracer.Start(ctx, "BackfillReleaseDates")
	defer span.End()

	summary, err := s.pipeline.BackfillReleaseDates(ctx, product)
	if err != nil {
		return summary, fail(span, err)
	}
	return summary, nil
}

// ResolveConnector maps a user supplied connector name to the canonical name
// used in storage. Empty names resolve to empty, meaning no filter.
func (s *Service) ResolveConnector(ctx context.Context, product model.Product, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	if connector, ok := s.classifier.Lookup(name); ok {
		return connector, nil
	}
	stored, err := s.store.Connectors(ctx, product)
	if err != nil {
		return "", err
	}
	slug := textutil.Slug(name)
	if slices.Contains(stored, slug) {
		return slug, nil
	}
	return "", &model.ValidationError{
		Field:      "connector",
		Value:      name,
		Reason:     "unknown connector",
		Suggestion: s.classifier.Suggest(name, stored...),
	}
}

type DiffRequest struct {
	Product   model.Product
	From      string
	To        string
	Connector string
}

// Diff returns the changes introduced after From up to and including To.
func (s *Service) Diff(ctx context.Context, req DiffRequest) (diff.Result, error) {
	ctx, span := tracer.Start(ctx, "Diff", trace.WithAttributes(
		attribute.String("product", string(req.Product)),
		attribute.String("from", req.From),
		attribute.String("to", req.To),
	))
	defer span.End()

	if err := validateProduct(req.Product); err != nil {
		return diff.Result{}, fail(span, err)
	}
	connector, err := s.ResolveConnector(ctx, req.Product, req.Connector)
	if err != nil {
		return diff.Result{}, fail(span, err)
	}

	res, err := s.engine.Diff(ctx, diff.Request{
		Product:   req.Product,
		From:      req.From,
		To:        req.To,
		Connector: connector,
	})
	if err != nil {
		return diff.Result{}, fail(span, err)
	}

	if s.hooks.OnComparison != nil {
		s.hooks.OnComparison(ComparisonEvent{
			Product:   req.Product,
			From:      res.From,
			To:        res.To,
			Connector: connector,
			Changes:   res.Summary.Total,
			At:        s.clock.Now(),
		})
	}
	return res, nil
}

type SearchRequest struct {
	Keyword     string
	Product     model.Product
	Connector   string
	FromVersion string
	ToVersion   string
	Limit       int
	Offset      int
}

func (s *Service) searchQuery(ctx context.Context, req SearchRequest) (store.SearchQuery, error) {
	keyword := strings.TrimSpace(req.Keyword)
	if utf8.RuneCountInString(keyword) < MinKeywordLength {
		return store.SearchQuery{}, &model.ValidationError{
			Field:  "keyword",
			Value:  req.Keyword,
			Reason: fmt.Sprintf("must be at least %d characters", MinKeywordLength),
		}
	}
	if req.Limit < 0 {
		return store.SearchQuery{}, &model.ValidationError{Field: "limit", Value: fmt.Sprint(req.Limit), Reason: "must not be negative"}
	}
	if req.Offset < 0 {
		return store.SearchQuery{}, &model.ValidationError{Field: "offset", Value: fmt.Sprint(req.Offset), Reason: "must not be negative"}
	}

	query := store.SearchQuery{
		Keyword: keyword,
		Product: req.Product,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	if req.Product != "" {
		if err := validateProduct(req.Product); err != nil {
			return store.SearchQuery{}, err
		}
	}
	if (req.FromVersion != "" || req.ToVersion != "") && req.Product == "" {
		return store.SearchQuery{}, &model.ValidationError{
			Field:  "product",
			Reason: "a version range needs a product",
		}
	}

	for _, endpoint := range []struct {
		label string
		into  *string
	}{
		{req.FromVersion, &query.FromVersion},
		{req.ToVersion, &query.ToVersion},
	} {
		if endpoint.label == "" {
			continue
		}
		v, err := s.catalog.Resolve(ctx, req.Product, endpoint.label)
		if err != nil {
			return store.SearchQuery{}, err
		}
		*endpoint.into = v.Label
	}
	if query.FromVersion != "" && query.ToVersion != "" {
		order, err := catalog.Compare(query.FromVersion, query.ToVersion)
		if err != nil {
			return store.SearchQuery{}, err
		}
		if order > 0 {
			return store.SearchQuery{}, &model.InvalidRangeError{
				Product: req.Product,
				From:    query.FromVersion,
				To:      query.ToVersion,
				Reason:  "start version must not be newer than end version",
			}
		}
	}

	connector, err := s.ResolveConnector(ctx, req.Product, req.Connector)
	if err != nil {
		return store.SearchQuery{}, err
	}
	query.Connector = connector
	return query, nil
}

// Search finds stored changes containing a keyword, case insensitive. The
// version range, when given, is inclusive on both ends.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]model.Change, error) {
	ctx, span := tracer.Start(ctx, "Search", trace.WithAttributes(
		attribute.String("keyword", req.Keyword),
		attribute.String("product", string(req.Product)),
	))
	defer span.End()

	query, err := s.searchQuery(ctx, req)
	if err != nil {
		return nil, fail(span, err)
	}
	changes, err := s.store.Search(ctx, query)
	if err != nil {
		return nil, fail(span, err)
	}

	if s.hooks.OnSearch != nil {
		s.hooks.OnSearch(SearchEvent{
			Keyword:   query.Keyword,
			Product:   query.Product,
			Connector: query.Connector,
			Results:   len(changes),
			At:        s.clock.Now(),
		})
	}
	return changes, nil
}

// KnownConnectors lists the connectors of stored changes, for every product
// when product is empty.
func (s *Service) KnownConnectors(ctx context.Context, product model.Product) ([]string, error) {
	if product != "" {
		if err := validateProduct(product); err != nil {
			return nil, err
		}
	}
	return s.store.Connectors(ctx, product)
}

// KnownVersions lists the versions of a product, oldest first.
func (s *Service) KnownVersions(ctx context.Context, product model.Product) ([]model.Version, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	return s.catalog.AllVersions(ctx, product)
}

func (s *Service) Compare(ctx context.Context, product model.Product, a, b string) (int, error) {
	if err := validateProduct(product); err != nil {
		return 0, err
	}
	return s.catalog.Compare(ctx, product, a, b)
}

func (s *Service) Latest(ctx context.Context, product model.Product) (model.Version, error) {
	if err := validateProduct(product); err != nil {
		return model.Version{}, err
	}
	return s.catalog.Latest(ctx, product)
}
