package diff

import (
	"context"
	"fmt"
	"slices"

	"sidebyside-backend/internal/catalog"
	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/scrape"
	"sidebyside-backend/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("internal/diff")

const (
	report_diff_scrape_on_miss = "diff.scrape-on-miss"
)

// Source provides the stored versions and changes of a product.
type Source interface {
	catalog.VersionSource
	ChangesFor(ctx context.Context, product model.Product, label string) ([]model.Change, error)
}

// Scraper fills in the changes of a version that was never scraped.
type Scraper interface {
	ScrapeVersion(ctx context.Context, product model.Product, label string) (scrape.Result, error)
}

type Request struct {
	Product model.Product
	From    string
	To      string
	// Connector restricts the result to one canonical connector name, empty
	// means every connector.
	Connector string
}

type Group struct {
	Connector string
	Changes   []model.Change
}

type Summary struct {
	Total          int
	ConnectorCount int
	GeneralCount   int
	BreakingCount  int
}

// Result holds the changes introduced after From up to and including To.
// Breaking changes appear both in their connector group and in Breaking.
type Result struct {
	Product  model.Product
	From     string
	To       string
	Versions []model.Version
	Groups   []Group
	Breaking []model.Change
	Summary  Summary
	// Scraped lists the versions that had to be scraped to answer.
	Scraped  []string
	Warnings []model.ParseWarning
}

// Group returns the changes of one connector.
func (r Result) Group(connector string) ([]model.Change, bool) {
	for _, g := range r.Groups {
		if g.Connector == connector {
			return g.Changes, true
		}
	}
	return nil, false
}

type Engine struct {
	catalog catalog.Catalog
	source  Source
	scraper Scraper
	tel     telemetry.API
}

func New(source Source, scraper Scraper, tel telemetry.API) *Engine {
	assert.NotNil(source)
	assert.NotNil(scraper)
	assert.NotNil(tel)
	return &Engine{
		catalog: catalog.New(source),
		source:  source,
		scraper: scraper,
		tel:     telemetry.NewScopedAPI("diff", tel),
	}
}

func (e *Engine) span(ctx context.Context, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Diff", trace.WithAttributes(
		attribute.String("product", string(req.Product)),
		attribute.String("from", req.From),
		attribute.String("to", req.To),
		attribute.String("connector", req.Connector),
	))
}

// covered resolves both endpoints and returns the versions after from up to
// and including to.
func (e *Engine) covered(ctx context.Context, req Request) ([]model.Version, error) {
	versions, err := e.catalog.AllVersions(ctx, req.Product)
	if err != nil {
		return nil, err
	}
	from, err := catalog.Index(versions, req.Product, req.From)
	if err != nil {
		return nil, &model.InvalidRangeError{
			Product: req.Product, From: req.From, To: req.To,
			Reason: "unknown start version",
			Err:    err,
		}
	}
	to, err := catalog.Index(versions, req.Product, req.To)
	if err != nil {
		return nil, &model.InvalidRangeError{
			Product: req.Product, From: req.From, To: req.To,
			Reason: "unknown end version",
			Err:    err,
		}
	}
	if from >= to {
		return nil, &model.InvalidRangeError{
			Product: req.Product, From: req.From, To: req.To,
			Reason: "start version must be older than end version",
		}
	}
	return versions[from+1 : to+1], nil
}

// Diff collects the changes a range of versions introduced, grouped by
// connector. Versions in the range that were never scraped are scraped
// first, a failure to do so fails the whole diff.
func (e *Engine) Diff(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.span(ctx, req)
	defer span.End()

	result, err := e.diff(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("versions", len(result.Versions)),
		attribute.Int("changes", result.Summary.Total),
	)
	return result, nil
}

func (e *Engine) diff(ctx context.Context, req Request) (Result, error) {
	versions, err := e.covered(ctx, req)
	if err != nil {
		return Result{}, err
	}
	// both endpoints resolved, so the labels parse
	from, _ := catalog.ParseLabel(req.From)
	result := Result{
		Product:  req.Product,
		From:     from.Raw,
		To:       versions[len(versions)-1].Label,
		Versions: versions,
	}

	seen := map[string]struct{}{}
	groups := map[string][]model.Change{}
	for _, v := range versions {
		if !v.Scraped() {
			e.tel.ReportDebug(report_diff_scrape_on_miss, v.String())
			scraped, err := e.scraper.ScrapeVersion(ctx, v.Product, v.Label)
			if err != nil {
				return Result{}, fmt.Errorf("scrape %s: %w", v.String(), err)
			}
			result.Scraped = append(result.Scraped, v.Label)
			result.Warnings = append(result.Warnings, scraped.Warnings...)
		}

		changes, err := e.source.ChangesFor(ctx, v.Product, v.Label)
		if err != nil {
			return Result{}, err
		}
		for _, c := range changes {
			key := textutil.NormalizeText(c.Text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if req.Connector != "" && c.Connector != req.Connector {
				continue
			}
			groups[c.Connector] = append(groups[c.Connector], c)
			if c.IsBreaking {
				result.Breaking = append(result.Breaking, c)
			}
			result.Summary.Total++
			if c.Connector == model.GeneralConnector {
				result.Summary.GeneralCount++
			}
		}
	}

	connectors := make([]string, 0, len(groups))
	for connector := range groups {
		connectors = append(connectors, connector)
	}
	slices.Sort(connectors)
	for _, connector := range connectors {
		result.Groups = append(result.Groups, Group{Connector: connector, Changes: groups[connector]})
		if connector != model.GeneralConnector {
			result.Summary.ConnectorCount++
		}
	}
	result.Summary.BreakingCount = len(result.Breaking)
	return result, nil
}
