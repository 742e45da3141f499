package fetcher

import (
	"context"
	"net/http"
	"sync"

	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/model"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher fetches pages with a colly collector, each fetch runs on a
// clone so callbacks never leak between concurrent fetches while the rate
// limits stay shared.
type CollyFetcher struct {
	collector *colly.Collector
	sources   Sources
	tel       telemetry.API
}

func NewCollyFetcher(opts Options, tel telemetry.API) (*CollyFetcher, error) {
	assert.NotNil(tel)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tel = telemetry.NewScopedAPI("colly_fetcher", tel)

	c := colly.NewCollector(
		colly.AllowedDomains(opts.Sources.Hostnames()...),
		colly.AllowURLRevisit(),
	)
	c.UserAgent = opts.UserAgent
	c.SetRequestTimeout(opts.Timeout)

	parallelism := int(opts.RequestsPerSecond)
	if parallelism < 1 {
		parallelism = 1
	}
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	})
	if err != nil {
		return nil, err
	}

	return &CollyFetcher{
		collector: c,
		sources:   opts.Sources,
		tel:       tel,
	}, nil
}

func (f *CollyFetcher) Fetch(ctx context.Context, product model.Product, target string) (string, error) {
	link, err := f.sources.URL(product, target)
	if err != nil {
		return "", err
	}

	c := f.collector.Clone()
	c.Context = ctx

	var mutex sync.Mutex
	var body string
	status := 0
	c.OnResponse(func(r *colly.Response) {
		mutex.Lock()
		defer mutex.Unlock()
		body = string(r.Body)
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		mutex.Lock()
		defer mutex.Unlock()
		if r != nil {
			status = r.StatusCode
		}
		f.tel.ReportWarning(report_fetch_page, err, link)
	})

	err = c.Visit(link)
	c.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	if status != 0 && (status < 200 || status >= 300) {
		return "", &model.FetchError{Product: product, Target: target, URL: link, StatusCode: status}
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &model.FetchError{Product: product, Target: target, URL: link, StatusCode: status, Err: err}
	}
	if err := checkBody(body); err != nil {
		return "", &model.FetchError{Product: product, Target: target, URL: link, StatusCode: http.StatusOK, Err: err}
	}
	return body, nil
}
