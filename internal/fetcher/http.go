package fetcher

import (
	"context"
	"fmt"

	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/lib/util/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// HTTPFetcher fetches pages with resty.
type HTTPFetcher struct {
	http    *resty.Client
	sources Sources
	tel     telemetry.API
}

func NewHTTPFetcher(opts Options, tel telemetry.API) (*HTTPFetcher, error) {
	assert.NotNil(tel)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	tel = telemetry.NewScopedAPI("http_fetcher", tel)

	httpClient := resty.New()
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(opts.Sources.Hostnames()...))
	httpClient.SetTimeout(opts.Timeout)

	// max burst >= requests per second just means that no requests will be dropped
	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	if opts.DumpDir != "" {
		dump, err := restyutil.NewDump(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("create dump directory: %w", err)
		}
		dump.Instrument(httpClient)
	}

	return &HTTPFetcher{
		http:    httpClient,
		sources: opts.Sources,
		tel:     tel,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, product model.Product, target string) (string, error) {
	link, err := f.sources.URL(product, target)
	if err != nil {
		return "", err
	}

	res, err := f.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		f.tel.ReportWarning(report_fetch_page, err, link)
		return "", &model.FetchError{Product: product, Target: target, URL: link, Err: err}
	}
	if !res.IsSuccess() {
		f.tel.ReportWarning(report_fetch_page, res.Status(), link)
		return "", &model.FetchError{Product: product, Target: target, URL: link, StatusCode: res.StatusCode()}
	}

	body := res.String()
	if err := checkBody(body); err != nil {
		return "", &model.FetchError{Product: product, Target: target, URL: link, StatusCode: res.StatusCode(), Err: err}
	}
	return body, nil
}
