package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/model"
)

// Index is the target of a product's release index page, every other target
// is a version label.
const Index = "index"

const versionPlaceholder = "{version}"

const (
	report_fetch_page = "fetcher.fetch"
)

// Fetcher retrieves the raw HTML of a release index or release page.
//
// note: fault injection point
type Fetcher interface {
	Fetch(ctx context.Context, product model.Product, target string) (string, error)
}

// Source is where the pages of a product live.
type Source struct {
	IndexURL string `json:"index_url"`
	// ReleaseURLTemplate contains a {version} placeholder.
	ReleaseURLTemplate string `json:"release_url_template"`
}

// URL returns the page URL of a target.
func (s Source) URL(target string) string {
	if target == Index {
		return s.IndexURL
	}
	return strings.ReplaceAll(s.ReleaseURLTemplate, versionPlaceholder, url.PathEscape(target))
}

func (s Source) Validate() error {
	if _, err := url.ParseRequestURI(s.IndexURL); err != nil {
		return fmt.Errorf("index url: %w", err)
	}
	if !strings.Contains(s.ReleaseURLTemplate, versionPlaceholder) {
		return fmt.Errorf("release url template %q has no %s placeholder", s.ReleaseURLTemplate, versionPlaceholder)
	}
	if _, err := url.ParseRequestURI(s.URL("1")); err != nil {
		return fmt.Errorf("release url template: %w", err)
	}
	return nil
}

type Sources map[model.Product]Source

func DefaultSources() Sources {
	return Sources{
		model.Trino: {
			IndexURL:           "https://trino.io/docs/current/release.html",
			ReleaseURLTemplate: "https://trino.io/docs/current/release/release-{version}.html",
		},
		model.Starburst: {
			IndexURL:           "https://docs.starburst.io/latest/release.html",
			ReleaseURLTemplate: "https://docs.starburst.io/latest/release/release-{version}.html",
		},
	}
}

// URL returns the page URL of a product's target.
func (s Sources) URL(product model.Product, target string) (string, error) {
	source, ok := s[product]
	if !ok {
		return "", &model.ValidationError{Field: "product", Value: string(product), Reason: "no source configured"}
	}
	return source.URL(target), nil
}

// Hostnames lists the distinct hosts of every source.
func (s Sources) Hostnames() []string {
	seen := map[string]bool{}
	var out []string
	for _, source := range s {
		for _, link := range []string{source.IndexURL, source.URL("1")} {
			parsed, err := url.Parse(link)
			if err != nil || seen[parsed.Hostname()] {
				continue
			}
			seen[parsed.Hostname()] = true
			out = append(out, parsed.Hostname())
		}
	}
	return out
}

const (
	EngineResty = "resty"
	EngineColly = "colly"
)

type Options struct {
	Engine            string
	Sources           Sources
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
	CloudflareBypass  bool
	// DumpDir, when set, receives a copy of every HTTP exchange. Only the
	// resty engine writes dumps.
	DumpDir string
}

func DefaultOptions() Options {
	return Options{
		Engine:            EngineResty,
		Sources:           DefaultSources(),
		Timeout:           time.Second * 30,
		RequestsPerSecond: 2,
		UserAgent:         "sidebyside/1.0 (+release-notes-comparison)",
	}
}

func (o Options) validate() error {
	if len(o.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}
	for product, source := range o.Sources {
		if err := source.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", product, err)
		}
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if o.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	return nil
}

// New builds the fetcher of the configured engine.
func New(opts Options, tel telemetry.API) (Fetcher, error) {
	switch opts.Engine {
	case "", EngineResty:
		return NewHTTPFetcher(opts, tel)
	case EngineColly:
		return NewCollyFetcher(opts, tel)
	}
	return nil, fmt.Errorf("unknown fetcher engine %q", opts.Engine)
}

// checkBody rejects responses that cannot be a release page.
func checkBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty response body")
	}
	return nil
}
