package commands

import (
	"time"

	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/model"
	configlibsql "sidebyside-backend/lib/configutil/libsql"
	"sidebyside-backend/lib/telemetry"
)

type SourceConfig struct {
	IndexURL           string `json:"index_url"`
	ReleaseURLTemplate string `json:"release_url_template"`
}

type FetcherConfig struct {
	// Engine is "resty" or "colly".
	Engine            string                         `json:"engine"`
	TimeoutSeconds    int                            `json:"timeout_seconds"`
	RequestsPerSecond float64                        `json:"requests_per_second"`
	UserAgent         string                         `json:"user_agent"`
	CloudflareBypass  bool                           `json:"cloudflare_bypass"`
	DumpDir           string                         `json:"dump_dir"`
	Sources           map[model.Product]SourceConfig `json:"sources"`
}

type ScrapeConfig struct {
	Concurrency int `json:"concurrency"`
}

type ClassifierConfig struct {
	Rules           []classifier.Rule `json:"rules"`
	ReplaceDefaults bool              `json:"replace_defaults"`
}

type Config struct {
	Database   configlibsql.Struct `json:"database"`
	Fetcher    FetcherConfig       `json:"fetcher"`
	Scrape     ScrapeConfig        `json:"scrape"`
	Classifier ClassifierConfig    `json:"classifier"`
	Telemetry  telemetry.Config    `json:"telemetry"`
}

func defaultConfig() Config {
	opts := fetcher.DefaultOptions()
	sources := map[model.Product]SourceConfig{}
	for product, source := range opts.Sources {
		sources[product] = SourceConfig{
			IndexURL:           source.IndexURL,
			ReleaseURLTemplate: source.ReleaseURLTemplate,
		}
	}
	return Config{
		Database: configlibsql.Struct{File: "sidebyside.db"},
		Fetcher: FetcherConfig{
			Engine:            opts.Engine,
			TimeoutSeconds:    int(opts.Timeout / time.Second),
			RequestsPerSecond: opts.RequestsPerSecond,
			UserAgent:         opts.UserAgent,
			Sources:           sources,
		},
		Scrape: ScrapeConfig{Concurrency: 4},
	}
}

func (c FetcherConfig) Options() fetcher.Options {
	opts := fetcher.DefaultOptions()
	if c.Engine != "" {
		opts.Engine = c.Engine
	}
	if c.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	if c.RequestsPerSecond > 0 {
		opts.RequestsPerSecond = c.RequestsPerSecond
	}
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	opts.CloudflareBypass = c.CloudflareBypass
	opts.DumpDir = c.DumpDir
	for product, source := range c.Sources {
		merged := opts.Sources[product]
		if source.IndexURL != "" {
			merged.IndexURL = source.IndexURL
		}
		if source.ReleaseURLTemplate != "" {
			merged.ReleaseURLTemplate = source.ReleaseURLTemplate
		}
		opts.Sources[product] = merged
	}
	return opts
}
