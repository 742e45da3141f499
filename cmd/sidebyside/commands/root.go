package commands

import (
	"context"
	"fmt"
	"log/slog"

	"sidebyside-backend/internal/classifier"
	"sidebyside-backend/internal/components/chrono"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/fetcher"
	"sidebyside-backend/internal/store"
	"sidebyside-backend/lib/configutil"
	libtelemetry "sidebyside-backend/lib/telemetry"
	"sidebyside-backend/lib/util/serviceutil"
	"sidebyside-backend/services/relnotes"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var (
	service  *relnotes.Service
	cleanups []func(ctx context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "sidebyside",
	Short: "sidebyside compares the release notes of Trino and Starburst versions.",

	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(context.Background())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "Path to the configuration file.")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "v", false, "Enable debug logging.")
}

func setup(cmd *cobra.Command, args []string) error {
	telemetry.InitSlog(debug)
	ctx := cmd.Context()

	path := configPath
	if !cmd.Flags().Changed("config") {
		if found, err := configutil.Locate(".", configPath); err == nil {
			path = found
		}
	}
	cfg, err := configutil.ReadConfigOr(path, defaultConfig())
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	otel, err := libtelemetry.Setup(ctx, "sidebyside", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	cleanups = append(cleanups, otel.Shutdown)

	tel, err := telemetry.NewMetricsAPI("sidebyside", telemetry.SlogAPI{})
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	database, err := cfg.Database.OpenDB()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	clock := chrono.NewStandardImpl()
	st, err := store.New(ctx, database, clock, tel)
	if err != nil {
		database.Close()
		return fmt.Errorf("open store: %w", err)
	}
	cleanups = append(cleanups, func(context.Context) error { return st.Close() })

	opts := cfg.Fetcher.Options()
	f, err := fetcher.New(opts, tel)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	cls, err := classifier.New(classifier.Merge(cfg.Classifier.Rules, cfg.Classifier.ReplaceDefaults))
	if err != nil {
		return fmt.Errorf("load classifier rules: %w", err)
	}

	service = relnotes.NewService(st, f, cls, clock, tel, relnotes.Options{
		Sources:     opts.Sources,
		Concurrency: cfg.Scrape.Concurrency,
		Hooks: relnotes.Hooks{
			OnSearch: func(e relnotes.SearchEvent) {
				slog.Debug("search", "keyword", e.Keyword, "product", e.Product, "connector", e.Connector, "results", e.Results)
			},
			OnComparison: func(e relnotes.ComparisonEvent) {
				slog.Debug("comparison", "product", e.Product, "from", e.From, "to", e.To, "changes", e.Changes)
			},
		},
	})
	return nil
}

func teardown(ctx context.Context) error {
	var first error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	cleanups = nil
	return first
}

func Execute() {
	ctx, stop := serviceutil.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		teardown(context.Background())
		serviceutil.Fatal(describe(err), err)
	}
}
