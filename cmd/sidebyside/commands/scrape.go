package commands

import (
	"fmt"

	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/scrape"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	products []string
	version  string
}

func init() {
	scrapeCmd.Flags().StringSliceVarP(&scrapeFlags.products, "product", "p", nil, "Products to scrape, every product when omitted.")
	scrapeCmd.Flags().StringVar(&scrapeFlags.version, "version", "", "Scrape only this version of the product.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Discovers new versions and scrapes their release notes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		products, err := parseProducts(scrapeFlags.products)
		if err != nil {
			return err
		}

		if scrapeFlags.version != "" {
			if len(products) != 1 {
				return &model.ValidationError{
					Field:  "product",
					Reason: "--version needs exactly one --product",
				}
			}
			res, err := service.ScrapeVersion(cmd.Context(), products[0], scrapeFlags.version)
			if err != nil {
				return err
			}
			printScrapeResults([]scrape.Result{res})
			return nil
		}

		summaries, err := service.ScrapeNew(cmd.Context(), products...)
		printSummaries(summaries)
		return err
	},
}

func printScrapeResults(results []scrape.Result) {
	t := newTable()
	t.AppendHeader(table.Row{"Product", "Version", "Released", "Fragments", "Added", "Warnings"})
	for _, res := range results {
		t.AppendRow(table.Row{
			res.Product.DisplayName(),
			res.Version,
			formatDate(res.ReleaseDate),
			res.Fragments,
			res.ChangesAdded,
			len(res.Warnings),
		})
	}
	t.Render()

	for _, res := range results {
		for _, w := range res.Warnings {
			fmt.Fprintln(out, "warning:", w.String())
		}
	}
}

func printSummaries(summaries []scrape.RunSummary) {
	t := newTable()
	t.AppendHeader(table.Row{"Product", "Discovered", "Scraped", "Failed", "Added", "Latest"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Product.DisplayName(),
			len(s.Discovered),
			len(s.Scraped),
			len(s.Failures),
			s.ChangesAdded,
			s.Latest,
		})
	}
	t.Render()

	failures := newTable()
	failures.AppendHeader(table.Row{"Product", "Version", "Error"})
	count := 0
	for _, s := range summaries {
		for _, f := range s.Failures {
			failures.AppendRow(table.Row{s.Product.DisplayName(), f.Version, f.Err.Error()})
			count++
		}
	}
	if count > 0 {
		failures.Render()
	}
}
