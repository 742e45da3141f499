package commands

import (
	"sidebyside-backend/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(connectorsCmd)
	rootCmd.AddCommand(backfillCmd)
	connectorsCmd.Flags().StringVarP(&connectorsProduct, "product", "p", "", "Only list connectors of this product.")
}

var versionsCmd = &cobra.Command{
	Use:   "versions <product>",
	Short: "Lists the known versions of a product, oldest first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := model.ParseProduct(args[0])
		if err != nil {
			return err
		}
		versions, err := service.KnownVersions(cmd.Context(), product)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"#", "Version", "Released", "Scraped", "URL"})
		for _, v := range versions {
			scraped := "no"
			if v.Scraped() {
				scraped = formatDate(v.ScrapedAt)
			}
			t.AppendRow(table.Row{v.SequenceIndex, v.Label, formatDate(v.ReleaseDate), scraped, v.URL})
		}
		t.Render()
		return nil
	},
}

var connectorsProduct string

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Lists the connectors that stored changes are classified under.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := optionalProduct(connectorsProduct)
		if err != nil {
			return err
		}
		connectors, err := service.KnownConnectors(cmd.Context(), product)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Connector"})
		for _, c := range connectors {
			t.AppendRow(table.Row{c})
		}
		t.Render()
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill-dates <product>",
	Short: "Fills in missing release dates from the release pages.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := model.ParseProduct(args[0])
		if err != nil {
			return err
		}
		summary, err := service.BackfillReleaseDates(cmd.Context(), product)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Product", "Checked", "Updated", "Failed"})
		t.AppendRow(table.Row{product.DisplayName(), summary.Checked, len(summary.Updated), len(summary.Failures)})
		t.Render()

		if len(summary.Failures) > 0 {
			failures := newTable()
			failures.AppendHeader(table.Row{"Version", "Error"})
			for _, f := range summary.Failures {
				failures.AppendRow(table.Row{f.Version, f.Err.Error()})
			}
			failures.Render()
		}
		return nil
	},
}
