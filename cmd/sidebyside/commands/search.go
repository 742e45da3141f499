package commands

import (
	"sidebyside-backend/services/relnotes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchFlags struct {
	product   string
	connector string
	from      string
	to        string
	limit     int
	offset    int
}

func init() {
	searchCmd.Flags().StringVarP(&searchFlags.product, "product", "p", "", "Only search this product.")
	searchCmd.Flags().StringVar(&searchFlags.connector, "connector", "", "Only search changes of this connector.")
	searchCmd.Flags().StringVar(&searchFlags.from, "from", "", "Oldest version to search, inclusive.")
	searchCmd.Flags().StringVar(&searchFlags.to, "to", "", "Newest version to search, inclusive.")
	searchCmd.Flags().IntVar(&searchFlags.limit, "limit", 50, "Maximum number of results, 0 for no limit.")
	searchCmd.Flags().IntVar(&searchFlags.offset, "offset", 0, "Number of results to skip.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Searches stored changes for a keyword.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := optionalProduct(searchFlags.product)
		if err != nil {
			return err
		}
		changes, err := service.Search(cmd.Context(), relnotes.SearchRequest{
			Keyword:     args[0],
			Product:     product,
			Connector:   searchFlags.connector,
			FromVersion: searchFlags.from,
			ToVersion:   searchFlags.to,
			Limit:       searchFlags.limit,
			Offset:      searchFlags.offset,
		})
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Product", "Version", "Connector", "Change"})
		for _, c := range changes {
			t.AppendRow(table.Row{c.Product.DisplayName(), c.Version, c.Connector, c.Text})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 100}})
		t.AppendFooter(table.Row{"", "", "Results", len(changes)})
		t.Render()
		return nil
	},
}
