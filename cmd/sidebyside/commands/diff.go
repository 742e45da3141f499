package commands

import (
	"fmt"

	"sidebyside-backend/internal/model"
	"sidebyside-backend/services/relnotes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var diffFlags struct {
	connector    string
	breakingOnly bool
}

func init() {
	diffCmd.Flags().StringVar(&diffFlags.connector, "connector", "", "Only show changes of this connector.")
	diffCmd.Flags().BoolVar(&diffFlags.breakingOnly, "breaking", false, "Only show breaking changes.")
	rootCmd.AddCommand(diffCmd)
}

var diffCmd = &cobra.Command{
	Use:   "diff <product> <from> <to>",
	Short: "Shows the changes introduced after <from> up to and including <to>.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		product, err := model.ParseProduct(args[0])
		if err != nil {
			return err
		}
		res, err := service.Diff(cmd.Context(), relnotes.DiffRequest{
			Product:   product,
			From:      args[1],
			To:        args[2],
			Connector: diffFlags.connector,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s %s → %s: %d changes in %d versions, %d breaking\n",
			product.DisplayName(), res.From, res.To,
			res.Summary.Total, len(res.Versions), res.Summary.BreakingCount,
		)

		t := newTable()
		t.AppendHeader(table.Row{"Connector", "Version", "Change"})
		if diffFlags.breakingOnly {
			for _, c := range res.Breaking {
				t.AppendRow(table.Row{c.Connector, c.Version, c.Text})
			}
		} else {
			for _, g := range res.Groups {
				for _, c := range g.Changes {
					change := c.Text
					if c.IsBreaking {
						change = text.FgRed.Sprint(change)
					}
					t.AppendRow(table.Row{g.Connector, c.Version, change})
				}
				t.AppendSeparator()
			}
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, AutoMerge: true},
			{Number: 3, WidthMax: 100},
		})
		t.Render()
		return nil
	},
}
