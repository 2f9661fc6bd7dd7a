package cli

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List cleaning rules and validators",
		Long: `List the cleaning rules a catalog may name in a column's rules list,
and the validators a table may name, with the fields each validator needs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(getConfig(cmd))
			if err != nil {
				return configError(err)
			}
			out := cmd.OutOrStdout()

			t := newTable(out)
			t.SetTitle("Cleaning rules")
			t.AppendHeader(table.Row{"Rule", "Category", "Description"})
			for _, name := range a.rules.Names() {
				def, _ := a.rules.Lookup(name)
				t.AppendRow(table.Row{def.Name, def.Category, def.Description})
			}
			t.Render()

			v := newTable(out)
			v.SetTitle("Validators")
			v.AppendHeader(table.Row{"Validator", "Required fields"})
			for _, name := range a.validators.Names() {
				fields, _ := a.validators.ExpectedFields(name)
				v.AppendRow(table.Row{name, strings.Join(fields, ", ")})
			}
			v.Render()
			return nil
		},
	}
}
