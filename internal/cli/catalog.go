package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the table catalog",
	}
	cmd.AddCommand(newCatalogOrderCommand())
	cmd.AddCommand(newCatalogShowCommand())
	cmd.AddCommand(newCatalogCheckCommand())
	return cmd
}

func newCatalogOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the pipeline order and execution levels",
		Long: `Print every table in the order the pipeline runs them. Tables in the
same level do not depend on each other and may run in parallel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(getConfig(cmd))
			if err != nil {
				return configError(err)
			}
			order, err := a.registry.PipelineOrder()
			if err != nil {
				return configError(err)
			}
			levels, err := a.registry.ExecutionLevels(nil)
			if err != nil {
				return configError(err)
			}
			return renderOrder(cmd.OutOrStdout(), a.registry, order, levels)
		},
	}
}

func renderOrder(w io.Writer, reg *catalog.Registry, order []string, levels [][]string) error {
	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, t := range level {
			levelOf[t] = i + 1
		}
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Table", "Level", "Source", "Depends on"})
	for i, name := range order {
		cfg, err := reg.Get(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{i + 1, name, levelOf[name], cfg.SourceFilePattern, strings.Join(cfg.Dependencies, ", ")})
	}
	t.Render()
	return nil
}

// catalogDoc matches the catalog file layout, so show output can be saved
// and loaded with --catalog.
type catalogDoc struct {
	Tables []catalog.TableConfig `yaml:"tables"`
}

func newCatalogShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [tables...]",
		Short: "Print table configurations as YAML",
		Long: `Print the configuration of the named tables, or of every table, as a
YAML catalog file. The output can be edited and passed back with --catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(getConfig(cmd))
			if err != nil {
				return configError(err)
			}

			names := args
			if len(names) == 0 {
				if names, err = a.registry.PipelineOrder(); err != nil {
					return configError(err)
				}
			}

			var doc catalogDoc
			for _, name := range names {
				cfg, err := a.registry.Get(name)
				if err != nil {
					return configError(err)
				}
				doc.Tables = append(doc.Tables, cfg)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newCatalogCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the catalog and compile every table",
		Long: `Load the catalog, check rule and validator names, dependencies and
quality settings, then compile each table's cleaning plan and validator.
Every problem is reported; the exit code is 2 when any is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			a, err := newApp(getConfig(cmd))
			if err != nil {
				printProblems(out, err)
				return configError(errors.New("catalog check failed"))
			}

			var problems []error
			if _, err := a.registry.PipelineOrder(); err != nil {
				problems = append(problems, err)
			}
			deps := a.deps(nil, nil)
			for _, name := range a.registry.List() {
				if _, err := pipeline.New(deps, name, 0); err != nil {
					problems = append(problems, fmt.Errorf("%s: %w", name, err))
				}
			}

			if len(problems) > 0 {
				printProblems(out, errors.Join(problems...))
				return configError(errors.New("catalog check failed"))
			}
			fmt.Fprintf(out, "catalog OK: %d tables\n", a.registry.Len())
			return nil
		},
	}
}

// printProblems writes one line per joined error with its support code.
func printProblems(w io.Writer, err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  [%s] %v\n", pipeline.MapError(e).Code, e)
	}
}
