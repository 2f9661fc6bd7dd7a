// Package cli provides the campusetl command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/campusetl/internal/config"
	"github.com/JonMunkholm/campusetl/internal/logging"
	"github.com/JonMunkholm/campusetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "campusetl",
		Short: "campusetl - staged ETL for legacy university exports",
		Long: `campusetl imports legacy CSV exports (students, classes, enrollments,
receipts) through four stages: raw import, profiling, cleaning and
validation. Tables run in dependency order and every run is recorded in
the run ledger.

Settings come from the environment (or a .env file); flags override them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return &ExitError{Code: ExitConfig, Err: err}
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return &ExitError{Code: ExitConfig, Err: err}
			}

			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().String("catalog", "", "Table catalog file, YAML or TOML (default: built-in tables)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// applyFlags lays persistent flags over the environment configuration and
// validates the result.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.Pipeline.Catalog, _ = flags.GetString("catalog")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	return cfg.Validate()
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if pipeline.IsUserFacing(err) {
		fmt.Fprintln(os.Stderr, pipeline.FormatUserError(err))
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitFailure
}

// getConfig retrieves the config from the command context.
func getConfig(cmd *cobra.Command) *config.Config {
	if c, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return c
	}
	panic("cli: configuration not loaded")
}
