package cli

import (
	"github.com/JonMunkholm/campusetl/internal/config"
	"github.com/JonMunkholm/campusetl/internal/web"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: `Serve the table catalog and the run ledger as JSON.

Routes:
  GET /healthz
  GET /api/tables                 catalog in pipeline order
  GET /api/tables/{table}         full table configuration
  GET /api/tables/{table}/runs    runs of one table (?status=, ?limit=)
  GET /api/runs                   all runs (?table=, ?status=, ?limit=)
  GET /api/runs/{id}              one run with stage metrics

The server stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			a, err := newApp(cfg)
			if err != nil {
				return configError(err)
			}
			l, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Close()

			a.logger.Info("configuration loaded", "config", cfg.String(), "tables", a.registry.Len())

			srv := web.NewServer(a.registry, l, nil, serverOptions(cfg))
			return srv.Run(cmd.Context(), addr, cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: SERVER_HOST:SERVER_PORT)")
	return cmd
}

func serverOptions(cfg *config.Config) web.Options {
	return web.Options{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
}
