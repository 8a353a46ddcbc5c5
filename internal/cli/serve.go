package cli

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"actas-cli/internal/bulk"
	"actas-cli/internal/catalog"
	"actas-cli/internal/observability"
	"actas-cli/internal/records"
	"actas-cli/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var addr, dsn, catalogPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server of record (HTTP API, /health, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := app.cfg
			if addr != "" {
				cfg.Addr = addr
			}
			if dsn != "" {
				cfg.DatabaseDSN = dsn
			}
			if catalogPath != "" {
				cfg.Catalog = catalogPath
			}

			var store records.Store
			if cfg.DatabaseDSN == "" {
				app.log.Warn("no database configured; actas live in memory only")
				store = records.NewMemory()
			} else {
				g, err := records.OpenPostgres(cfg.DatabaseDSN)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer g.Close()
				store = g
			}

			var cat bulk.Catalog
			if cfg.Catalog != "" {
				c, err := catalog.Load(cfg.Catalog)
				if err != nil {
					return writeErr(cmd, err)
				}
				cat = c
			}

			metrics := observability.NewMetrics()
			backend := server.NewBackend(server.Config{
				Store:   store,
				Catalog: cat,
				Engine:  cfg.Engine(),
				Logger:  app.log,
				Metrics: metrics,
			})
			app.log.Info("serving", slog.String("addr", cfg.Addr), slog.Bool("postgres", cfg.DatabaseDSN != ""),
				slog.String("catalog", cfg.Catalog))
			if err := server.Serve(ctx, server.NewApp(backend, app.log, metrics), cfg.Addr); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (default: in-memory records)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Section catalog YAML/JSON file")
	return cmd
}
