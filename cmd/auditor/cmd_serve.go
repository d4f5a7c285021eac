package main

import (
	"github.com/spf13/cobra"

	"auditor/internal/logging"
	mcpserver "auditor/internal/mcp"
	"auditor/internal/telemetry"
	"auditor/internal/wiring"
	"auditor/pkg/framework"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Starts an MCP server over stdin/stdout exposing run_audit, resolve_opinions,
list_runs and get_run. Logs go to stderr.

The server monitors its parent process and exits when the client goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			log := logging.New("mcp")

			shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, telemetry.ServiceName)
			if err != nil {
				log.Warn("tracing disabled", "error", err)
			}
			defer func() { _ = shutdown(ctx) }()

			model, err := wiring.NewModel(ctx, cfg)
			if err != nil {
				return err
			}
			st := openStore(ctx, cfg.DBPath)
			if st != nil {
				defer st.Close()
			}
			srv := mcpserver.NewServer(cfg, wiring.Deps{
				Model:    model,
				Store:    st,
				Observer: &framework.LogObserver{Logger: logging.New("engine")},
				Logger:   log,
			})
			log.Info("starting auditor MCP server over stdio (parent watchdog active)")
			return srv.Serve(ctx)
		},
	}
}
