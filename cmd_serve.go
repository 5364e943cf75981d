package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/vidserver"
)

func newServeCommand(tuning *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *tuning)
		},
	}
}

func runServe(ctx context.Context, tuning string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(tuning)
	if err != nil {
		return err
	}
	a := newApp(ctx, cfg, appOptions{history: true})
	defer a.Close()

	port := env.Str("MCP_PORT", "8893")
	slog.Info("starting go_vidsearch", slog.String("port", port))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_vidsearch",
		Version: version,
	}, nil)
	vidserver.RegisterTools(server, vidserver.Deps{Service: a.service, Cache: a.cache})
	slog.Info("tools registered", slog.Int("count", vidserver.ToolCount))

	return mcpserver.Run(server, mcpserver.Config{
		Name:         "go_vidsearch",
		Version:      version,
		Port:         port,
		WriteTimeout: cfg.SearchTimeout + 30*time.Second,
		Metrics:      engine.FormatMetrics,
	})
}
