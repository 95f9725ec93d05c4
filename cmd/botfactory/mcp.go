package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/internal/cli"
	"github.com/aretw0/botfactory/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the bots as MCP tools (send_message, press_button, validate_spec,
list_flows) and their specs as resources.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP, enabled by --mcp-addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger)
		if err != nil {
			return fmt.Errorf("error initializing botfactory: %w", err)
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine, Version, mcp.WithSpecs(rt.Specs), mcp.WithLogger(logger))

		if cfg.MCP.Addr == "" {
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting botfactory MCP server (stdio)")
			return srv.ServeStdio()
		}
		logger.Info("Starting botfactory MCP server (SSE)", "addr", cfg.MCP.Addr)
		return srv.ServeSSE(sigCtx, cfg.MCP.Addr)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("mcp-addr", "", "Serve SSE on this address instead of stdio")
}
