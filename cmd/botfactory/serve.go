package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/internal/cli"
	httpAdapter "github.com/aretw0/botfactory/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP bot server",
	Long: `Serves every bot found in the specs directory over a JSON API:

  POST /v1/bots/{botID}/messages    deliver a user message
  POST /v1/bots/{botID}/callbacks   deliver a button press
  GET  /v1/bots/{botID}/sessions/{userID}[/events]
  GET  /health, /health/llm, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger)
		if err != nil {
			return fmt.Errorf("error initializing botfactory: %w", err)
		}
		defer rt.Close()

		opts := []httpAdapter.Option{
			httpAdapter.WithSessions(rt.Sessions),
			httpAdapter.WithGatherer(rt.Registry),
			httpAdapter.WithLogger(logger),
		}
		if rt.LLM != nil {
			opts = append(opts, httpAdapter.WithLLMHealth(rt.LLM))
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpAdapter.NewHandler(rt.Engine, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting botfactory server", "addr", srv.Addr, "specs", cfg.Specs.Dir)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sigCtx.Done():
			logger.Info("Start shutdown", "signal", sigCtx.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("botfactory server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
