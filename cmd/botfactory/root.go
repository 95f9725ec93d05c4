package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/botfactory/internal/config"
	"github.com/aretw0/botfactory/internal/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "botfactory",
	Short: "botfactory runs declarative multi-tenant chat bots",
	Long: `botfactory hosts many bots from JSON or YAML specs. Each bot is a set of flows:
command triggered wizards that collect answers step by step and run actions
(SQL, templated replies, broadcasts, rate limits) when entered or completed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, file)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.FromConfig(cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("specs", "specs", "Directory containing bot specs")
	pf.String("redis-addr", "", "Redis address; empty starts an embedded server")
	pf.String("db", ":memory:", "SQLite database path")
	pf.String("llm-url", "", "OpenAI compatible base URL; empty disables text improvement")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
}
