package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/internal/validator"
	"github.com/aretw0/botfactory/pkg/adapters/file"
)

var errInvalidSpecs = errors.New("invalid specs")

var validateCmd = &cobra.Command{
	Use:   "validate [bot-id...]",
	Short: "Check bot specs for consistency",
	Long: `Lints the given bots, or every bot in the specs directory, and reports
malformed commands, bad patterns, unknown actions and unsafe SQL.
Warnings are reported but do not fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := file.NewLoader(cfg.Specs.Dir)
		bots := args
		if len(bots) == 0 {
			found, err := loader.Bots()
			if err != nil {
				return err
			}
			bots = found
		}
		if len(bots) == 0 {
			return fmt.Errorf("no bot specs found in %s", cfg.Specs.Dir)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.AppendHeader(table.Row{"Bot", "Severity", "Path", "Reason"})

		rows, failed := 0, false
		for _, bot := range bots {
			spec, err := loader.LoadSpec(cmd.Context(), bot, "")
			if err != nil {
				tw.AppendRow(table.Row{bot, validator.SeverityError, "", err.Error()})
				rows++
				failed = true
				continue
			}
			for _, issue := range validator.Lint(spec) {
				tw.AppendRow(table.Row{bot, issue.Severity, issue.Path, issue.Reason})
				rows++
				if issue.Severity == validator.SeverityError {
					failed = true
				}
			}
		}

		if rows > 0 {
			tw.Render()
		}
		if failed {
			return errInvalidSpecs
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d spec(s) valid! ✅\n", len(bots))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
