package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/pkg/adapters/sqlite"
)

var i18nCmd = &cobra.Command{
	Use:   "i18n",
	Short: "Manage translated bot texts",
}

var i18nSetCmd = &cobra.Command{
	Use:   "set <bot-id> <locale> <key> <value>",
	Short: "Store the translation of a text key",
	Long:  `Stores a translation used by "t:key" texts. Values may hold {name} placeholders.`,
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			return err
		}
		if err := sqlite.PutTranslation(ctx, db, args[0], args[1], args[2], args[3]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s/%s/%s\n", args[0], args[1], args[2])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(i18nCmd)
	i18nCmd.AddCommand(i18nSetCmd)
}
