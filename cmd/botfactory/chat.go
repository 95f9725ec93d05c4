package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat <bot-id>",
	Short: "Chat with a bot in the terminal",
	Long: `Starts an interactive session with a bot. Type messages as the user would;
"#N" presses the N-th button of the last reply and "exit" leaves.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		locale, _ := cmd.Flags().GetString("locale")
		jsonMode, _ := cmd.Flags().GetBool("json")
		quiet, _ := cmd.Flags().GetBool("quiet")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger)
		if err != nil {
			return fmt.Errorf("error initializing botfactory: %w", err)
		}
		defer rt.Close()

		if _, err := rt.Specs.LoadSpec(sigCtx, args[0], ""); err != nil {
			return err
		}

		return cli.Chat(sigCtx, rt.Engine, cli.ChatOptions{
			BotID:  args[0],
			UserID: user,
			Locale: locale,
			In:     os.Stdin,
			Out:    os.Stdout,
			JSON:   jsonMode,
			Quiet:  quiet,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("user", "local", "User id to chat as")
	chatCmd.Flags().String("locale", "", "Client locale hint, e.g. pt-BR")
	chatCmd.Flags().Bool("json", false, "Print replies as JSON lines")
	chatCmd.Flags().BoolP("quiet", "q", false, "Suppress the banner and system messages")
}
