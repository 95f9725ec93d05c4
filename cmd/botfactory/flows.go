package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aretw0/botfactory/internal/presentation/graph"
	"github.com/aretw0/botfactory/pkg/adapters/file"
)

var flowsCmd = &cobra.Command{
	Use:   "flows <bot-id>",
	Short: "List the flows of a bot",
	Long:  `Prints the flows of a bot as a table, or as a Mermaid flowchart with --mermaid.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("version")
		mermaid, _ := cmd.Flags().GetBool("mermaid")

		spec, err := file.NewLoader(cfg.Specs.Dir).LoadSpec(cmd.Context(), args[0], version)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if mermaid {
			fmt.Fprint(out, graph.GenerateMermaid(spec, nil))
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(out)
		tw.SetTitle(fmt.Sprintf("%s (version %s)", spec.BotID, spec.Version))
		tw.AppendHeader(table.Row{"Command", "Kind", "Steps", "On Enter", "On Complete"})
		for i := range spec.Flows {
			f := &spec.Flows[i]
			tw.AppendRow(table.Row{f.EntryCmd, f.Kind(), len(f.Steps), len(f.OnEnter), len(f.OnComplete)})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.Flags().String("version", "", "Spec version; empty selects the latest")
	flowsCmd.Flags().Bool("mermaid", false, "Print a Mermaid flowchart")
}
