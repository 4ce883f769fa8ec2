package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/broker"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema [server:]tool",
	Short: "Print a tool's normalized parameter schema",
	Long: `Print the parameter schema of one tool as the selected provider
would receive it, along with the number of rewrites normalization made.
Use --provider to compare dialects.`,
	Example: `  # The schema as Gemini would receive it
  toolmux schema files:read --provider gemini

  # The untouched schema
  toolmux schema files:read --provider anthropic`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	return withToolSet(cmd, func(_ context.Context, set *broker.ToolSet) error {
		target, err := findTool(set, args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if target.Changes > 0 {
			fmt.Fprintf(w, "// %d schema rewrite(s) for this provider\n", target.Changes)
		}
		return writeJSON(w, target.Schema)
	})
}
