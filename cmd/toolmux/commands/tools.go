package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/broker"
	"github.com/toolmux/toolmux/pkg/fileutil"
)

var (
	toolsJSON        bool
	toolsOutput      string
	toolsInteractive bool
)

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Output in JSON format")
	toolsCmd.Flags().StringVarP(&toolsOutput, "output", "o", "", "Write the catalog JSON to a file (atomic)")
	toolsCmd.Flags().BoolVarP(&toolsInteractive, "interactive", "i", false, "Pick a tool interactively and show its schema")
	rootCmd.AddCommand(toolsCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List every tool across all configured servers",
	Long: `Connect to every enabled server in the manifest, fetch each tool
catalog, and list the aggregate. Tools appear in server order with each
server's own catalog order preserved.

Schemas are normalized for the provider selected with --provider.`,
	Example: `  # Tabular listing
  toolmux tools

  # Catalog as JSON, normalized for Gemini
  toolmux tools --json --provider gemini

  # Save the catalog for a function-calling registration
  toolmux tools -o catalog.json

  # Browse interactively
  toolmux tools -i`,
	RunE: runTools,
}

// toolJSON is one tool in JSON output form.
type toolJSON struct {
	Name        string         `json:"name"`
	Server      string         `json:"server"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"inputSchema"`
	Changes     int            `json:"schemaChanges,omitempty"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	return withToolSet(cmd, func(_ context.Context, set *broker.ToolSet) error {
		if toolsInteractive {
			return pickTool(cmd.OutOrStdout(), set)
		}
		if toolsOutput != "" {
			return fileutil.AtomicWriteJSON(toolsOutput, catalogJSON(set))
		}
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), catalogJSON(set))
		}
		return writeToolTable(cmd.OutOrStdout(), set)
	})
}

func catalogJSON(set *broker.ToolSet) []toolJSON {
	out := make([]toolJSON, 0, len(set.Tools))
	for _, t := range set.Tools {
		out = append(out, toolJSON{
			Name:        t.Name,
			Server:      t.Server,
			Description: t.Description,
			Schema:      t.Schema,
			Changes:     t.Changes,
		})
	}
	return out
}

func writeToolTable(w io.Writer, set *broker.ToolSet) error {
	if len(set.Tools) == 0 {
		fmt.Fprintln(w, "No tools found.")
		return nil
	}

	kinds := set.Transports()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTRANSPORT\tTOOL\tDESCRIPTION")
	for _, t := range set.Tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Server, kinds[t.Server], t.Name, truncate(t.Description, 60))
	}
	return tw.Flush()
}

func pickTool(w io.Writer, set *broker.ToolSet) error {
	if len(set.Tools) == 0 {
		fmt.Fprintln(w, "No tools found.")
		return nil
	}

	tools := set.Tools
	idx, err := fuzzyfinder.Find(
		tools,
		func(i int) string {
			return fmt.Sprintf("%s:%s", tools[i].Server, tools[i].Name)
		},
		fuzzyfinder.WithPreviewWindow(func(i, width, height int) string {
			if i == -1 {
				return ""
			}
			t := tools[i]
			return fmt.Sprintf("Server: %s\nTool: %s\n\n%s", t.Server, t.Name, t.Description)
		}),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return nil
		}
		return errors.Wrap(err, "interactive selection failed")
	}

	t := tools[idx]
	fmt.Fprintf(w, "%s:%s\n", t.Server, t.Name)
	if t.Description != "" {
		fmt.Fprintln(w, t.Description)
	}
	fmt.Fprintln(w)
	return writeJSON(w, t.Schema)
}
