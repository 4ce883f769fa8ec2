package commands

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/broker"
	"github.com/toolmux/toolmux/internal/tool"
)

var (
	callArgs []string
	callJSON string
)

func init() {
	callCmd.Flags().StringArrayVar(&callArgs, "arg", nil, "Tool argument as key=value (repeatable, values stay strings)")
	callCmd.Flags().StringVar(&callJSON, "json", "", "Tool arguments as a JSON object")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call [server:]tool",
	Short: "Invoke one tool and print its text result",
	Long: `Invoke a tool by name and print the flattened text result. The
server prefix is optional when the tool name is unique across servers.

A failed invocation prints its error text as the result rather than
exiting nonzero; that mirrors how an agent loop consumes tool failures.
Without a tool argument, pick one interactively.`,
	Example: `  # Simple string arguments
  toolmux call files:read --arg path=/etc/hosts

  # Typed arguments
  toolmux call search:query --json '{"q":"golang","limit":5}'

  # Pick the tool interactively
  toolmux call`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	input, err := parseArguments(callJSON, callArgs)
	if err != nil {
		return err
	}

	return withToolSet(cmd, func(ctx context.Context, set *broker.ToolSet) error {
		var target *tool.Tool
		if len(args) == 1 {
			target, err = findTool(set, args[0])
		} else {
			target, err = pickToolForCall(set)
		}
		if err != nil || target == nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), target.Invoke(ctx, input))
		return nil
	})
}

// pickToolForCall fuzzy-picks the tool to invoke. A nil tool with a nil
// error means the picker was aborted.
func pickToolForCall(set *broker.ToolSet) (*tool.Tool, error) {
	if len(set.Tools) == 0 {
		return nil, errors.New("no tools available")
	}

	tools := set.Tools
	idx, err := fuzzyfinder.Find(tools, func(i int) string {
		return fmt.Sprintf("%s:%s", tools[i].Server, tools[i].Name)
	})
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "interactive selection failed")
	}
	return tools[idx], nil
}
