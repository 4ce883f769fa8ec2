// Package main is the entry point for the toolmux CLI.
package main

import (
	"os"

	"github.com/toolmux/toolmux/cmd/toolmux/commands"
	"github.com/toolmux/toolmux/internal/errors"
)

func main() {
	// Commands silence cobra's own error printing, so the failure (and its
	// suggestion, if any) is rendered here, once, with the right exit code.
	if err := commands.Execute(); err != nil {
		os.Exit(errors.Render(os.Stderr, err))
	}
}
