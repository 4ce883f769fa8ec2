package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/manifest"
	"github.com/toolmux/toolmux/internal/transport"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Report which transport a URL would get",
	Long: `Run transport detection against a URL and report the outcome
without opening a session. For http/https URLs this sends the real
detection probe: a 2xx selects the streamable HTTP transport, a 4xx
selects the legacy event-stream fallback. The probe's HTTP status is
printed so a fallback caused by a client-side mistake (a 400, say) is
visible rather than silent.`,
	Example: `  toolmux probe https://tools.example.com/mcp
  toolmux probe wss://tools.example.com/socket`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	server := &manifest.Server{Name: "probe", URL: args[0]}

	det, err := transport.Detect(cmd.Context(), server, transport.Options{
		Logger:        logging.FromContext(cmd.Context()),
		ClientName:    "toolmux",
		ClientVersion: version,
		Timeout:       requestTimeout(),
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "transport: %s\n", det.Kind)
	if det.ProbeStatus != 0 {
		fmt.Fprintf(w, "probe status: %d\n", det.ProbeStatus)
	} else {
		fmt.Fprintln(w, "probe status: not probed")
	}
	return nil
}
