package commands

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/toolmux/toolmux/internal/broker"
	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/manifest"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/tool"
	"github.com/toolmux/toolmux/internal/transport"
)

// resolveProvider picks the normalization target from the flag, falling back
// to the config file default.
func resolveProvider() (schema.Provider, error) {
	name := providerFlag
	if name == "" && cfg != nil {
		name = cfg.Provider
	}
	if name == "" {
		return schema.ProviderAnthropic, nil
	}

	p := schema.Provider(strings.ToLower(name))
	for _, known := range schema.Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", muxerrors.NewUserError(
		errors.Newf("unknown provider %q", name),
		"valid providers: openai, gemini, anthropic")
}

// manifestPath returns the manifest location from the flag or the config.
func manifestPath() string {
	if manifestFlag != "" {
		return manifestFlag
	}
	if cfg != nil {
		return cfg.Manifest
	}
	return ""
}

// requestTimeout returns the configured per-request retry budget.
func requestTimeout() time.Duration {
	if cfg != nil && cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 0
}

// connectAll loads the manifest and initializes every enabled server.
func connectAll(cmd *cobra.Command) (*broker.ToolSet, error) {
	provider, err := resolveProvider()
	if err != nil {
		return nil, err
	}

	m, err := manifest.Load(manifestPath())
	if err != nil {
		return nil, muxerrors.NewSystemError(err, "check the manifest at "+manifestPath())
	}

	servers := make([]manifest.Server, 0, len(m.Servers))
	for _, s := range m.Enabled() {
		servers = append(servers, *s)
	}
	if len(servers) == 0 {
		return nil, muxerrors.NewUserError(
			errors.New("manifest has no enabled servers"),
			"add a server to "+manifestPath())
	}

	logger := logging.FromContext(cmd.Context())
	return broker.InitializeAll(cmd.Context(), servers, broker.Options{
		Provider: provider,
		Logger:   logger,
		Transport: transport.Options{
			Logger:        logger,
			ClientName:    "toolmux",
			ClientVersion: version,
			Timeout:       requestTimeout(),
		},
	})
}

// splitToolRef splits a "server:tool" reference. The server part is
// optional when the tool name is unambiguous across servers.
func splitToolRef(ref string) (server, name string) {
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// findTool resolves a tool reference against the aggregate tool set.
func findTool(set *broker.ToolSet, ref string) (*tool.Tool, error) {
	server, name := splitToolRef(ref)

	var matches []*tool.Tool
	for _, t := range set.Tools {
		if t.Name != name {
			continue
		}
		if server != "" && t.Server != server {
			continue
		}
		matches = append(matches, t)
	}

	switch len(matches) {
	case 0:
		return nil, errors.Mark(errors.Newf("no tool %q", ref), muxerrors.ErrToolNotFound)
	case 1:
		return matches[0], nil
	default:
		var servers []string
		for _, t := range matches {
			servers = append(servers, t.Server)
		}
		return nil, muxerrors.NewUserError(
			errors.Newf("tool %q exists on several servers: %s", name, strings.Join(servers, ", ")),
			"qualify it as server:tool")
	}
}

// parseArguments merges --json and --arg inputs into one argument map. The
// --arg values stay strings; use --json when a tool needs typed values.
func parseArguments(jsonArg string, kvArgs []string) (map[string]any, error) {
	args := map[string]any{}

	if jsonArg != "" {
		if err := json.Unmarshal([]byte(jsonArg), &args); err != nil {
			return nil, muxerrors.NewUserError(
				errors.Wrap(err, "parsing --json"),
				"pass a JSON object, e.g. --json '{\"path\":\"/tmp\"}'")
		}
	}

	for _, kv := range kvArgs {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, muxerrors.NewUserError(
				errors.Newf("malformed --arg %q", kv),
				"use --arg key=value")
		}
		args[key] = value
	}

	return args, nil
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling output")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// truncate shortens s to at most n runes for tabular display.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// withToolSet runs fn against a connected tool set and always releases it.
func withToolSet(cmd *cobra.Command, fn func(ctx context.Context, set *broker.ToolSet) error) error {
	set, err := connectAll(cmd)
	if err != nil {
		return err
	}
	defer set.Close()

	return fn(cmd.Context(), set)
}
