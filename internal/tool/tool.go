package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/transport"
)

// noTextContent is returned when a call succeeded and produced content, but
// none of it was text. It is distinct from the empty string a no-content
// result produces, so callers can tell the two apart.
const noTextContent = "No text content available in response"

// Descriptor is one tool as reported by a server's catalog.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listResult struct {
	Tools []Descriptor `json:"tools"`
}

// contentBlock is one entry of a tools/call result. Only text blocks are
// consumed; everything else is skipped.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// List fetches the server's tool catalog, preserving catalog order.
func List(ctx context.Context, conn transport.Connection) ([]Descriptor, error) {
	raw, err := conn.Call(ctx, jsonrpc.MethodToolsList, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing tools")
	}

	var result listResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding tool catalog"), muxerrors.ErrProtocol)
	}
	return result.Tools, nil
}

// Tool is one remote tool bound to a live connection, publishing a
// provider-safe schema and an Invoke that never fails.
type Tool struct {
	Name        string
	Description string
	Server      string

	// Schema is the normalized parameter schema for the configured provider.
	Schema map[string]any

	// Changes counts the schema rewrites normalization made, for diagnostics.
	Changes int

	conn      transport.Connection
	validator *schema.Validator
	logger    *slog.Logger
}

// Bind wraps one descriptor and its connection into a Tool.
func Bind(desc Descriptor, conn transport.Connection, serverName string, normalized schema.Result, validator *schema.Validator, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Tool{
		Name:        desc.Name,
		Description: desc.Description,
		Server:      serverName,
		Schema:      normalized.Schema,
		Changes:     normalized.Changes,
		conn:        conn,
		validator:   validator,
		logger:      logger,
	}
}

// Invoke calls the remote tool and flattens the result to text: text blocks
// joined with blank lines, an empty string for a no-content result, or the
// no-text sentinel when content exists but none of it is text.
//
// Invocation failures never surface as errors. A dropped connection, a
// remote error result, or a malformed response all come back as a
// descriptive string, so a calling agent loop treats the failure as an
// observation rather than a crash.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) string {
	t.logger.Debug("invoking tool", "tool", t.Name, "server", t.Server, "input", args)

	if t.validator != nil {
		if err := t.validator.Validate(args); err != nil {
			return t.contain(err)
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := t.conn.Call(ctx, jsonrpc.MethodToolsCall, map[string]any{
		"name":      t.Name,
		"arguments": args,
	})
	if err != nil {
		return t.contain(err)
	}

	var result callResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return t.contain(errors.Wrap(err, "decoding tool result"))
	}

	text := flatten(result.Content)
	if result.IsError {
		return t.contain(errors.Newf("tool reported an error: %s", text))
	}

	t.logger.Debug("tool result", "tool", t.Name, "server", t.Server, "bytes", len(text))
	return text
}

// contain converts an invocation failure into its textual form.
func (t *Tool) contain(err error) string {
	t.logger.Debug("tool invocation failed", "tool", t.Name, "server", t.Server, "error", err)
	return fmt.Sprintf("Error executing MCP tool: %v", err)
}

// flatten joins the text blocks of a result with blank-line separators. A
// result with no content at all flattens to the empty string; a result
// whose content carries no text flattens to the sentinel.
func flatten(content []contentBlock) string {
	if len(content) == 0 {
		return ""
	}

	var parts []string
	for _, block := range content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	joined := strings.Join(parts, "\n\n")
	if joined == "" {
		return noTextContent
	}
	return joined
}
