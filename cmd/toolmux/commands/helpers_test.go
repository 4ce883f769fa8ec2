package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolmux/toolmux/internal/broker"
	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/tool"
	"github.com/toolmux/toolmux/internal/transport"
)

type stubConn struct{}

func (stubConn) Call(context.Context, string, any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (stubConn) Kind() transport.Kind { return transport.KindStdio }
func (stubConn) Close() error         { return nil }

func stubTool(t *testing.T, server, name string) *tool.Tool {
	t.Helper()
	normalized, err := schema.Normalize(nil, schema.ProviderAnthropic)
	require.NoError(t, err)
	return tool.Bind(tool.Descriptor{Name: name}, stubConn{}, server, normalized, nil, logging.ForTest(t))
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		jsonArg string
		kvArgs  []string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "empty",
			want: map[string]any{},
		},
		{
			name:   "key=value pairs",
			kvArgs: []string{"path=/tmp", "mode=fast"},
			want:   map[string]any{"path": "/tmp", "mode": "fast"},
		},
		{
			name:    "json object",
			jsonArg: `{"limit": 5}`,
			want:    map[string]any{"limit": float64(5)},
		},
		{
			name:    "kv overrides json",
			jsonArg: `{"path": "/old"}`,
			kvArgs:  []string{"path=/new"},
			want:    map[string]any{"path": "/new"},
		},
		{
			name:   "value containing equals",
			kvArgs: []string{"expr=a=b"},
			want:   map[string]any{"expr": "a=b"},
		},
		{
			name:    "malformed kv",
			kvArgs:  []string{"noequals"},
			wantErr: true,
		},
		{
			name:    "malformed json",
			jsonArg: `[1,2]`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArguments(tt.jsonArg, tt.kvArgs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitToolRef(t *testing.T) {
	server, name := splitToolRef("files:read")
	assert.Equal(t, "files", server)
	assert.Equal(t, "read", name)

	server, name = splitToolRef("read")
	assert.Empty(t, server)
	assert.Equal(t, "read", name)
}

func TestFindTool(t *testing.T) {
	set := &broker.ToolSet{Tools: []*tool.Tool{
		stubTool(t, "files", "read"),
		stubTool(t, "web", "read"),
		stubTool(t, "web", "fetch"),
	}}

	t.Run("qualified", func(t *testing.T) {
		got, err := findTool(set, "files:read")
		require.NoError(t, err)
		assert.Equal(t, "files", got.Server)
	})

	t.Run("unqualified unique", func(t *testing.T) {
		got, err := findTool(set, "fetch")
		require.NoError(t, err)
		assert.Equal(t, "web", got.Server)
	})

	t.Run("unqualified ambiguous", func(t *testing.T) {
		_, err := findTool(set, "read")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "several servers")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := findTool(set, "files:missing")
		assert.True(t, errors.Is(err, muxerrors.ErrToolNotFound))
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "multi line", truncate("multi\nline", 20))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestWriteToolTable(t *testing.T) {
	set := &broker.ToolSet{Tools: []*tool.Tool{
		stubTool(t, "files", "read"),
		stubTool(t, "files", "write"),
	}}

	var buf bytes.Buffer
	require.NoError(t, writeToolTable(&buf, set))

	out := buf.String()
	assert.Contains(t, out, "SERVER")
	assert.Contains(t, out, "read")
	assert.Contains(t, out, "write")
}

func TestWriteToolTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeToolTable(&buf, &broker.ToolSet{}))
	assert.Contains(t, buf.String(), "No tools found.")
}

func TestConnectAll_MissingManifest(t *testing.T) {
	orig := manifestFlag
	manifestFlag = filepath.Join(t.TempDir(), "missing.json")
	defer func() { manifestFlag = orig }()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, err := connectAll(cmd)
	require.Error(t, err)

	var exitErr *muxerrors.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, muxerrors.ExitSystem, exitErr.Code)
	assert.Contains(t, exitErr.Suggestion, manifestFlag)
}

func TestResolveProvider(t *testing.T) {
	orig := providerFlag
	defer func() { providerFlag = orig }()

	providerFlag = "gemini"
	p, err := resolveProvider()
	require.NoError(t, err)
	assert.Equal(t, schema.ProviderGemini, p)

	providerFlag = "OpenAI"
	p, err = resolveProvider()
	require.NoError(t, err)
	assert.Equal(t, schema.ProviderOpenAI, p)

	providerFlag = "banana"
	_, err = resolveProvider()
	require.Error(t, err)
}
