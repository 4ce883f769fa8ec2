package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/transport"
)

// fakeConn scripts Call responses for one test.
type fakeConn struct {
	call func(method string, params any) (json.RawMessage, error)
}

func (f *fakeConn) Call(_ context.Context, method string, params any) (json.RawMessage, error) {
	return f.call(method, params)
}
func (f *fakeConn) Kind() transport.Kind { return transport.KindStdio }
func (f *fakeConn) Close() error         { return nil }

func bindTestTool(t *testing.T, conn transport.Connection) *Tool {
	t.Helper()
	desc := Descriptor{Name: "search", Description: "find things"}
	normalized, err := schema.Normalize(nil, schema.ProviderAnthropic)
	require.NoError(t, err)
	return Bind(desc, conn, "srv", normalized, nil, logging.ForTest(t))
}

func TestList(t *testing.T) {
	conn := &fakeConn{call: func(method string, _ any) (json.RawMessage, error) {
		assert.Equal(t, "tools/list", method)
		return json.RawMessage(`{"tools":[
			{"name":"zeta","description":"last in name, first in catalog"},
			{"name":"alpha","inputSchema":{"type":"object"}}
		]}`), nil
	}}

	tools, err := List(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	// Catalog order, not name order.
	assert.Equal(t, "zeta", tools[0].Name)
	assert.Equal(t, "alpha", tools[1].Name)
}

func TestList_MalformedCatalog(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`"not a catalog"`), nil
	}}

	_, err := List(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, muxerrors.ErrProtocol))
}

func TestInvoke_JoinsTextBlocks(t *testing.T) {
	conn := &fakeConn{call: func(method string, params any) (json.RawMessage, error) {
		assert.Equal(t, "tools/call", method)
		p := params.(map[string]any)
		assert.Equal(t, "search", p["name"])
		assert.Equal(t, map[string]any{"q": "go"}, p["arguments"])
		return json.RawMessage(`{"content":[
			{"type":"text","text":"first"},
			{"type":"image","data":"..."},
			{"type":"text","text":"second"}
		]}`), nil
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), map[string]any{"q": "go"})
	assert.Equal(t, "first\n\nsecond", got)
}

func TestInvoke_EmptyContent(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"content":[]}`), nil
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), nil)
	assert.Equal(t, "", got)
}

func TestInvoke_NoTextBlocks(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"content":[{"type":"image","data":"..."}]}`), nil
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), nil)
	assert.Equal(t, "No text content available in response", got)
}

func TestInvoke_NetworkErrorIsContained(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return nil, errors.New("connection reset by peer")
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), nil)
	assert.True(t, strings.HasPrefix(got, "Error executing MCP tool:"), "got %q", got)
	assert.Contains(t, got, "connection reset by peer")
}

func TestInvoke_MalformedResultIsContained(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`[1,2,3]`), nil
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), nil)
	assert.True(t, strings.HasPrefix(got, "Error executing MCP tool:"), "got %q", got)
}

func TestInvoke_RemoteErrorResultIsContained(t *testing.T) {
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"isError":true,"content":[{"type":"text","text":"disk full"}]}`), nil
	}}

	got := bindTestTool(t, conn).Invoke(context.Background(), nil)
	assert.True(t, strings.HasPrefix(got, "Error executing MCP tool:"), "got %q", got)
	assert.Contains(t, got, "disk full")
}

func TestInvoke_ValidatorRejectionIsContained(t *testing.T) {
	called := false
	conn := &fakeConn{call: func(string, any) (json.RawMessage, error) {
		called = true
		return json.RawMessage(`{"content":[]}`), nil
	}}

	validator, err := schema.Compile(json.RawMessage(`{
		"type": "object",
		"properties": {"q": {"type": "string"}},
		"required": ["q"]
	}`))
	require.NoError(t, err)

	desc := Descriptor{Name: "search"}
	normalized, err := schema.Normalize(nil, schema.ProviderAnthropic)
	require.NoError(t, err)
	tl := Bind(desc, conn, "srv", normalized, validator, logging.ForTest(t))

	got := tl.Invoke(context.Background(), map[string]any{"wrong": true})
	assert.True(t, strings.HasPrefix(got, "Error executing MCP tool:"), "got %q", got)
	assert.False(t, called, "remote call skipped when arguments are invalid")
}
