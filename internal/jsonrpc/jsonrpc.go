// Package jsonrpc defines the JSON-RPC 2.0 envelope used by every transport,
// together with the MCP protocol constants and the initialize request shared
// by real session setup and transport detection probes.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

const (
	// Version is the JSON-RPC protocol version carried in every envelope.
	Version = "2.0"

	// ProtocolVersion is the MCP protocol revision this client speaks.
	ProtocolVersion = "2025-06-18"

	// MethodInitialize opens a protocol session. The same request doubles
	// as the transport-detection probe body.
	MethodInitialize = "initialize"

	// MethodToolsList fetches the remote tool catalog.
	MethodToolsList = "tools/list"

	// MethodToolsCall invokes one remote tool by name.
	MethodToolsCall = "tools/call"
)

// Request represents a JSON-RPC request to an MCP server.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// Response represents a JSON-RPC response from an MCP server.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError represents an error object in a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

var idCounter int64

// NextID returns a process-unique request id.
func NextID() int64 {
	return atomic.AddInt64(&idCounter, 1)
}

// NewRequest builds a request envelope with a fresh id.
func NewRequest(method string, params any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      NextID(),
	}
}

// NewInitializeRequest builds the standard MCP initialize request: protocol
// version, empty capabilities, and the client identity.
func NewInitializeRequest(clientName, clientVersion string) Request {
	return NewRequest(MethodInitialize, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
	})
}
