package manifest

import (
	"encoding/json"
)

// Transport type constants for MCP server communication.
const (
	// TransportStdio indicates local process communication via stdin/stdout.
	// This is the default transport when a Command is specified.
	TransportStdio = "stdio"

	// TransportHTTP indicates remote server communication via streamable
	// HTTP: JSON-RPC requests POSTed to the endpoint, responses returned as
	// JSON or as an event stream on the same response.
	TransportHTTP = "http"

	// TransportSSE indicates the legacy event-stream transport: a long-lived
	// GET stream for responses paired with a POST-back endpoint for requests.
	TransportSSE = "sse"

	// TransportWebSocket indicates remote server communication over a
	// websocket connection (ws/wss URLs).
	TransportWebSocket = "websocket"

	// TransportAuto leaves the transport unset; URL-based servers are
	// resolved by the HTTP detection probe, command-based servers by stdio.
	TransportAuto = ""
)

// Stderr sink values for local (stdio) servers.
const (
	// StderrInherit routes the child's stderr to this process's stderr.
	StderrInherit = "inherit"

	// StderrDiscard silently drops the child's stderr output.
	StderrDiscard = "discard"
)

// Server represents one remote tool server configuration. Exactly one of
// Command and URL must be set; Validate enforces the union invariants.
type Server struct {
	// Name is the server's unique identifier.
	// This is typically used as the map key in configuration files.
	Name string `json:"name"`

	// Command is the executable path for local (stdio) servers.
	// Required for local servers, empty for remote servers.
	Command string `json:"command,omitempty"`

	// Args are command-line arguments passed to the Command executable.
	// Only applicable for local servers.
	Args []string `json:"args,omitempty"`

	// Env contains environment variables passed to the server process.
	// Only applicable for local servers.
	Env map[string]string `json:"env,omitempty"`

	// Cwd is the working directory for the server process.
	// Only applicable for local servers.
	Cwd string `json:"cwd,omitempty"`

	// Stderr controls where the local server's stderr goes: "inherit",
	// "discard", or a file path. Empty behaves like "inherit".
	Stderr string `json:"stderr,omitempty"`

	// URL is the server endpoint for remote servers.
	// Required for remote servers, empty for local servers.
	URL string `json:"url,omitempty"`

	// Transport specifies the communication protocol: "stdio", "http",
	// "sse", or "websocket". Empty means auto-detect from the config shape.
	Transport string `json:"transport,omitempty"`

	// Headers contains HTTP headers sent on every request for remote
	// transports. Only applicable for remote servers.
	Headers map[string]string `json:"headers,omitempty"`

	// Disabled indicates whether the server is temporarily disabled.
	Disabled bool `json:"disabled,omitempty"`

	// unknownFields stores JSON fields not explicitly defined in this struct.
	// This ensures forward compatibility when manifests add new server fields.
	unknownFields map[string]json.RawMessage
}

// IsLocal returns true if this server uses local (stdio) transport.
// A server is considered local if it has a Command or explicit stdio transport.
func (s *Server) IsLocal() bool {
	if s.Transport == TransportStdio {
		return true
	}
	if s.Transport == TransportAuto && s.Command != "" {
		return true
	}
	return false
}

// IsRemote returns true if this server uses a network transport.
// A server is considered remote if it has a URL or an explicit remote transport.
func (s *Server) IsRemote() bool {
	switch s.Transport {
	case TransportHTTP, TransportSSE, TransportWebSocket:
		return true
	}
	if s.Transport == TransportAuto && s.URL != "" && s.Command == "" {
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler to include unknown fields in output.
func (s *Server) MarshalJSON() ([]byte, error) {
	// Build a map with all fields
	result := make(map[string]any)

	// Copy unknown fields first (so known fields take precedence)
	for k, v := range s.unknownFields {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		result[k] = val
	}

	// Add known fields (only if non-zero to match omitempty behavior)
	result["name"] = s.Name
	if s.Command != "" {
		result["command"] = s.Command
	}
	if len(s.Args) > 0 {
		result["args"] = s.Args
	}
	if len(s.Env) > 0 {
		result["env"] = s.Env
	}
	if s.Cwd != "" {
		result["cwd"] = s.Cwd
	}
	if s.Stderr != "" {
		result["stderr"] = s.Stderr
	}
	if s.URL != "" {
		result["url"] = s.URL
	}
	if s.Transport != "" {
		result["transport"] = s.Transport
	}
	if len(s.Headers) > 0 {
		result["headers"] = s.Headers
	}
	if s.Disabled {
		result["disabled"] = s.Disabled
	}

	return json.Marshal(result)
}

// UnmarshalJSON implements json.Unmarshaler to capture unknown fields.
func (s *Server) UnmarshalJSON(data []byte) error {
	// First, unmarshal into a generic map to capture all fields
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := map[string]any{
		"name":      &s.Name,
		"command":   &s.Command,
		"args":      &s.Args,
		"env":       &s.Env,
		"cwd":       &s.Cwd,
		"stderr":    &s.Stderr,
		"url":       &s.URL,
		"transport": &s.Transport,
		"headers":   &s.Headers,
		"disabled":  &s.Disabled,
	}
	for key, dst := range known {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return err
			}
			delete(raw, key)
		}
	}

	// Accept the Claude Code "type" alias for transport
	if v, ok := raw["type"]; ok && s.Transport == "" {
		if err := json.Unmarshal(v, &s.Transport); err != nil {
			return err
		}
		delete(raw, "type")
	}

	// Store remaining fields as unknown
	if len(raw) > 0 {
		s.unknownFields = raw
	}

	return nil
}

// Manifest represents a set of named server definitions loaded from a
// configuration file. It preserves unknown top-level fields through a
// round-trip.
type Manifest struct {
	// Servers maps server names to their configurations.
	Servers map[string]*Server `json:"servers"`

	// unknownFields stores JSON fields not explicitly defined in this struct.
	unknownFields map[string]json.RawMessage
}

// New creates an empty Manifest with initialized maps.
func New() *Manifest {
	return &Manifest{
		Servers: make(map[string]*Server),
	}
}

// MarshalJSON implements json.Marshaler to include unknown fields in output.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	result := make(map[string]any)

	for k, v := range m.unknownFields {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		result[k] = val
	}

	result["servers"] = m.Servers

	return json.Marshal(result)
}

// UnmarshalJSON implements json.Unmarshaler to capture unknown fields.
// Both the canonical "servers" key and the widespread "mcpServers" key are
// accepted.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, key := range []string{"servers", "mcpServers"} {
		serversData, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(serversData, &m.Servers); err != nil {
			return err
		}
		delete(raw, key)
		break
	}

	if len(raw) > 0 {
		m.unknownFields = raw
	}

	return nil
}
