// Package manifest defines the canonical server configuration for toolmux
// and loads it from JSON, YAML, or TOML manifest files.
//
// A server configuration is a tagged union: local servers carry a command
// to spawn, remote servers carry a URL, and a server may name an explicit
// transport (stdio, http, sse, websocket) or leave it empty for the
// transport negotiator to detect. [Server.Validate] rejects configs that
// set both or neither side of the union, or whose explicit transport is
// inconsistent with the URL scheme, before any connection is attempted.
//
// JSON manifests preserve unknown fields through a round-trip so that
// manifests shared with other MCP clients survive unharmed. Both the
// canonical "servers" key and the widespread "mcpServers" key are accepted.
package manifest
