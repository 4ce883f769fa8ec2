// Package transport selects, constructs, and drives the wire transports
// used to speak JSON-RPC with remote tool servers.
//
// Four transports are supported: a child process bridged over stdio pipes,
// streamable HTTP (POST with JSON or event-stream responses), the legacy
// event-stream transport (long-lived GET stream plus a POST-back endpoint),
// and websocket. All four implement [Connection] and perform the protocol's
// initialize handshake during construction.
//
// [Resolve] picks the transport for one server configuration. When the
// configuration names a transport explicitly it is constructed directly;
// otherwise http/https URLs are probed with a single POSTed initialize
// request, where a 2xx selects streamable HTTP and a 4xx falls back to the
// legacy event-stream transport per the protocol's backward-compatibility
// rule. Any other outcome fails the server's initialization. [Detect]
// exposes the same decision without opening a connection, for diagnostics.
package transport
