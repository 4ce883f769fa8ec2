package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/toolmux/toolmux/internal/logging"
)

// Kind identifies a wire transport.
type Kind string

const (
	// KindStdio is a child process speaking newline-delimited JSON-RPC
	// over its stdin/stdout pipes.
	KindStdio Kind = "stdio"

	// KindHTTP is the streamable HTTP transport: requests POSTed to the
	// endpoint, responses returned as JSON or an event stream.
	KindHTTP Kind = "http"

	// KindSSE is the legacy event-stream transport: a long-lived GET
	// stream for responses paired with a POST-back endpoint for requests.
	KindSSE Kind = "sse"

	// KindWebSocket is a websocket connection carrying JSON-RPC frames.
	KindWebSocket Kind = "websocket"
)

// Connection is one live protocol session over one underlying transport.
// Implementations perform the initialize handshake during construction, so
// a returned Connection is immediately usable.
//
// Close is idempotent: the first call releases the underlying transport,
// subsequent calls are no-ops. Calls on a closed connection fail with
// [muxerrors.ErrClosed].
type Connection interface {
	// Call sends one JSON-RPC request and returns the raw result. A remote
	// error response is returned as an error, not a result.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Kind reports the wire transport this connection uses.
	Kind() Kind

	// Close releases the underlying transport. Safe to call multiple times.
	Close() error
}

// defaultTimeout bounds a single request's retry budget on the HTTP
// transports. The negotiator's detection probe uses it as its request
// deadline as well.
const defaultTimeout = 30 * time.Second

// Options carries the injected collaborators shared by all transports.
type Options struct {
	// Logger receives connection-level diagnostics. Defaults to a discard
	// logger; never nil after withDefaults.
	Logger *slog.Logger

	// ClientName and ClientVersion identify this client in the initialize
	// handshake and the detection probe.
	ClientName    string
	ClientVersion string

	// HTTPClient is used by the HTTP transports and the detection probe.
	// Defaults to a client with sane transport-level timeouts.
	HTTPClient *http.Client

	// TokenProvider, when set, supplies a bearer token for the
	// Authorization header of URL-based transports that have no explicit
	// Authorization header configured.
	TokenProvider TokenProvider

	// Timeout bounds the retry budget of a single request on the HTTP
	// transports. Zero means defaultTimeout.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewDiscard()
	}
	if o.ClientName == "" {
		o.ClientName = "toolmux"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "dev"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = newHTTPClient()
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// newHTTPClient mirrors the connection pool settings we want against tool
// servers: bounded idle connections and header timeouts so a hung server
// cannot stall initialization forever.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
