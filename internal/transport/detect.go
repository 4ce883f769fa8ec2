package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// Detection reports the outcome of transport resolution for diagnostics.
// ProbeStatus is the HTTP status the detection probe observed, or zero when
// no probe ran (explicit transport, non-HTTP scheme, or local server).
type Detection struct {
	Kind        Kind
	ProbeStatus int
}

// Resolve selects and constructs a connection for one server configuration:
//
//   - command-based configs spawn a stdio child process;
//   - an explicit transport is constructed directly, skipping detection;
//   - ws/wss URLs dial the websocket transport;
//   - remaining http/https URLs are probed: a 2xx response selects the
//     streamable HTTP transport, a 4xx (or 4xx-like transport error) falls
//     back to the legacy event-stream transport, anything else is fatal.
//
// The probe is a single attempt; there are no retries inside resolution.
func Resolve(ctx context.Context, server *manifest.Server, opts Options) (Connection, error) {
	opts = opts.withDefaults()

	if err := server.Validate(); err != nil {
		return nil, err
	}

	det, err := Detect(ctx, server, opts)
	if err != nil {
		return nil, err
	}

	switch det.Kind {
	case KindStdio:
		return NewStdio(ctx, server, opts)
	case KindHTTP:
		return NewStreamableHTTP(ctx, server, opts)
	case KindSSE:
		return NewSSE(ctx, server, opts)
	case KindWebSocket:
		return NewWebSocket(ctx, server, opts)
	default:
		return nil, errors.Mark(errors.Newf("server %q: unresolved transport %q", server.Name, det.Kind), muxerrors.ErrConfiguration)
	}
}

// Detect decides which transport Resolve would use without constructing it.
// For auto-detected http/https servers this sends the probe; everything
// else is decided from the config alone.
func Detect(ctx context.Context, server *manifest.Server, opts Options) (Detection, error) {
	opts = opts.withDefaults()

	if err := server.Validate(); err != nil {
		return Detection{}, err
	}

	if server.IsLocal() {
		return Detection{Kind: KindStdio}, nil
	}

	switch server.Transport {
	case manifest.TransportHTTP:
		return Detection{Kind: KindHTTP}, nil
	case manifest.TransportSSE:
		return Detection{Kind: KindSSE}, nil
	case manifest.TransportWebSocket:
		return Detection{Kind: KindWebSocket}, nil
	}

	u, err := url.Parse(server.URL)
	if err != nil {
		return Detection{}, errors.Mark(errors.Wrapf(err, "server %q: parsing url", server.Name), muxerrors.ErrConfiguration)
	}
	if u.Scheme == "ws" || u.Scheme == "wss" {
		return Detection{Kind: KindWebSocket}, nil
	}

	return probe(ctx, server, opts)
}

// probe POSTs a protocol-conformant initialize request to the endpoint and
// classifies the response status. Per the protocol's backward-compatibility
// recommendation, any 4xx means "this endpoint does not speak streamable
// HTTP" and selects the legacy event-stream transport.
func probe(ctx context.Context, server *manifest.Server, opts Options) (Detection, error) {
	headers, err := requestHeaders(ctx, server.Headers, opts.TokenProvider)
	if err != nil {
		return Detection{}, errors.Mark(errors.Wrapf(err, "server %q: resolving auth token", server.Name), muxerrors.ErrConnection)
	}

	body, err := json.Marshal(jsonrpc.NewInitializeRequest(opts.ClientName, opts.ClientVersion))
	if err != nil {
		return Detection{}, errors.Wrap(err, "marshaling probe request")
	}

	probeCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, server.URL, bytes.NewReader(body))
	if err != nil {
		return Detection{}, errors.Wrap(err, "building probe request")
	}
	req.Header = headers

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		// A transport-level error that still smells like a client-side
		// HTTP rejection gets the same legacy fallback as a real 4xx.
		if isClientErrorLike(err) {
			opts.Logger.Debug("probe failed with 4xx-like error, falling back to sse",
				"server", server.Name, "error", err)
			return Detection{Kind: KindSSE}, nil
		}
		return Detection{}, errors.Mark(errors.Wrapf(err, "server %q: transport detection probe", server.Name), muxerrors.ErrConnection)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	det := Detection{ProbeStatus: resp.StatusCode}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		det.Kind = KindHTTP
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The fallback can mask genuine client bugs (a malformed 400 looks
		// the same as a capability mismatch), so keep the status visible.
		opts.Logger.Debug("probe got 4xx, falling back to sse",
			"server", server.Name, "status", resp.StatusCode)
		det.Kind = KindSSE
	default:
		return det, errors.Mark(
			errors.Newf("server %q: transport detection probe returned HTTP %d", server.Name, resp.StatusCode),
			muxerrors.ErrConnection)
	}

	opts.Logger.Debug("transport detected", "server", server.Name, "kind", det.Kind, "status", det.ProbeStatus)
	return det, nil
}

// fourXXPattern matches a bare 4xx status code embedded in an error message.
var fourXXPattern = regexp.MustCompile(`\b4\d{2}\b`)

// clientErrorPhrases are reason phrases that identify a 4xx response even
// when the error carries no status code.
var clientErrorPhrases = []string{
	"unauthorized",
	"forbidden",
	"not found",
	"method not allowed",
	"bad request",
}

// isClientErrorLike reports whether a probe error looks like an HTTP 4xx:
// a status-bearing error in the 400 range, a 4xx code in the message text,
// or a well-known client-error reason phrase.
func isClientErrorLike(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}

	msg := err.Error()
	if fourXXPattern.MatchString(msg) {
		return true
	}

	lower := strings.ToLower(msg)
	for _, phrase := range clientErrorPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
