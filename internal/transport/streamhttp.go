package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// sessionHeader carries the server-assigned session id on the streamable
// HTTP transport.
const sessionHeader = "Mcp-Session-Id"

// HTTPConn is a protocol session over the streamable HTTP transport: every
// request is a POST whose response arrives either as a JSON body or as a
// short event stream on the same response.
type HTTPConn struct {
	client  *http.Client
	url     string
	headers http.Header
	opts    Options

	mu        sync.Mutex
	sessionID string
	closed    bool
}

var _ Connection = (*HTTPConn)(nil)

// NewStreamableHTTP constructs the transport and performs the initialize
// handshake against the endpoint.
func NewStreamableHTTP(ctx context.Context, server *manifest.Server, opts Options) (*HTTPConn, error) {
	opts = opts.withDefaults()

	headers, err := requestHeaders(ctx, server.Headers, opts.TokenProvider)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %q: resolving auth token", server.Name), muxerrors.ErrConnection)
	}

	conn := &HTTPConn{
		client:  opts.HTTPClient,
		url:     server.URL,
		headers: headers,
		opts:    opts,
	}

	initReq := jsonrpc.NewInitializeRequest(opts.ClientName, opts.ClientVersion)
	resp, err := conn.send(ctx, initReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %q: initialize", server.Name), muxerrors.ErrConnection)
	}
	if resp.Error != nil {
		return nil, errors.Mark(errors.Wrapf(resp.Error, "server %q: initialize", server.Name), muxerrors.ErrProtocol)
	}

	opts.Logger.Debug("streamable http transport ready", "server", server.Name, "url", server.URL)
	return conn, nil
}

// Kind reports the streamable HTTP transport kind.
func (c *HTTPConn) Kind() Kind { return KindHTTP }

// Call sends one request, retrying transient failures with exponential
// backoff bounded by Options.Timeout.
func (c *HTTPConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.send(ctx, jsonrpc.NewRequest(method, params))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Mark(resp.Error, muxerrors.ErrProtocol)
	}
	return resp.Result, nil
}

func (c *HTTPConn) send(ctx context.Context, req jsonrpc.Request) (*jsonrpc.Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, muxerrors.ErrClosed
	}

	var resp *jsonrpc.Response

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.opts.Timeout

	err := backoff.Retry(func() error {
		var err error
		resp, err = c.sendOnce(ctx, req)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	return resp, err
}

func (c *HTTPConn) sendOnce(ctx context.Context, req jsonrpc.Request) (*jsonrpc.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	httpReq.Header = c.headers.Clone()

	c.mu.Lock()
	if c.sessionID != "" {
		httpReq.Header.Set(sessionHeader, c.sessionID)
	}
	c.mu.Unlock()

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "POST %s", c.url), muxerrors.ErrConnection)
	}
	defer httpResp.Body.Close()

	if id := httpResp.Header.Get(sessionHeader); id != "" {
		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
	}

	if httpResp.StatusCode >= 400 {
		detail, readErr := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		if readErr != nil {
			detail = []byte("(unreadable body)")
		}
		return nil, &HTTPStatusError{
			StatusCode: httpResp.StatusCode,
			Err:        errors.Newf("HTTP %d from %s: %s", httpResp.StatusCode, c.url, string(detail)),
		}
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return parseEventStream(ctx, httpResp.Body)
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding response (body: %.200s)", string(raw)), muxerrors.ErrProtocol)
	}
	return &resp, nil
}

// Close releases pooled connections. Safe to call multiple times.
func (c *HTTPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}

// HTTPStatusError wraps an HTTP-level failure with its status code so the
// retry classifier and the detection heuristic can branch on it.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return e.Err.Error()
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether a request failure is worth retrying: rate
// limiting and server-side errors are, client errors and context
// cancellation are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	// Most dial failures are transient; retry within the backoff budget.
	return errors.Is(err, muxerrors.ErrConnection)
}

// parseEventStream reads a short-lived SSE response body and returns the
// JSON-RPC response assembled from its data lines.
func parseEventStream(ctx context.Context, body io.Reader) (*jsonrpc.Response, error) {
	scanner := bufio.NewScanner(body)
	// Schemas embedded in tool catalogs can blow past the default 64KB.
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	var data []byte
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			dataLine := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if dataLine != "" {
				if len(data) > 0 {
					data = append(data, '\n')
				}
				data = append(data, []byte(dataLine)...)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reading event stream"), muxerrors.ErrConnection)
	}

	if len(data) == 0 {
		return nil, errors.Mark(errors.New("no data in event stream response"), muxerrors.ErrProtocol)
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing event stream data"), muxerrors.ErrProtocol)
	}
	return &resp, nil
}
