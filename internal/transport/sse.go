package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// endpointWait bounds how long connection setup waits for the server to
// announce its POST-back endpoint on the event stream.
const endpointWait = 10 * time.Second

// SSEConn is a protocol session over the legacy event-stream transport:
// a long-lived GET stream delivers responses while requests are POSTed to
// an endpoint the server announces as the stream's first event.
type SSEConn struct {
	client    *http.Client
	streamURL string
	postURL   string
	headers   http.Header
	opts      Options

	cancel context.CancelFunc
	body   io.Closer

	mu      sync.Mutex
	pending map[int64]chan *jsonrpc.Response
	closed  bool

	done chan struct{}
}

var _ Connection = (*SSEConn)(nil)

// NewSSE opens the event stream, waits for the endpoint announcement, and
// performs the initialize handshake.
func NewSSE(ctx context.Context, server *manifest.Server, opts Options) (*SSEConn, error) {
	opts = opts.withDefaults()

	headers, err := requestHeaders(ctx, server.Headers, opts.TokenProvider)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %q: resolving auth token", server.Name), muxerrors.ErrConnection)
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, server.URL, nil)
	if err != nil {
		cancel()
		return nil, errors.Mark(errors.Wrap(err, "building stream request"), muxerrors.ErrConnection)
	}
	req.Header = headers.Clone()
	req.Header.Set("Accept", "text/event-stream")

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Mark(errors.Wrapf(err, "server %q: opening event stream", server.Name), muxerrors.ErrConnection)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, errors.Mark(errors.Newf("server %q: event stream returned HTTP %d", server.Name, resp.StatusCode), muxerrors.ErrConnection)
	}

	conn := &SSEConn{
		client:    opts.HTTPClient,
		streamURL: server.URL,
		headers:   headers,
		opts:      opts,
		cancel:    cancel,
		body:      resp.Body,
		pending:   make(map[int64]chan *jsonrpc.Response),
		done:      make(chan struct{}),
	}

	endpointCh := make(chan string, 1)
	go conn.readLoop(resp.Body, endpointCh)

	select {
	case endpoint := <-endpointCh:
		postURL, err := resolveEndpoint(server.URL, endpoint)
		if err != nil {
			conn.Close()
			return nil, errors.Mark(errors.Wrapf(err, "server %q: resolving endpoint", server.Name), muxerrors.ErrProtocol)
		}
		conn.postURL = postURL
	case <-conn.done:
		conn.Close()
		return nil, errors.Mark(errors.Newf("server %q: event stream closed before announcing endpoint", server.Name), muxerrors.ErrProtocol)
	case <-time.After(endpointWait):
		conn.Close()
		return nil, errors.Mark(errors.Newf("server %q: timed out waiting for endpoint event", server.Name), muxerrors.ErrProtocol)
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}

	initReq := jsonrpc.NewInitializeRequest(opts.ClientName, opts.ClientVersion)
	initResp, err := conn.roundTrip(ctx, initReq)
	if err != nil {
		conn.Close()
		return nil, errors.Mark(errors.Wrapf(err, "server %q: initialize", server.Name), muxerrors.ErrProtocol)
	}
	if initResp.Error != nil {
		conn.Close()
		return nil, errors.Mark(errors.Wrapf(initResp.Error, "server %q: initialize", server.Name), muxerrors.ErrProtocol)
	}

	opts.Logger.Debug("sse transport ready", "server", server.Name, "url", server.URL)
	return conn, nil
}

// resolveEndpoint resolves the announced endpoint (often a relative path
// with a session query parameter) against the stream URL.
func resolveEndpoint(base, endpoint string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// Kind reports the legacy event-stream transport kind.
func (c *SSEConn) Kind() Kind { return KindSSE }

// Call posts one request to the announced endpoint and waits for its
// response to arrive on the event stream.
func (c *SSEConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, jsonrpc.NewRequest(method, params))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Mark(resp.Error, muxerrors.ErrProtocol)
	}
	return resp.Result, nil
}

func (c *SSEConn) roundTrip(ctx context.Context, req jsonrpc.Request) (*jsonrpc.Response, error) {
	ch := make(chan *jsonrpc.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, muxerrors.ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.postURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	httpReq.Header = c.headers.Clone()

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "POST %s", c.postURL), muxerrors.ErrConnection)
	}
	io.Copy(io.Discard, httpResp.Body)
	httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return nil, &HTTPStatusError{
			StatusCode: httpResp.StatusCode,
			Err:        errors.Newf("HTTP %d from %s", httpResp.StatusCode, c.postURL),
		}
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		return nil, errors.Mark(errors.New("event stream closed while awaiting response"), muxerrors.ErrConnection)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop consumes the event stream, announcing the endpoint event once
// and dispatching message events to their pending callers by request id.
func (c *SSEConn) readLoop(body io.Reader, endpointCh chan<- string) {
	defer close(c.done)

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	var event string
	var data []byte
	flush := func() {
		if len(data) == 0 {
			event = ""
			return
		}
		switch event {
		case "endpoint":
			select {
			case endpointCh <- string(data):
			default:
			}
		default: // "message" or unnamed events carry JSON-RPC payloads
			var resp jsonrpc.Response
			if err := json.Unmarshal(data, &resp); err == nil {
				c.dispatch(&resp)
			} else {
				c.opts.Logger.Debug("discarding unparseable stream event", "error", err)
			}
		}
		event = ""
		data = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLine := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, []byte(dataLine)...)
		}
	}
	flush()
}

func (c *SSEConn) dispatch(resp *jsonrpc.Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// Close cancels the stream and fails any in-flight calls. Safe to call
// multiple times.
func (c *SSEConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.body.Close()
	return nil
}
