package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coder/websocket"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// mcpSubprotocol is the websocket subprotocol requested for MCP sessions.
const mcpSubprotocol = "mcp"

// WSConn is a protocol session over a websocket connection.
type WSConn struct {
	conn *websocket.Conn
	opts Options

	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[int64]chan *jsonrpc.Response
	closed  bool

	done chan struct{}
}

var _ Connection = (*WSConn)(nil)

// NewWebSocket dials the server and performs the initialize handshake.
func NewWebSocket(ctx context.Context, server *manifest.Server, opts Options) (*WSConn, error) {
	opts = opts.withDefaults()

	headers, err := requestHeaders(ctx, server.Headers, opts.TokenProvider)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %q: resolving auth token", server.Name), muxerrors.ErrConnection)
	}
	// Content negotiation headers are meaningless on a websocket upgrade.
	headers.Del("Content-Type")
	headers.Del("Accept")

	ws, _, err := websocket.Dial(ctx, server.URL, &websocket.DialOptions{
		HTTPClient:   opts.HTTPClient,
		HTTPHeader:   http.Header(headers),
		Subprotocols: []string{mcpSubprotocol},
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %q: dialing websocket", server.Name), muxerrors.ErrConnection)
	}
	// Tool results can be large; do not let the library's 32KB default
	// reject them.
	ws.SetReadLimit(16 * 1024 * 1024)

	readCtx, cancel := context.WithCancel(context.Background())
	conn := &WSConn{
		conn:    ws,
		opts:    opts,
		cancel:  cancel,
		pending: make(map[int64]chan *jsonrpc.Response),
		done:    make(chan struct{}),
	}
	go conn.readLoop(readCtx)

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

	opts.Logger.Debug("websocket transport ready", "server", server.Name, "url", server.URL)
	return conn, nil
}

// Kind reports the websocket transport kind.
func (c *WSConn) Kind() Kind { return KindWebSocket }

// Call writes one request frame and waits for the frame carrying the
// matching id.
func (c *WSConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, jsonrpc.NewRequest(method, params))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Mark(resp.Error, muxerrors.ErrProtocol)
	}
	return resp.Result, nil
}

func (c *WSConn) roundTrip(ctx context.Context, req jsonrpc.Request) (*jsonrpc.Response, error) {
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

	frame, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "writing frame"), muxerrors.ErrConnection)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		return nil, errors.Mark(errors.New("websocket closed while awaiting response"), muxerrors.ErrConnection)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop consumes frames, dispatching responses to pending callers by id.
// Frames without a pending caller (notifications) are dropped.
func (c *WSConn) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		_, frame, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var resp jsonrpc.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			c.opts.Logger.Debug("discarding unparseable frame", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- &resp:
			default:
			}
		}
	}
}

// Close closes the websocket and fails any in-flight calls. Safe to call
// multiple times.
func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	return nil
}
