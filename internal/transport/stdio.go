package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/jsonrpc"
	"github.com/toolmux/toolmux/internal/manifest"
)

// stdioReadBuffer sizes the stdout reader. Tool catalogs with embedded
// schemas routinely exceed bufio's default 64KB line limit.
const stdioReadBuffer = 10 * 1024 * 1024

// closeWait bounds how long Close waits for the child to exit after stdin
// closes before killing it.
const closeWait = 5 * time.Second

// StdioConn is a protocol session over a child process's stdin/stdout pipes.
type StdioConn struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	encoder *json.Encoder
	decoder *json.Decoder
	stderr  io.Closer // file sink, if any

	mu     sync.Mutex
	closed bool
}

var _ Connection = (*StdioConn)(nil)

// NewStdio spawns the configured command and performs the initialize
// handshake over its pipes. The child's environment is exactly the
// configured env; PATH is injected from the parent only when the config
// did not set one.
func NewStdio(ctx context.Context, server *manifest.Server, opts Options) (*StdioConn, error) {
	opts = opts.withDefaults()

	if server.Command == "" {
		return nil, errors.Mark(errors.Newf("server %q: no command for stdio transport", server.Name), muxerrors.ErrConfiguration)
	}

	cmd := exec.Command(server.Command, server.Args...)
	cmd.Dir = server.Cwd
	cmd.Env = buildEnv(server.Env)

	var stderrFile io.Closer
	switch server.Stderr {
	case manifest.StderrDiscard:
		// exec leaves nil stderr attached to /dev/null
	case manifest.StderrInherit, "":
		cmd.Stderr = os.Stderr
	default:
		f, err := os.OpenFile(server.Stderr, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "server %q: opening stderr sink", server.Name), muxerrors.ErrConnection)
		}
		cmd.Stderr = f
		stderrFile = f
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "creating stdin pipe"), muxerrors.ErrConnection)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "creating stdout pipe"), muxerrors.ErrConnection)
	}

	// When stderr is discarded we still capture a small buffer so a failed
	// initialize can say why the child died.
	var diagnostics *bytes.Buffer
	if cmd.Stderr == nil {
		diagnostics = &bytes.Buffer{}
		cmd.Stderr = diagnostics
	}

	if err := cmd.Start(); err != nil {
		if stderrFile != nil {
			stderrFile.Close()
		}
		return nil, errors.Mark(errors.Wrapf(err, "server %q: starting command", server.Name), muxerrors.ErrConnection)
	}

	conn := &StdioConn{
		cmd:     cmd,
		stdin:   stdin,
		encoder: json.NewEncoder(stdin),
		decoder: json.NewDecoder(bufio.NewReaderSize(stdout, stdioReadBuffer)),
		stderr:  stderrFile,
	}

	opts.Logger.Debug("stdio transport starting", "server", server.Name, "command", server.Command)

	initReq := jsonrpc.NewInitializeRequest(opts.ClientName, opts.ClientVersion)
	if _, err := conn.roundTrip(ctx, initReq); err != nil {
		conn.Close()
		if diagnostics != nil && diagnostics.Len() > 0 {
			return nil, errors.Mark(errors.Wrapf(err, "server %q: initialize (stderr: %s)", server.Name, diagnostics.String()), muxerrors.ErrProtocol)
		}
		return nil, errors.Mark(errors.Wrapf(err, "server %q: initialize", server.Name), muxerrors.ErrProtocol)
	}

	return conn, nil
}

// buildEnv copies the configured environment for the child. The parent's
// PATH is injected only when the config did not set one: the child should
// not inherit the rest of the parent environment, but several popular tool
// servers fail to spawn their own helpers without a PATH.
func buildEnv(configured map[string]string) []string {
	env := make([]string, 0, len(configured)+1)
	hasPath := false
	for k, v := range configured {
		if k == "PATH" {
			hasPath = true
		}
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if !hasPath {
		if path, ok := os.LookupEnv("PATH"); ok {
			env = append(env, "PATH="+path)
		}
	}
	return env
}

// Kind reports the stdio transport kind.
func (c *StdioConn) Kind() Kind { return KindStdio }

// Call sends one request and reads one response. Requests on a pipe pair
// are inherently serial, so the whole round trip holds the lock.
func (c *StdioConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, jsonrpc.NewRequest(method, params))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.Mark(resp.Error, muxerrors.ErrProtocol)
	}
	return resp.Result, nil
}

func (c *StdioConn) roundTrip(_ context.Context, req jsonrpc.Request) (*jsonrpc.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, muxerrors.ErrClosed
	}

	if err := c.encoder.Encode(req); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "writing request"), muxerrors.ErrConnection)
	}

	var resp jsonrpc.Response
	if err := c.decoder.Decode(&resp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reading response"), muxerrors.ErrConnection)
	}

	return &resp, nil
}

// Close shuts the child down: close stdin so a well-behaved server exits,
// wait briefly, then kill. Safe to call multiple times.
func (c *StdioConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()

	done := make(chan struct{})
	go func() {
		_ = c.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(closeWait):
		_ = c.cmd.Process.Kill()
		<-done
	}

	if c.stderr != nil {
		_ = c.stderr.Close()
	}
	return nil
}
