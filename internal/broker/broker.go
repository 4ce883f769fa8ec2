package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/internal/logging"
	"github.com/toolmux/toolmux/internal/manifest"
	"github.com/toolmux/toolmux/internal/schema"
	"github.com/toolmux/toolmux/internal/tool"
	"github.com/toolmux/toolmux/internal/transport"
)

// Options configures one InitializeAll run.
type Options struct {
	// Provider selects the schema normalization target for every bound tool.
	Provider schema.Provider

	// Transport carries the collaborators handed to every connection. A nil
	// TokenProvider defaults to a per-server file token cache.
	Transport transport.Options

	// Logger receives orchestration diagnostics. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// ToolSet is the aggregate of every server's bound tools plus one release
// function covering all of their connections.
type ToolSet struct {
	// Tools enumerates servers in their given order, each server's tools in
	// catalog order.
	Tools []*tool.Tool

	logger *slog.Logger

	mu     sync.Mutex
	conns  []namedConn
	closed bool
}

type namedConn struct {
	server string
	conn   transport.Connection
}

// serverResult is one server's settled initialization outcome.
type serverResult struct {
	conn  transport.Connection
	tools []*tool.Tool
	err   error
}

// InitializeAll connects every server concurrently, fetches each catalog,
// and binds every tool for the configured provider.
//
// All servers settle before the call returns; a failure in one server does
// not abandon work in flight elsewhere. If any server fails, every
// connection the other servers opened is closed first and the joined
// per-server errors are returned. On success the returned ToolSet owns all
// connections until Close.
func InitializeAll(ctx context.Context, servers []manifest.Server, opts Options) (*ToolSet, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscard()
	}
	if opts.Transport.Logger == nil {
		opts.Transport.Logger = opts.Logger
	}

	// Per-index slots keep the aggregate in server order regardless of which
	// initialization finishes first.
	results := make([]serverResult, len(servers))

	var wg sync.WaitGroup
	for i := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = initializeOne(ctx, &servers[i], opts)
		}()
	}
	wg.Wait()

	var errs []error
	for i := range results {
		if results[i].err != nil {
			errs = append(errs, muxerrors.NewServerInitError(servers[i].Name, results[i].err))
		}
	}

	if len(errs) > 0 {
		for i := range results {
			if results[i].conn == nil {
				continue
			}
			if err := results[i].conn.Close(); err != nil {
				opts.Logger.Warn("releasing connection after failed initialization",
					"server", servers[i].Name, "error", err)
			}
		}
		return nil, errors.Join(errs...)
	}

	set := &ToolSet{logger: opts.Logger}
	for i := range results {
		set.Tools = append(set.Tools, results[i].tools...)
		set.conns = append(set.conns, namedConn{server: servers[i].Name, conn: results[i].conn})
	}

	opts.Logger.Info("initialized tool servers", "servers", len(servers), "tools", len(set.Tools))
	return set, nil
}

// initializeOne runs the whole pipeline for one server: resolve a transport,
// fetch the catalog, normalize and bind every tool.
func initializeOne(ctx context.Context, server *manifest.Server, opts Options) serverResult {
	topts := opts.Transport
	if topts.TokenProvider == nil {
		topts.TokenProvider = transport.NewFileTokenStore(server.Name)
	}

	conn, err := transport.Resolve(ctx, server, topts)
	if err != nil {
		return serverResult{err: err}
	}

	descs, err := tool.List(ctx, conn)
	if err != nil {
		// The connection is still returned so the aggregate failure path
		// can release it with the others.
		return serverResult{conn: conn, err: err}
	}

	tools := make([]*tool.Tool, 0, len(descs))
	for _, desc := range descs {
		normalized, err := schema.Normalize(desc.InputSchema, opts.Provider)
		if err != nil {
			return serverResult{conn: conn, err: errors.Wrapf(err, "tool %q", desc.Name)}
		}

		var validator *schema.Validator
		if opts.Provider == schema.ProviderAnthropic || opts.Provider == "" {
			validator, err = schema.Compile(desc.InputSchema)
			if err != nil {
				return serverResult{conn: conn, err: errors.Wrapf(err, "tool %q", desc.Name)}
			}
		}

		tools = append(tools, tool.Bind(desc, conn, server.Name, normalized, validator, opts.Logger))
	}

	opts.Logger.Debug("server initialized", "server", server.Name, "transport", conn.Kind(), "tools", len(tools))
	return serverResult{conn: conn, tools: tools}
}

// Transports reports which wire transport each server ended up on.
func (s *ToolSet) Transports() map[string]transport.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make(map[string]transport.Kind, len(s.conns))
	for _, nc := range s.conns {
		kinds[nc.server] = nc.conn.Kind()
	}
	return kinds
}

// Close releases every connection concurrently. Individual release failures
// are logged and do not stop the rest. Safe to call multiple times; only
// the first call does anything.
func (s *ToolSet) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, nc := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := nc.conn.Close(); err != nil {
				s.logger.Warn("releasing connection", "server", nc.server, "error", err)
			}
		}()
	}
	wg.Wait()
	return nil
}
