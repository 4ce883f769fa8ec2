package manifest

import (
	"net/url"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
)

// validTransports is the set of accepted transport values.
var validTransports = map[string]bool{
	TransportStdio:     true,
	TransportHTTP:      true,
	TransportSSE:       true,
	TransportWebSocket: true,
	TransportAuto:      true,
}

// Validate checks the tagged-union invariants of a server configuration.
// Violations are reported before any connection attempt, wrapped with
// [muxerrors.ErrConfiguration] so callers can classify them.
func (s *Server) Validate() error {
	if s.Name == "" {
		return configErr("server name is required")
	}

	if !validTransports[s.Transport] {
		return configErr("server %q: transport must be one of stdio, http, sse, websocket", s.Name)
	}

	// Exactly one of command/url.
	switch {
	case s.Command == "" && s.URL == "":
		return configErr("server %q: either command or url is required", s.Name)
	case s.Command != "" && s.URL != "":
		return configErr("server %q: command and url are mutually exclusive", s.Name)
	}

	if s.Transport == TransportStdio && s.Command == "" {
		return configErr("server %q: stdio transport requires command", s.Name)
	}

	if s.URL == "" {
		// Local server: a remote-only transport with no URL is contradictory.
		switch s.Transport {
		case TransportHTTP, TransportSSE, TransportWebSocket:
			return configErr("server %q: %s transport requires url", s.Name, s.Transport)
		}
		return nil
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "server %q: parsing url", s.Name), muxerrors.ErrConfiguration)
	}

	// Explicit transport must be consistent with the URL scheme.
	switch s.Transport {
	case TransportHTTP, TransportSSE:
		if u.Scheme != "http" && u.Scheme != "https" {
			return configErr("server %q: %s transport requires an http or https url, got %q", s.Name, s.Transport, u.Scheme)
		}
	case TransportWebSocket:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return configErr("server %q: websocket transport requires a ws or wss url, got %q", s.Name, u.Scheme)
		}
	case TransportStdio:
		return configErr("server %q: stdio transport is incompatible with url", s.Name)
	case TransportAuto:
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return configErr("server %q: unsupported url scheme %q", s.Name, u.Scheme)
		}
	}

	return nil
}

// Validate validates every server in the manifest, checking name agreement
// between map keys and server Name fields along the way.
func (m *Manifest) Validate() error {
	for key, server := range m.Servers {
		if server == nil {
			return configErr("server %q: empty definition", key)
		}
		if server.Name == "" {
			server.Name = key
		} else if server.Name != key {
			return configErr("server %q: name field %q does not match map key", key, server.Name)
		}
		if err := server.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func configErr(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), muxerrors.ErrConfiguration)
}
