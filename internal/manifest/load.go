package manifest

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
	"github.com/toolmux/toolmux/pkg/fileutil"
)

// fileServer is the decoding shape shared by the YAML and TOML loaders.
// JSON manifests decode directly into Server to preserve unknown fields.
type fileServer struct {
	Command   string            `yaml:"command" toml:"command"`
	Args      []string          `yaml:"args" toml:"args"`
	Env       map[string]string `yaml:"env" toml:"env"`
	Cwd       string            `yaml:"cwd" toml:"cwd"`
	Stderr    string            `yaml:"stderr" toml:"stderr"`
	URL       string            `yaml:"url" toml:"url"`
	Transport string            `yaml:"transport" toml:"transport"`
	Headers   map[string]string `yaml:"headers" toml:"headers"`
	Disabled  bool              `yaml:"disabled" toml:"disabled"`
}

// fileDoc accepts both the canonical "servers" key and the widespread
// Claude-style "mcpServers" key.
type fileDoc struct {
	Servers    map[string]*fileServer `yaml:"servers" toml:"servers"`
	MCPServers map[string]*fileServer `yaml:"mcpServers" toml:"mcpServers"`
}

// Load reads a server manifest from path, selecting the format by file
// extension: .json (default), .yaml/.yml, or .toml. The returned manifest
// has already passed Validate.
func Load(path string) (*Manifest, error) {
	data, err := fileutil.ReadFileWithLimit(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}

	var m *Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = parseYAML(data)
	case ".toml":
		m, err = parseTOML(data)
	default:
		m, err = ParseJSON(data)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseJSON parses a JSON manifest, preserving unknown fields for round-trips.
func ParseJSON(data []byte) (*Manifest, error) {
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing JSON manifest"), muxerrors.ErrConfiguration)
	}
	return m, nil
}

func parseYAML(data []byte) (*Manifest, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing YAML manifest"), muxerrors.ErrConfiguration)
	}
	return fromFileDoc(&doc), nil
}

func parseTOML(data []byte) (*Manifest, error) {
	var doc fileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing TOML manifest"), muxerrors.ErrConfiguration)
	}
	return fromFileDoc(&doc), nil
}

func fromFileDoc(doc *fileDoc) *Manifest {
	servers := doc.Servers
	if servers == nil {
		servers = doc.MCPServers
	}

	m := New()
	for name, fs := range servers {
		if fs == nil {
			m.Servers[name] = &Server{Name: name}
			continue
		}
		m.Servers[name] = &Server{
			Name:      name,
			Command:   fs.Command,
			Args:      fs.Args,
			Env:       fs.Env,
			Cwd:       fs.Cwd,
			Stderr:    fs.Stderr,
			URL:       fs.URL,
			Transport: fs.Transport,
			Headers:   fs.Headers,
			Disabled:  fs.Disabled,
		}
	}
	return m
}

// Names returns the manifest's server names in sorted order. Manifest maps
// are unordered, so sorted name order stands in for configuration order
// everywhere aggregate ordering matters.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Servers))
	for name := range m.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns the non-disabled servers in sorted name order.
func (m *Manifest) Enabled() []*Server {
	var servers []*Server
	for _, name := range m.Names() {
		if s := m.Servers[name]; !s.Disabled {
			servers = append(servers, s)
		}
	}
	return servers
}
