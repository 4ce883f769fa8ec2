package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/toolmux/toolmux/internal/paths"
	"github.com/toolmux/toolmux/pkg/fileutil"
)

// FileTokenStore is the default TokenProvider: a per-server token cache on
// disk. It persists token sets and PKCE verifiers across runs but cannot
// drive an authorization flow itself; RedirectToAuthorization always fails
// and the caller's UX has to complete the flow.
//
// Files live under the token cache directory, one pair per server, and are
// written atomically with owner-only permissions.
type FileTokenStore struct {
	dir    string
	server string
}

// NewFileTokenStore returns the store for one server, rooted at the default
// token cache directory.
func NewFileTokenStore(server string) *FileTokenStore {
	return NewFileTokenStoreAt(paths.TokenCacheDir(), server)
}

// NewFileTokenStoreAt roots the store at an explicit directory.
func NewFileTokenStoreAt(dir, server string) *FileTokenStore {
	return &FileTokenStore{dir: dir, server: server}
}

func (s *FileTokenStore) tokenPath() string {
	return filepath.Join(s.dir, s.server+".json")
}

func (s *FileTokenStore) verifierPath() string {
	return filepath.Join(s.dir, s.server+".verifier")
}

// Tokens returns the cached token set, or nil when none has been saved yet.
func (s *FileTokenStore) Tokens(_ context.Context) (*Tokens, error) {
	data, err := fileutil.ReadFileWithLimit(s.tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading cached tokens for %q", s.server)
	}

	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, errors.Wrapf(err, "parsing cached tokens for %q", s.server)
	}
	return &tokens, nil
}

// SaveTokens persists the token set, creating the cache directory on first
// use.
func (s *FileTokenStore) SaveTokens(_ context.Context, tokens *Tokens) error {
	if err := paths.EnsureDir(s.dir, 0); err != nil {
		return errors.Wrap(err, "creating token cache directory")
	}
	return fileutil.AtomicWriteJSONWithPerm(s.tokenPath(), tokens, 0o600)
}

// CodeVerifier returns the PKCE verifier saved for the pending flow, or an
// empty string when none is pending.
func (s *FileTokenStore) CodeVerifier(_ context.Context) (string, error) {
	data, err := fileutil.ReadFileWithLimit(s.verifierPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrapf(err, "reading code verifier for %q", s.server)
	}
	return string(data), nil
}

// SaveCodeVerifier persists the PKCE verifier for the pending flow.
func (s *FileTokenStore) SaveCodeVerifier(_ context.Context, verifier string) error {
	if err := paths.EnsureDir(s.dir, 0); err != nil {
		return errors.Wrap(err, "creating token cache directory")
	}
	return fileutil.AtomicWriteFile(s.verifierPath(), []byte(verifier), 0o600)
}

// RedirectToAuthorization fails: the file store has no user interface. A
// caller that owns a UX must wrap or replace the store to complete flows.
func (s *FileTokenStore) RedirectToAuthorization(_ context.Context, authURL *url.URL) error {
	return errors.Newf("server %q requires interactive authorization at %s", s.server, authURL)
}
