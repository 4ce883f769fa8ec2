// Package paths centralizes filesystem locations used by toolmux.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the per-application directory under the XDG bases.
const AppName = "toolmux"

// DefaultDirPerm is the default permission for newly created directories
// (private).
const DefaultDirPerm = 0o700

// EnsureDir creates the directory and any necessary parents. If perm is 0,
// DefaultDirPerm is used. Idempotent.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = DefaultDirPerm
	}
	return os.MkdirAll(path, perm)
}

// ConfigHome returns the XDG config home directory.
// On Linux: ~/.config
// On macOS: ~/Library/Application Support
func ConfigHome() string {
	return xdg.ConfigHome
}

// DataHome returns the XDG data home directory.
func DataHome() string {
	return xdg.DataHome
}

// ConfigDir returns the toolmux config directory: <ConfigHome>/toolmux/
func ConfigDir() string {
	return filepath.Join(ConfigHome(), AppName)
}

// manifestCandidates lists the manifest filenames probed in order under the
// config directory.
var manifestCandidates = []string{
	"servers.json",
	"servers.yaml",
	"servers.yml",
	"servers.toml",
}

// DefaultManifestPath returns the first existing server manifest under the
// config directory, or the canonical JSON path when none exists yet.
func DefaultManifestPath() string {
	dir := ConfigDir()
	for _, name := range manifestCandidates {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(dir, manifestCandidates[0])
}

// TokenCacheDir returns the directory for cached OAuth tokens:
// <DataHome>/toolmux/tokens/
func TokenCacheDir() string {
	return filepath.Join(DataHome(), AppName, "tokens")
}
