// Package userdirs resolves the per-user cache root the daemon and CLI
// share: the PID lockfile, UNIX socket, and per-instance log file live
// here. Grounded on the xfeldman-aegisvm example's use of adrg/xdg for platform-correct
// directory resolution, generalized from a single config dir to the
// cache root spec's local filesystem layout names.
package userdirs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const namespace = "hurry/v2"

// CacheRoot returns the per-user cache root: XDG cache on Linux,
// ~/Library/Caches/... on macOS, %LOCALAPPDATA%\... on Windows, each
// suffixed "hurry/v2", as resolved by adrg/xdg's platform tables.
func CacheRoot() string {
	return filepath.Join(xdg.CacheHome, namespace)
}

// PIDFile is the daemon's PID lockfile path.
func PIDFile() string {
	return filepath.Join(CacheRoot(), "hurryd.pid")
}

// SocketFile is the daemon's UNIX socket path.
func SocketFile() string {
	return filepath.Join(CacheRoot(), "hurryd.sock")
}

// LogFile is the per-instance daemon log path for the given PID.
func LogFile(pid int) string {
	return filepath.Join(CacheRoot(), fmt.Sprintf("hurryd.%d.err", pid))
}

// Ensure creates the cache root directory if it does not already exist.
func Ensure() error {
	return os.MkdirAll(CacheRoot(), 0o755)
}
