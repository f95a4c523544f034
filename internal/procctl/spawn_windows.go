//go:build windows

package procctl

import "errors"

// ErrUnsupportedPlatform is returned by every function in this file
// that returns an error (Alive always reports false):
// Windows is not a supported platform because it has no SIGTERM
// semantics for the graceful-shutdown handshake this package relies on.
var ErrUnsupportedPlatform = errors.New("procctl: windows is not a supported platform for this monitor")

type SpawnConfig struct {
	Path    string
	Args    []string
	Env     []string
	LogPath string
}

func Spawn(cfg SpawnConfig) (pid int, err error) { return 0, ErrUnsupportedPlatform }
func Alive(pid int) bool                         { return false }
func SendTerm(pid int) error                     { return ErrUnsupportedPlatform }
func SendKill(pid int) error                     { return ErrUnsupportedPlatform }
