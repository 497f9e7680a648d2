// Package paths resolves where xcauth keeps its configuration file and its
// default SQLite database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "xcauth"

// DatabaseFileName is the default SQLite database inside the data directory.
const DatabaseFileName = "xcauth.sqlite3"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "XCAUTH_CONFIG_DIR"
	EnvDataDir   = "XCAUTH_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $<env>/xcauth, or ~/<fallback...>/xcauth when env is unset.
// Outside Linux both directories collapse into os.UserConfigDir.
func xdgDir(env string, fallback ...string) (string, error) {
	if platformDir.goos != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/xcauth (fallback ~/.config/xcauth)
// macOS:   ~/Library/Application Support/xcauth
// Windows: %APPDATA%/xcauth
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/xcauth (fallback ~/.local/share/xcauth)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// resolve applies flag > env > fallback, making explicit values absolute.
func resolve(flag, env string, fallback func() (string, error)) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	return fallback()
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > XCAUTH_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	return resolve(flag, EnvConfigDir, DefaultConfigDir)
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > XCAUTH_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag string) (string, error) {
	return resolve(flag, EnvDataDir, DefaultDataDir)
}

// DefaultDatabase returns the default SQLite database path in dataDir.
func DefaultDatabase(dataDir string) string {
	return filepath.Join(dataDir, DatabaseFileName)
}
