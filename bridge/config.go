// Copyright 2026 The hostbridge Authors
// This file is part of the hostbridge library.
//
// The hostbridge library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The hostbridge library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the hostbridge library. If not, see <http://www.gnu.org/licenses/>.

package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/launcher"
	"github.com/scriptbridge/hostbridge/log"
)

const (
	datadirLock   = "LOCK"      // Path within the datadir to the instance lock
	datadirJWTKey = "jwtsecret" // Path within the datadir to the websocket jwt secret
)

// Config holds the settings of a bridge server.
type Config struct {
	// DataDir holds the socket (for relative socket names), the instance lock and
	// the jwt secret. If empty, the socket lives in the temp directory and the
	// lock is taken next to it.
	DataDir string

	// SocketPath is the local socket the server listens on. Relative names are
	// resolved in DataDir. On Windows this names a pipe.
	SocketPath string `toml:",omitempty"`

	// WSHost enables the websocket listener when non-empty. WSPort zero picks a
	// free port.
	WSHost    string   `toml:",omitempty"`
	WSPort    int      `toml:",omitempty"`
	WSOrigins []string `toml:",omitempty"`

	// JWTSecret is the path to the hex-encoded jwt secret guarding the websocket
	// listener. Empty means <datadir>/jwtsecret, generated on first use.
	JWTSecret string `toml:",omitempty"`

	// DrainBudget bounds the time spent running jobs per drain, DrainInterval
	// is the time between drains of the built-in loop.
	DrainBudget   time.Duration
	DrainInterval time.Duration

	// ManualDrain leaves draining the job queue to the embedding host, which
	// then calls Loop().Run on its main goroutine.
	ManualDrain bool `toml:"-"`

	CallTimeout      time.Duration // zero disables the per-call timeout
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration

	// PingInterval enables heartbeat pruning of dead connections when positive.
	PingInterval time.Duration `toml:",omitempty"`

	// Interpreter runs client scripts. SitePackages are prepended to its
	// PYTHONPATH.
	Interpreter  string
	SitePackages []string `toml:",omitempty"`

	// ClientArgv0 overrides the program name passed to the interpreter.
	ClientArgv0 string `toml:",omitempty"`

	// RequiredModules are checked by ValidateInterpreter.
	RequiredModules []string `toml:",omitempty"`

	WantLogging bool

	// DebugAPI exposes runtime profiling to peers in the debug namespace.
	DebugAPI bool `toml:",omitempty"`

	// ClientEnv is set, and ClientUnsetEnv removed, in the environment of
	// spawned clients.
	ClientEnv      map[string]string `toml:",omitempty"`
	ClientUnsetEnv []string          `toml:",omitempty"`

	// Table classifies host object members. Nil selects hostobj.DefaultTable.
	// The table is frozen by New.
	Table *hostobj.Table `toml:"-"`

	// Logger is a custom logger to use with the server.
	Logger log.Logger `toml:"-"`
}

// SocketEndpoint resolves the socket path, taking into account the data
// directory and the platform.
func (c *Config) SocketEndpoint() string {
	path := c.SocketPath
	if path == "" {
		path = DefaultSocketName
	}
	// On windows we can only use plain top-level pipes
	if runtime.GOOS == "windows" {
		if strings.HasPrefix(path, `\\.\pipe\`) {
			return path
		}
		return `\\.\pipe\` + filepath.Base(path)
	}
	// Resolve names into the data directory full paths otherwise
	if filepath.Base(path) == path {
		if c.DataDir == "" {
			return filepath.Join(os.TempDir(), path)
		}
		return filepath.Join(c.DataDir, path)
	}
	return path
}

// WSEndpoint returns the configured websocket listen address.
func (c *Config) WSEndpoint() string {
	if c.WSHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
}

// ResolvePath resolves path in the data directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if c.DataDir == "" {
		return filepath.Join(os.TempDir(), path)
	}
	return filepath.Join(c.DataDir, path)
}

func (c *Config) lockPath() string {
	if c.DataDir != "" {
		return filepath.Join(c.DataDir, datadirLock)
	}
	return filepath.Join(os.TempDir(), filepath.Base(c.SocketEndpoint())+".lock")
}

func (c *Config) jwtSecretPath() string {
	if c.JWTSecret != "" {
		return c.JWTSecret
	}
	return c.ResolvePath(datadirJWTKey)
}

func (c *Config) launcherConfig() launcher.Config {
	return launcher.Config{
		Interpreter:  c.Interpreter,
		Argv0:        c.ClientArgv0,
		SitePackages: c.SitePackages,
		Env:          c.ClientEnv,
		Unset:        c.ClientUnsetEnv,
	}
}

func (c *Config) validate() error {
	switch {
	case c.DrainBudget < 0:
		return fmt.Errorf("%w: negative drain budget %v", ErrInvalidArgument, c.DrainBudget)
	case c.DrainInterval < 0:
		return fmt.Errorf("%w: negative drain interval %v", ErrInvalidArgument, c.DrainInterval)
	case c.CallTimeout < 0, c.HandshakeTimeout < 0, c.ShutdownTimeout < 0, c.PingInterval < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalidArgument)
	case c.WSPort < 0 || c.WSPort > 65535:
		return fmt.Errorf("%w: websocket port %d out of range", ErrInvalidArgument, c.WSPort)
	}
	return nil
}
