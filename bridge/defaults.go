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
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/scriptbridge/hostbridge/jobqueue"
)

const (
	DefaultClientName       = "hostbridge client" // registry key of peers that declare no name
	DefaultSocketName       = "hostbridge.ipc"
	DefaultCallTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 2 * time.Second
	DefaultWSPort           = 8766
)

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	DataDir:          DefaultDataDir(),
	SocketPath:       DefaultSocketName,
	WSPort:           DefaultWSPort,
	WSOrigins:        []string{"localhost"},
	DrainBudget:      jobqueue.DefaultBudget,
	DrainInterval:    jobqueue.DefaultBudget,
	CallTimeout:      DefaultCallTimeout,
	HandshakeTimeout: DefaultHandshakeTimeout,
	ShutdownTimeout:  DefaultShutdownTimeout,
	Interpreter:      defaultInterpreter(),
	WantLogging:      true,
}

// DefaultDataDir is the default data directory to use for the socket, lock and
// jwt secret.
func DefaultDataDir() string {
	home := homeDir()
	if home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "HostBridge")
		case "windows":
			if appdata := os.Getenv("LOCALAPPDATA"); appdata != "" {
				return filepath.Join(appdata, "HostBridge")
			}
			return filepath.Join(home, "AppData", "Local", "HostBridge")
		default:
			return filepath.Join(home, ".hostbridge")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func defaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python.exe"
	}
	return "python3"
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
