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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scriptbridge/hostbridge/internal/reexec"
	"github.com/scriptbridge/hostbridge/peer"
	"github.com/stretchr/testify/require"
)

const childName = "hostbridge-bridge-test-peer"

func TestMain(m *testing.M) {
	reexec.Register(childName, runChild)
	if reexec.Init() {
		return
	}
	os.Exit(m.Run())
}

// echoPeer is the service run by spawned test peers.
type echoPeer struct {
	*peer.Service
	argv []string
}

func (e *echoPeer) Echo(v interface{}) interface{} { return v }

func (e *echoPeer) GetArgv() []string { return e.argv }

// runChild behaves like an interpreter: it answers version and import checks,
// and otherwise runs the script argument as a peer named after the script.
func runChild() {
	args := os.Args[1:]
	switch {
	case len(args) == 1 && args[0] == "--version":
		fmt.Println("test peer 1.0")
		os.Exit(0)
	case len(args) == 2 && args[0] == "-c":
		if strings.TrimSpace(args[1]) == "import hostbridge" {
			os.Exit(0)
		}
		os.Exit(1)
	case len(args) == 0:
		os.Exit(2)
	}
	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	endpoint, opts, err := peer.EndpointFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	svc := &echoPeer{Service: peer.NewService(name), argv: args}
	fmt.Println("peer starting", name)
	err = peer.Run(context.Background(), endpoint, svc, peer.RunConfig{DialOptions: opts})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(4)
	}
	os.Exit(0)
}

func newSpawningServer(t *testing.T, modify func(*Config)) *Server {
	return newTestServer(t, func(c *Config) {
		c.Interpreter = reexec.Self()
		c.ClientArgv0 = childName
		if modify != nil {
			modify(c)
		}
	})
}

func TestSpawnClient(t *testing.T) {
	srv := newSpawningServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc, err := srv.SpawnClient("echo.py", true, "--flag", "value")
	require.NoError(t, err)
	defer proc.Kill()
	require.True(t, srv.WaitForConnection(ctx, "echo", 20*time.Second))

	var argv []string
	require.NoError(t, srv.CallService(ctx, &argv, "echo", "get_argv"))
	require.Len(t, argv, 3)
	require.True(t, filepath.IsAbs(argv[0]))
	require.Equal(t, []string{"--flag", "value"}, argv[1:])

	var got map[string]interface{}
	require.NoError(t, srv.CallService(ctx, &got, "echo", "echo", map[string]interface{}{"x": 1.5}))
	require.Equal(t, 1.5, got["x"])

	// A final shutdown makes the peer exit cleanly.
	srv.Stop(false)
	require.NoError(t, proc.Wait(ctx))
	code, exited := proc.Poll()
	require.True(t, exited)
	require.Zero(t, code)
}

func TestSpawnClientReconnectsAfterRestart(t *testing.T) {
	srv := newSpawningServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc, err := srv.SpawnClient("phoenix.py", false)
	require.NoError(t, err)
	defer proc.Kill()
	require.True(t, srv.WaitForConnection(ctx, "phoenix", 20*time.Second))

	require.NoError(t, srv.ForceRestart())
	require.True(t, srv.WaitForConnection(ctx, "phoenix", 20*time.Second))
	code, exited := proc.Poll()
	require.False(t, exited, "peer exited with %d", code)
}

func TestSpawnClientMissingInterpreter(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.Interpreter = filepath.Join(t.TempDir(), "no-such-python")
	})
	_, err := srv.SpawnClient("script.py", false)
	var install *InstallError
	require.True(t, errors.As(err, &install))
}

func TestValidateInterpreter(t *testing.T) {
	ctx := context.Background()

	srv := newSpawningServer(t, func(c *Config) { c.RequiredModules = []string{"hostbridge"} })
	require.NoError(t, srv.ValidateInterpreter(ctx))

	srv = newSpawningServer(t, func(c *Config) { c.RequiredModules = []string{"numpy"} })
	err := srv.ValidateInterpreter(ctx)
	var install *InstallError
	require.True(t, errors.As(err, &install))
	require.Contains(t, install.Error(), "numpy")
}
