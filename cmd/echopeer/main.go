// Copyright 2026 The hostbridge Authors
// This file is part of hostbridge.
//
// hostbridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// hostbridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with hostbridge. If not, see <http://www.gnu.org/licenses/>.

// echopeer is a minimal bridge client. It registers under the given name and
// serves a handful of diagnostic services, which makes it useful for checking
// an installation and as a starting point for real clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/scriptbridge/hostbridge/internal/debug"
	"github.com/scriptbridge/hostbridge/internal/flags"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/peer"
	"github.com/scriptbridge/hostbridge/rpc"
	"github.com/urfave/cli/v2"
)

var (
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Client name to register under",
		Value: "echo",
	}
	endpointFlag = &cli.StringFlag{
		Name:    "endpoint",
		Usage:   "Bridge endpoint (socket path or ws:// URL)",
		EnvVars: []string{peer.EnvEndpoint},
	}
	attemptsFlag = &cli.IntFlag{
		Name:  "attempts",
		Usage: "Connection attempts before giving up",
		Value: peer.DefaultMaxAttempts,
	}

	app = flags.NewApp("diagnostic bridge client")
)

func init() {
	app.Action = run
	app.Flags = flags.Merge([]cli.Flag{nameFlag, endpointFlag, attemptsFlag}, debug.Flags)
	app.Before = debug.Setup
	app.After = func(*cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type echoService struct {
	*peer.Service
	argv []string

	mu    sync.Mutex
	state map[string]interface{}
	host  *rpc.Client
}

func (s *echoService) Echo(v interface{}) interface{} { return v }

func (s *echoService) GetArgv() []string { return s.argv }

func (s *echoService) GetState(key string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	if !ok {
		return nil, peer.Errorf("KeyError", "%q", key)
	}
	return v, nil
}

func (s *echoService) SetState(key string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = v
}

// BusyWork sleeps for the given number of seconds, or until the call is
// cancelled.
func (s *echoService) BusyWork(ctx context.Context, seconds float64) (bool, error) {
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// TestServer calls back into the host to check the reverse direction.
func (s *echoService) TestServer(ctx context.Context) (int, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == nil {
		return 0, peer.Errorf("RuntimeError", "not connected")
	}
	var protocol int
	if err := host.CallContext(ctx, &protocol, "host_version"); err != nil {
		return 0, err
	}
	return protocol, nil
}

func run(ctx *cli.Context) error {
	endpoint := ctx.String(endpointFlag.Name)
	var opts []rpc.ClientOption
	if endpoint == "" {
		var err error
		if endpoint, opts, err = peer.EndpointFromEnv(); err != nil {
			return err
		}
	}
	svc := &echoService{
		Service: peer.NewService(ctx.String(nameFlag.Name)),
		argv:    os.Args,
		state:   make(map[string]interface{}),
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return peer.Run(runCtx, endpoint, svc, peer.RunConfig{
		MaxAttempts: ctx.Int(attemptsFlag.Name),
		DialOptions: opts,
		OnConnect: func(c *peer.Conn) {
			svc.mu.Lock()
			svc.host = c.Host()
			svc.mu.Unlock()
			log.Info("Connected to bridge", "endpoint", endpoint, "name", svc.Name)
		},
	})
}
