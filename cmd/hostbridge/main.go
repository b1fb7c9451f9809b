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

// hostbridge runs a standalone bridge server and the client scripts attached
// to it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scriptbridge/hostbridge/bridge"
	"github.com/scriptbridge/hostbridge/cmd/utils"
	"github.com/scriptbridge/hostbridge/internal/debug"
	"github.com/scriptbridge/hostbridge/internal/flags"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/urfave/cli/v2"
)

var (
	spawnFlag = &cli.StringSliceFlag{
		Name:     "spawn",
		Usage:    "Client scripts to launch once the server is up",
		Category: flags.ClientCategory,
	}

	app = flags.NewApp("the host side of the script bridge")
)

func init() {
	app.Action = hostbridge
	app.Commands = []*cli.Command{
		dumpConfigCommand,
		versionCommand,
	}
	app.Flags = flags.Merge(
		[]cli.Flag{configFileFlag, spawnFlag},
		utils.BridgeFlags,
		utils.MetricsFlags,
		debug.Flags,
	)
	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		if err := debug.Setup(ctx); err != nil {
			return err
		}
		utils.SetupMetrics(ctx)
		return nil
	}
	app.After = func(ctx *cli.Context) error {
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

// hostbridge is the main entry point into the system if no special subcommand
// is run. It starts the server, launches the configured clients and drains the
// host call queue on the main goroutine until interrupted.
func hostbridge(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %s", args[0])
	}
	cfg := loadBaseConfig(ctx)
	cfg.Bridge.ManualDrain = true

	srv, err := bridge.New(&cfg.Bridge)
	if err != nil {
		return err
	}
	defer srv.Close()

	if len(cfg.Bridge.RequiredModules) > 0 {
		vctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := srv.ValidateInterpreter(vctx)
		cancel()
		if err != nil {
			return err
		}
	}
	if _, err := srv.Start(); err != nil {
		return err
	}
	for _, script := range cfg.Spawn.Scripts {
		proc, err := srv.SpawnClient(script, cfg.Bridge.WantLogging)
		if err != nil {
			srv.Stop(false)
			return err
		}
		log.Info("Spawned client", "script", script, "pid", proc.Pid())
	}

	interrupt := make(chan struct{})
	go waitForSignal(interrupt)
	return serve(srv, interrupt)
}

// serve drains the host call queue on the calling goroutine until interrupt is
// closed. The server is stopped before draining ends so that clients can still
// use slow host members while handling the shutdown notification.
func serve(srv *bridge.Server, interrupt <-chan struct{}) error {
	var (
		quit = make(chan struct{})
		done = make(chan struct{})
	)
	go func() {
		select {
		case <-interrupt:
		case <-done:
		}
		srv.Stop(false)
		close(quit)
	}()
	err := srv.Loop().Run(quit)
	close(done)
	<-quit
	return err
}

// waitForSignal closes quit on the first interrupt. Further interrupts are
// counted down until the process is forcibly terminated.
func waitForSignal(quit chan struct{}) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	<-sigc
	log.Info("Got interrupt, shutting down...")
	close(quit)
	for i := 10; i > 0; i-- {
		<-sigc
		if i > 1 {
			log.Warn("Already shutting down, interrupt more to panic.", "times", i-1)
		}
	}
	panic("boom")
}
