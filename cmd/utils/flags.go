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

// Package utils contains internal helper functions for hostbridge commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/scriptbridge/hostbridge/bridge"
	"github.com/scriptbridge/hostbridge/internal/flags"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics/exp"
	"github.com/urfave/cli/v2"
)

var (
	DataDirFlag = &flags.DirectoryFlag{
		Name:     "datadir",
		Usage:    "Data directory for the socket, instance lock and jwt secret",
		Value:    flags.DirectoryString(bridge.DefaultDataDir()),
		Category: flags.BridgeCategory,
	}
	SocketPathFlag = &cli.StringFlag{
		Name:     "socket",
		Usage:    "Filename for the bridge socket/pipe within the datadir (explicit paths escape it)",
		Value:    bridge.DefaultSocketName,
		Category: flags.BridgeCategory,
	}
	CallTimeoutFlag = &cli.DurationFlag{
		Name:     "rpc.calltimeout",
		Usage:    "Timeout of calls into peers (0 = no timeout)",
		Value:    bridge.DefaultConfig.CallTimeout,
		Category: flags.BridgeCategory,
	}
	PingIntervalFlag = &cli.DurationFlag{
		Name:     "rpc.pinginterval",
		Usage:    "Interval of peer heartbeats, unresponsive peers are dropped (0 = disabled)",
		Category: flags.BridgeCategory,
	}
	DebugAPIFlag = &cli.BoolFlag{
		Name:     "rpc.debug",
		Usage:    "Expose the debug API to peers",
		Category: flags.BridgeCategory,
	}

	WSEnabledFlag = &cli.BoolFlag{
		Name:     "ws",
		Usage:    "Enable the websocket transport",
		Category: flags.WebsocketCategory,
	}
	WSListenAddrFlag = &cli.StringFlag{
		Name:     "ws.addr",
		Usage:    "Websocket listening interface",
		Value:    "localhost",
		Category: flags.WebsocketCategory,
	}
	WSPortFlag = &cli.IntFlag{
		Name:     "ws.port",
		Usage:    "Websocket listening port",
		Value:    bridge.DefaultWSPort,
		Category: flags.WebsocketCategory,
	}
	WSAllowedOriginsFlag = &cli.StringFlag{
		Name:     "ws.origins",
		Usage:    "Origins from which to accept websocket requests",
		Category: flags.WebsocketCategory,
	}
	JWTSecretFlag = &flags.DirectoryFlag{
		Name:     "authrpc.jwtsecret",
		Usage:    "Path to a JWT secret to use for the websocket transport",
		Category: flags.WebsocketCategory,
	}

	DrainBudgetFlag = &cli.DurationFlag{
		Name:     "drain.budget",
		Usage:    "Maximum time spent running queued host calls per drain",
		Value:    bridge.DefaultConfig.DrainBudget,
		Category: flags.DrainCategory,
	}
	DrainIntervalFlag = &cli.DurationFlag{
		Name:     "drain.interval",
		Usage:    "Time between two drains of the host call queue",
		Value:    bridge.DefaultConfig.DrainInterval,
		Category: flags.DrainCategory,
	}

	InterpreterFlag = &cli.StringFlag{
		Name:     "client.interpreter",
		Usage:    "Interpreter running client scripts",
		Value:    bridge.DefaultConfig.Interpreter,
		Category: flags.ClientCategory,
	}
	SitePackagesFlag = &cli.StringSliceFlag{
		Name:     "client.sitepackages",
		Usage:    "Directories prepended to the client module search path",
		Category: flags.ClientCategory,
	}
	RequiredModulesFlag = &cli.StringSliceFlag{
		Name:     "client.require",
		Usage:    "Modules the interpreter must be able to import",
		Category: flags.ClientCategory,
	}
	ClientQuietFlag = &cli.BoolFlag{
		Name:     "client.quiet",
		Usage:    "Do not forward the output of spawned clients to the log",
		Category: flags.ClientCategory,
	}

	MetricsHTTPFlag = &cli.StringFlag{
		Name:     "metrics.addr",
		Usage:    `Enable the stand-alone metrics HTTP server on the given address (e.g. "127.0.0.1:6061")`,
		Category: flags.MetricsCategory,
	}
)

// BridgeFlags are the flags configuring the bridge server.
var BridgeFlags = []cli.Flag{
	DataDirFlag,
	SocketPathFlag,
	CallTimeoutFlag,
	PingIntervalFlag,
	DebugAPIFlag,
	WSEnabledFlag,
	WSListenAddrFlag,
	WSPortFlag,
	WSAllowedOriginsFlag,
	JWTSecretFlag,
	DrainBudgetFlag,
	DrainIntervalFlag,
	InterpreterFlag,
	SitePackagesFlag,
	RequiredModulesFlag,
	ClientQuietFlag,
}

// MetricsFlags configure the metrics exporter.
var MetricsFlags = []cli.Flag{
	MetricsHTTPFlag,
}

// Fatalf formats a message to standard error and exits the program.
// The message is also printed to standard output if standard error
// is redirected to a different file.
func Fatalf(format string, args ...interface{}) {
	w := io.MultiWriter(os.Stdout, os.Stderr)
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

// SetBridgeConfig applies bridge-related command line flags to the config.
// Flags only override the config when set explicitly.
func SetBridgeConfig(ctx *cli.Context, cfg *bridge.Config) {
	if ctx.IsSet(DataDirFlag.Name) {
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
	if ctx.IsSet(SocketPathFlag.Name) {
		cfg.SocketPath = ctx.String(SocketPathFlag.Name)
	}
	if ctx.IsSet(CallTimeoutFlag.Name) {
		cfg.CallTimeout = ctx.Duration(CallTimeoutFlag.Name)
	}
	if ctx.IsSet(PingIntervalFlag.Name) {
		cfg.PingInterval = ctx.Duration(PingIntervalFlag.Name)
	}
	if ctx.IsSet(DebugAPIFlag.Name) {
		cfg.DebugAPI = ctx.Bool(DebugAPIFlag.Name)
	}
	setWS(ctx, cfg)
	if ctx.IsSet(DrainBudgetFlag.Name) {
		cfg.DrainBudget = ctx.Duration(DrainBudgetFlag.Name)
	}
	if ctx.IsSet(DrainIntervalFlag.Name) {
		cfg.DrainInterval = ctx.Duration(DrainIntervalFlag.Name)
	}
	if ctx.IsSet(InterpreterFlag.Name) {
		cfg.Interpreter = ctx.String(InterpreterFlag.Name)
	}
	if ctx.IsSet(SitePackagesFlag.Name) {
		cfg.SitePackages = ctx.StringSlice(SitePackagesFlag.Name)
	}
	if ctx.IsSet(RequiredModulesFlag.Name) {
		cfg.RequiredModules = ctx.StringSlice(RequiredModulesFlag.Name)
	}
	if ctx.IsSet(ClientQuietFlag.Name) {
		cfg.WantLogging = !ctx.Bool(ClientQuietFlag.Name)
	}
}

func setWS(ctx *cli.Context, cfg *bridge.Config) {
	if ctx.Bool(WSEnabledFlag.Name) && cfg.WSHost == "" {
		cfg.WSHost = ctx.String(WSListenAddrFlag.Name)
	}
	if ctx.IsSet(WSPortFlag.Name) {
		cfg.WSPort = ctx.Int(WSPortFlag.Name)
	}
	if ctx.IsSet(WSAllowedOriginsFlag.Name) {
		cfg.WSOrigins = SplitAndTrim(ctx.String(WSAllowedOriginsFlag.Name))
	}
	if ctx.IsSet(JWTSecretFlag.Name) {
		cfg.JWTSecret = ctx.String(JWTSecretFlag.Name)
	}
}

// SetupMetrics starts the stand-alone metrics server if requested.
func SetupMetrics(ctx *cli.Context) {
	if addr := ctx.String(MetricsHTTPFlag.Name); addr != "" {
		log.Info("Enabling stand-alone metrics HTTP endpoint", "address", addr)
		exp.Setup(addr)
	}
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}
