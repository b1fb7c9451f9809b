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

package debug

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/scriptbridge/hostbridge/internal/flags"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics"
	"github.com/scriptbridge/hostbridge/metrics/exp"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Log level: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logVmoduleFlag = &cli.StringFlag{
		Name:     "log.vmodule",
		Usage:    "Per-file log levels as path=N pairs (e.g. bridge/*=5,rpc/handler.go=4)",
		Category: flags.LoggingCategory,
	}
	logFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log output format: terminal, logfmt or json",
		Value:    "terminal",
		Category: flags.LoggingCategory,
	}
	logFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Also append logs to this file",
		Category: flags.LoggingCategory,
	}
	logRotateFlag = &cli.BoolFlag{
		Name:     "log.rotate",
		Usage:    "Rotate the log file (see --log.maxsize, --log.maxbackups, --log.maxage)",
		Category: flags.LoggingCategory,
	}
	logMaxSizeFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Size in megabytes at which the log file is rotated",
		Value:    100,
		Category: flags.LoggingCategory,
	}
	logMaxBackupsFlag = &cli.IntFlag{
		Name:     "log.maxbackups",
		Usage:    "Number of rotated log files kept",
		Value:    10,
		Category: flags.LoggingCategory,
	}
	logMaxAgeFlag = &cli.IntFlag{
		Name:     "log.maxage",
		Usage:    "Days a rotated log file is kept",
		Value:    30,
		Category: flags.LoggingCategory,
	}
	logCompressFlag = &cli.BoolFlag{
		Name:     "log.compress",
		Usage:    "Gzip rotated log files",
		Category: flags.LoggingCategory,
	}
	pprofFlag = &cli.BoolFlag{
		Name:     "pprof",
		Usage:    "Serve net/http/pprof (and metrics, unless --metrics.addr is set)",
		Category: flags.LoggingCategory,
	}
	pprofAddrFlag = &cli.StringFlag{
		Name:     "pprof.addr",
		Usage:    "Interface the pprof server listens on",
		Value:    "127.0.0.1",
		Category: flags.LoggingCategory,
	}
	pprofPortFlag = &cli.IntFlag{
		Name:     "pprof.port",
		Usage:    "Port the pprof server listens on",
		Value:    6060,
		Category: flags.LoggingCategory,
	}
	blockProfileRateFlag = &cli.IntFlag{
		Name:     "pprof.blockprofilerate",
		Usage:    "Block profiling rate (0 disables)",
		Category: flags.LoggingCategory,
	}
	cpuProfileFlag = &cli.StringFlag{
		Name:     "pprof.cpuprofile",
		Usage:    "Write a CPU profile to this file until exit",
		Category: flags.LoggingCategory,
	}
	traceFlag = &cli.StringFlag{
		Name:     "go-execution-trace",
		Usage:    "Write a Go execution trace to this file until exit",
		Category: flags.LoggingCategory,
	}
)

// Flags are the logging and profiling flags shared by every command.
var Flags = []cli.Flag{
	verbosityFlag, logVmoduleFlag, logFormatFlag,
	logFileFlag, logRotateFlag, logMaxSizeFlag, logMaxBackupsFlag, logMaxAgeFlag, logCompressFlag,
	pprofFlag, pprofAddrFlag, pprofPortFlag, blockProfileRateFlag, cpuProfileFlag, traceFlag,
}

var (
	// glogger is the filter the debug API adjusts at runtime.
	glogger = log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
	// logFile is the open log file or rotator, closed by Exit.
	logFile io.WriteCloser
)

// Setup installs the root logger and starts whatever profiling the flags ask
// for. Commands run it from their Before hook.
func Setup(ctx *cli.Context) error {
	file, where, err := openLogFile(ctx)
	if err != nil {
		return err
	}
	logFile = file

	handler, err := newHandler(ctx.String(logFormatFlag.Name), file)
	if err != nil {
		return err
	}
	glogger = log.NewGlogHandler(handler)
	glogger.Verbosity(log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))
	if err := glogger.Vmodule(ctx.String(logVmoduleFlag.Name)); err != nil {
		return fmt.Errorf("invalid --%s: %v", logVmoduleFlag.Name, err)
	}
	log.SetDefault(log.NewLogger(glogger))
	if file != nil {
		log.Info("Logging to file", "location", where, "rotate", ctx.Bool(logRotateFlag.Name))
	}

	if err := startProfiling(ctx); err != nil {
		return err
	}
	if ctx.Bool(pprofFlag.Name) {
		addr := net.JoinHostPort(ctx.String(pprofAddrFlag.Name), strconv.Itoa(ctx.Int(pprofPortFlag.Name)))
		// --metrics.addr belongs to the command; referencing the flag here
		// would be an import cycle.
		StartPProf(addr, !ctx.IsSet("metrics.addr"))
	}
	return nil
}

// openLogFile opens the --log.file target, or a lumberjack rotator when
// --log.rotate is set. It returns nil when logs only go to the terminal.
func openLogFile(ctx *cli.Context) (io.WriteCloser, string, error) {
	path := ctx.String(logFileFlag.Name)
	rotate := ctx.Bool(logRotateFlag.Name)
	if path == "" && !rotate {
		return nil, "", nil
	}
	if path != "" {
		if err := checkWritable(filepath.Dir(path)); err != nil {
			return nil, "", fmt.Errorf("failed to initialize file logger: %v", err)
		}
	}
	if rotate {
		where := path
		if where == "" {
			// lumberjack's own default location
			where = filepath.Join(os.TempDir(), filepath.Base(os.Args[0])+"-lumberjack.log")
		}
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    ctx.Int(logMaxSizeFlag.Name),
			MaxBackups: ctx.Int(logMaxBackupsFlag.Name),
			MaxAge:     ctx.Int(logMaxAgeFlag.Name),
			Compress:   ctx.Bool(logCompressFlag.Name),
		}, where, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// newHandler builds the handler for format writing to stderr and, if non-nil,
// to file. Colors are only used on a capable terminal.
func newHandler(format string, file io.Writer) (slog.Handler, error) {
	var stderr io.Writer = os.Stderr
	color := false
	if format == "" || format == "terminal" {
		fd := os.Stderr.Fd()
		color = (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) && os.Getenv("TERM") != "dumb"
		if color {
			stderr = colorable.NewColorableStderr()
		}
	}
	out := stderr
	if file != nil {
		out = io.MultiWriter(file, stderr)
	}
	switch format {
	case "", "terminal":
		return log.NewTerminalHandler(out, color), nil
	case "logfmt":
		return log.LogfmtHandler(out), nil
	case "json":
		return log.JSONHandler(out), nil
	default:
		return nil, fmt.Errorf("unknown log format: %v", format)
	}
}

func startProfiling(ctx *cli.Context) error {
	Handler.SetBlockProfileRate(ctx.Int(blockProfileRateFlag.Name))
	if file := ctx.String(traceFlag.Name); file != "" {
		if err := Handler.StartGoTrace(file); err != nil {
			return err
		}
	}
	if file := ctx.String(cpuProfileFlag.Name); file != "" {
		if err := Handler.StartCPUProfile(file); err != nil {
			return err
		}
	}
	return nil
}

// StartPProf serves net/http/pprof on address in the background. With
// withMetrics the expvar metrics handler is mounted too.
func StartPProf(address string, withMetrics bool) {
	if withMetrics {
		exp.Exp(metrics.DefaultRegistry)
	}
	log.Info("Starting pprof server", "addr", "http://"+address+"/debug/pprof")
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.Error("Failure in running pprof server", "err", err)
		}
	}()
}

// Exit stops running profiles and closes the log file.
func Exit() {
	Handler.StopCPUProfile()
	Handler.StopGoTrace()
	if logFile != nil {
		logFile.Close()
	}
}

// checkWritable creates dir if needed and verifies a file can be made in it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating the directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".hostbridge-log-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}
