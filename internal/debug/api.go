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

// Package debug wires Go runtime debugging facilities to the command line and
// to the bridge's debug RPC namespace.
package debug

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"sync"

	"github.com/scriptbridge/hostbridge/internal/flags"
	"github.com/scriptbridge/hostbridge/log"
)

// Handler is the process wide debug API. The bridge serves it under the
// "debug" namespace when DebugAPI is enabled.
var Handler = &API{
	cpu:   recording{name: "CPU profile", start: pprof.StartCPUProfile, stop: pprof.StopCPUProfile},
	trace: recording{name: "Go trace", start: trace.Start, stop: trace.Stop},
}

// API exposes log level control, runtime statistics and profiling.
type API struct {
	mu    sync.Mutex
	cpu   recording
	trace recording
}

// recording is a runtime capture that streams into a file until stopped.
type recording struct {
	name  string
	start func(io.Writer) error
	stop  func()

	out  io.WriteCloser
	file string
}

func (r *recording) begin(file string) error {
	if r.out != nil {
		return fmt.Errorf("%s already in progress", r.name)
	}
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	if err := r.start(f); err != nil {
		f.Close()
		return err
	}
	r.out, r.file = f, file
	log.Info("Recording started", "kind", r.name, "dump", file)
	return nil
}

func (r *recording) end() error {
	r.stop()
	if r.out == nil {
		return fmt.Errorf("%s not in progress", r.name)
	}
	log.Info("Recording finished", "kind", r.name, "dump", r.file)
	err := r.out.Close()
	r.out, r.file = nil, ""
	return err
}

// Verbosity sets the global log level, as a --verbosity number.
func (*API) Verbosity(level int) {
	glogger.Verbosity(log.FromLegacyLevel(level))
}

// Vmodule replaces the per-file log levels, in --log.vmodule syntax.
func (*API) Vmodule(pattern string) error {
	return glogger.Vmodule(pattern)
}

// MemStats returns the runtime memory statistics.
func (*API) MemStats() *runtime.MemStats {
	var s runtime.MemStats
	runtime.ReadMemStats(&s)
	return &s
}

// GcStats returns the garbage collector statistics.
func (*API) GcStats() *debug.GCStats {
	var s debug.GCStats
	debug.ReadGCStats(&s)
	return &s
}

// StartCPUProfile starts writing a CPU profile to file.
func (a *API) StartCPUProfile(file string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cpu.begin(file)
}

// StopCPUProfile finishes the CPU profile.
func (a *API) StopCPUProfile() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cpu.end()
}

// StartGoTrace starts writing an execution trace to file.
func (a *API) StartGoTrace(file string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trace.begin(file)
}

// StopGoTrace finishes the execution trace.
func (a *API) StopGoTrace() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trace.end()
}

// SetBlockProfileRate sets the block profiling rate; 0 disables it.
func (*API) SetBlockProfileRate(rate int) {
	runtime.SetBlockProfileRate(rate)
}

// WriteBlockProfile dumps the block profile to file.
func (*API) WriteBlockProfile(file string) error {
	return writeProfile("block", file)
}

// WriteMemProfile dumps the heap profile to file.
func (*API) WriteMemProfile(file string) error {
	return writeProfile("heap", file)
}

// Stacks returns the stacks of all goroutines. A non-empty filter keeps only
// those mentioning it, e.g. "jobqueue" for stuck drain jobs.
func (*API) Stacks(filter *string) string {
	var buf bytes.Buffer
	pprof.Lookup("goroutine").WriteTo(&buf, 2)
	if filter == nil || *filter == "" {
		return buf.String()
	}
	var out strings.Builder
	for _, g := range strings.Split(buf.String(), "\n\n") {
		if strings.Contains(g, *filter) {
			out.WriteString(g)
			out.WriteString("\n\n")
		}
	}
	return out.String()
}

// FreeOSMemory runs a collection and returns freed memory to the OS.
func (*API) FreeOSMemory() {
	debug.FreeOSMemory()
}

func writeProfile(name, file string) error {
	p := pprof.Lookup(name)
	log.Info("Writing profile", "type", name, "records", p.Count(), "dump", file)
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~"); ok && (strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, `\`)) {
		if home := flags.HomeDir(); home != "" {
			p = home + rest
		}
	}
	return filepath.Clean(p)
}
