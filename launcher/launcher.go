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

// Package launcher spawns peer processes: an interpreter running a script.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scriptbridge/hostbridge/log"
)

const pythonPathVar = "PYTHONPATH"

// Config describes how peers are launched.
type Config struct {
	// Interpreter is the executable that runs scripts.
	Interpreter string

	// Argv0 overrides the program name seen by the interpreter. Empty means
	// the interpreter path.
	Argv0 string

	// SitePackages are prepended to PYTHONPATH of every spawned process.
	SitePackages []string

	// Env is set in the environment of every spawned process.
	Env map[string]string

	// Unset lists variables removed from the environment of spawned processes.
	Unset []string

	// Dir is the working directory of spawned processes.
	Dir string
}

// Options are per-spawn settings. Env and Unset are applied after the
// launcher-wide ones.
type Options struct {
	Args []string

	// WantLogging logs every output line of the process. Output is captured
	// for Process.Output either way.
	WantLogging bool

	Env   map[string]string
	Unset []string
}

// Launcher starts peer processes.
type Launcher struct {
	config Config
	log    log.Logger
}

// New creates a launcher.
func New(config Config) *Launcher {
	return &Launcher{config: config, log: log.New("module", "launcher")}
}

// Config returns the launcher configuration.
func (l *Launcher) Config() Config {
	return l.config
}

// Spawn starts the interpreter on script and returns without waiting for it.
func (l *Launcher) Spawn(script string, opts Options) (*Process, error) {
	if script == "" {
		return nil, errors.New("launcher: empty script path")
	}
	if abs, err := filepath.Abs(script); err == nil {
		script = abs
	}
	args := append([]string{script}, opts.Args...)
	cmd := l.command(context.Background(), args, opts.Env, opts.Unset)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	l.log.Info("Starting client", "script", script, "args", opts.Args)
	if err := cmd.Start(); err != nil {
		return nil, l.installError(err)
	}
	p := newProcess(cmd, l.log.New("pid", cmd.Process.Pid))
	p.capture(stdout, "stdout", p.stdout, opts.WantLogging)
	p.capture(stderr, "stderr", p.stderr, opts.WantLogging)
	go p.wait()
	return p, nil
}

// Verify runs the interpreter with args and waits for it. Any failure to run is
// reported as an InstallError.
func (l *Launcher) Verify(ctx context.Context, args ...string) error {
	return l.runCheck(ctx, args, nil, nil)
}

// CheckModule verifies the interpreter can import module with the given
// environment overrides applied.
func (l *Launcher) CheckModule(ctx context.Context, module string, env map[string]string, unset []string) error {
	err := l.runCheck(ctx, []string{"-c", "import " + module}, env, unset)
	var ierr *InstallError
	if errors.As(err, &ierr) && ierr.Err != nil {
		var exit *exec.ExitError
		if errors.As(ierr.Err, &exit) {
			return &InstallError{
				Msg:  fmt.Sprintf("module %s cannot be found by %s", module, l.config.Interpreter),
				Hint: fmt.Sprintf("install %s for the configured interpreter", module),
				Err:  ierr.Err,
			}
		}
	}
	return err
}

func (l *Launcher) runCheck(ctx context.Context, args []string, env map[string]string, unset []string) error {
	cmd := l.command(ctx, args, env, unset)
	out, err := cmd.CombinedOutput()
	if err != nil {
		l.log.Debug("Interpreter check failed", "args", args, "output", strings.TrimSpace(string(out)), "err", err)
		return l.installError(err)
	}
	return nil
}

func (l *Launcher) installError(err error) error {
	return &InstallError{
		Msg:  fmt.Sprintf("cannot run interpreter %q", l.config.Interpreter),
		Hint: "check the interpreter setting points at a working executable",
		Err:  err,
	}
}

func (l *Launcher) command(ctx context.Context, args []string, env map[string]string, unset []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, l.config.Interpreter, args...)
	if l.config.Argv0 != "" {
		cmd.Args[0] = l.config.Argv0
	}
	cmd.Dir = l.config.Dir

	set := make(map[string]string, len(l.config.Env)+len(env)+1)
	for k, v := range l.config.Env {
		set[k] = v
	}
	if len(l.config.SitePackages) > 0 {
		paths := append([]string{}, l.config.SitePackages...)
		if cur := os.Getenv(pythonPathVar); cur != "" {
			paths = append(paths, cur)
		}
		set[pythonPathVar] = strings.Join(paths, string(os.PathListSeparator))
	}
	for k, v := range env {
		set[k] = v
	}
	cmd.Env = buildEnv(os.Environ(), set, append(append([]string{}, l.config.Unset...), unset...))
	return cmd
}

// buildEnv applies overrides to base, a list of KEY=VALUE entries. Variables in
// unset are removed after set is applied.
func buildEnv(base []string, set map[string]string, unset []string) []string {
	vars := make(map[string]string, len(base)+len(set))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[k] = v
	}
	for k, v := range set {
		vars[k] = v
	}
	for _, k := range unset {
		delete(vars, k)
	}
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
