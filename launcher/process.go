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

package launcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"

	"github.com/scriptbridge/hostbridge/log"
	"github.com/shirou/gopsutil/process"
)

// outputLimit bounds the captured bytes kept per stream.
const outputLimit = 1 << 20

// Process is a spawned peer.
type Process struct {
	cmd    *exec.Cmd
	log    log.Logger
	output sync.WaitGroup

	stdout *tailBuffer
	stderr *tailBuffer

	done chan struct{}
	code int
	err  error
}

func newProcess(cmd *exec.Cmd, logger log.Logger) *Process {
	return &Process{
		cmd:    cmd,
		log:    logger,
		stdout: newTailBuffer(outputLimit),
		stderr: newTailBuffer(outputLimit),
		done:   make(chan struct{}),
	}
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Poll reports the exit code once the process has exited.
func (p *Process) Poll() (code int, exited bool) {
	select {
	case <-p.done:
		return p.code, true
	default:
		return 0, false
	}
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx ends. A non-zero exit is reported
// as an *ExitError.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Output waits for the process like Wait and returns what it wrote to stdout
// and stderr. Only the last outputLimit bytes of each stream are kept. The
// output is returned together with an *ExitError for a non-zero exit.
func (p *Process) Output(ctx context.Context) (stdout, stderr []byte, err error) {
	if err := p.Wait(ctx); err != nil {
		var exit *ExitError
		if !errors.As(err, &exit) {
			return nil, nil, err
		}
	}
	return p.stdout.Bytes(), p.stderr.Bytes(), p.err
}

// Kill terminates the process together with any processes it started.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	proc, err := process.NewProcess(int32(p.Pid()))
	if err != nil {
		// Already reaped between the check above and here.
		return p.cmd.Process.Kill()
	}
	killTree(proc, p.log)
	return nil
}

func killTree(proc *process.Process, logger log.Logger) {
	children, _ := proc.Children()
	for _, child := range children {
		killTree(child, logger)
	}
	if err := proc.Kill(); err != nil {
		logger.Debug("Failed to kill process", "pid", proc.Pid, "err", err)
	}
}

func (p *Process) wait() {
	// Pipes must be drained before cmd.Wait closes them.
	p.output.Wait()
	if n := p.stdout.Dropped() + p.stderr.Dropped(); n > 0 {
		p.log.Debug("Client output truncated", "dropped", n)
	}
	err := p.cmd.Wait()

	var exit *exec.ExitError
	switch {
	case err == nil:
		p.log.Debug("Client exited")
	case errors.As(err, &exit):
		p.code = exit.ExitCode()
		p.err = &ExitError{Pid: p.Pid(), Code: p.code}
		p.log.Debug("Client exited", "status", p.code)
	default:
		p.code = -1
		p.err = err
		p.log.Warn("Client wait failed", "err", err)
	}
	close(p.done)
}

// capture copies r into buf until EOF. Each line is also logged when logging
// is set; lines longer than the reader buffer are logged in pieces.
func (p *Process) capture(r io.Reader, stream string, buf *tailBuffer, logging bool) {
	p.output.Add(1)
	go func() {
		defer p.output.Done()
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadSlice('\n')
			if len(line) > 0 {
				buf.Write(line)
				if logging {
					p.log.Info("Client output", "stream", stream, "line", trimEOL(line))
				}
			}
			if err != nil && err != bufio.ErrBufferFull {
				return
			}
		}
	}()
}

func trimEOL(line []byte) string {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return string(line[:n])
}

// tailBuffer is a writer that keeps the most recent limit bytes.
type tailBuffer struct {
	mu      sync.Mutex
	data    []byte
	limit   int
	dropped int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.limit {
		b.dropped += len(b.data) + n - b.limit
		b.data = append(b.data[:0], p[n-b.limit:]...)
		return n, nil
	}
	if over := len(b.data) + n - b.limit; over > 0 {
		b.dropped += over
		b.data = append(b.data[:0], b.data[over:]...)
	}
	b.data = append(b.data, p...)
	return n, nil
}

// Bytes returns a copy of the retained output.
func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Dropped reports how many leading bytes were discarded.
func (b *tailBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
