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
	"syscall"

	"github.com/scriptbridge/hostbridge/jobqueue"
	"github.com/scriptbridge/hostbridge/launcher"
	"github.com/scriptbridge/hostbridge/rpc"
)

var (
	ErrServerRunning = errors.New("another bridge server is using this socket")
	ErrServerStopped = errors.New("bridge server not started")
	ErrCallPending   = errors.New("call has not completed")

	// ErrInvalidArgument is shared with the job queue so that drain budget
	// errors match it too.
	ErrInvalidArgument = jobqueue.ErrInvalidArgument

	datadirInUseErrnos = map[uint]bool{11: true, 32: true, 35: true}
)

// InstallError reports that the bridge cannot run in this installation: the
// transport cannot be created or the interpreter is unusable.
type InstallError = launcher.InstallError

// ExitError is returned when a spawned client exits with a non-zero status.
type ExitError = launcher.ExitError

func convertFileLockError(err error) error {
	if errno, ok := err.(syscall.Errno); ok && datadirInUseErrnos[uint(errno)] {
		return ErrServerRunning
	}
	return err
}

// ClientNotFoundError is returned when no connection is registered under a name.
type ClientNotFoundError struct {
	Name string
}

func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("no client named %q is connected", e.Name)
}

func (e *ClientNotFoundError) ErrorType() string { return "ClientNotFoundError" }

// ConnectionIndexError is returned when a name is registered but has no
// connection at the requested index.
type ConnectionIndexError struct {
	Name  string
	Index int
	Len   int
}

func (e *ConnectionIndexError) Error() string {
	return fmt.Sprintf("client %q has %d connections, index %d out of range", e.Name, e.Len, e.Index)
}

func (e *ConnectionIndexError) ErrorType() string { return "IndexError" }

// RemoteError is an error raised by the service on the other end of a call.
type RemoteError struct {
	Type    string // error type name reported by the peer
	Message string
	Code    int // JSON-RPC error code
}

func (e *RemoteError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

func (e *RemoteError) ErrorType() string { return e.Type }

// TransportError is returned when a call could not complete because the
// connection failed.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// wrapCallError sorts the error of an outgoing call into the bridge taxonomy.
// Context errors are returned unchanged.
func wrapCallError(method string, err error) error {
	if err == nil {
		return nil
	}
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return &RemoteError{Type: rpc.ErrorType(err), Message: rerr.Error(), Code: rerr.ErrorCode()}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Method: method, Err: err}
}

// isExpectedDisconnect reports whether err is the peer dropping the connection,
// which is how peers acknowledge a shutdown request.
func isExpectedDisconnect(err error) bool {
	var terr *TransportError
	return err == nil || errors.As(err, &terr)
}
