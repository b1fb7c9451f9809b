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
	"encoding/json"
)

// CallService calls service on the newest connection of client and decodes the
// result into result, which must be a pointer or nil.
func (s *Server) CallService(ctx context.Context, result interface{}, client, service string, args ...interface{}) error {
	return s.CallServiceAt(ctx, result, client, -1, service, args...)
}

// CallServiceAt is like CallService but picks the connection of client at
// index. Index 0 is the oldest connection and -1 the newest.
func (s *Server) CallServiceAt(ctx context.Context, result interface{}, client string, index int, service string, args ...interface{}) error {
	conn, err := s.Connection(client, index)
	if err != nil {
		return err
	}
	return conn.Call(ctx, result, service, args...)
}

// CallServiceAsync starts a call on the newest connection of client and
// returns without waiting for it. Resolution errors are returned immediately.
func (s *Server) CallServiceAsync(ctx context.Context, client, service string, args ...interface{}) (*PendingCall, error) {
	return s.CallServiceAsyncAt(ctx, client, -1, service, args...)
}

// CallServiceAsyncAt is like CallServiceAsync with an explicit connection index.
func (s *Server) CallServiceAsyncAt(ctx context.Context, client string, index int, service string, args ...interface{}) (*PendingCall, error) {
	conn, err := s.Connection(client, index)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	call := &PendingCall{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		call.err = conn.Call(ctx, &call.result, service, args...)
		close(call.done)
	}()
	return call, nil
}

// CloseClient asks the newest connection of name to shut down. The peer
// dropping the connection before answering counts as success.
func (s *Server) CloseClient(ctx context.Context, name string, inviteRetry bool) error {
	conn, err := s.Connection(name, -1)
	if err != nil {
		return err
	}
	if err := conn.notifyShutdown(ctx, inviteRetry); !isExpectedDisconnect(err) {
		return err
	}
	return nil
}

// PendingCall is an asynchronous service call in flight.
type PendingCall struct {
	done   chan struct{}
	cancel context.CancelFunc
	result json.RawMessage
	err    error
}

// Done is closed when the call has completed.
func (c *PendingCall) Done() <-chan struct{} {
	return c.done
}

// Ready reports whether the call has completed.
func (c *PendingCall) Ready() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result decodes the result of a completed call into result, or returns the
// call's error. It returns ErrCallPending if the call is still running.
func (c *PendingCall) Result(result interface{}) error {
	if !c.Ready() {
		return ErrCallPending
	}
	if c.err != nil {
		return c.err
	}
	if result == nil || len(c.result) == 0 {
		return nil
	}
	return json.Unmarshal(c.result, result)
}

// Wait blocks until the call completes or ctx ends, then behaves like Result.
func (c *PendingCall) Wait(ctx context.Context, result interface{}) error {
	select {
	case <-c.done:
		return c.Result(result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel abandons the call. A call already answered is unaffected.
func (c *PendingCall) Cancel() {
	c.cancel()
}
