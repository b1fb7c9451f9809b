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

//go:build windows

package rpc

import (
	"context"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeDialTimeout applies when the dial context has no deadline. Named pipes
// are local, so there is no reason to wait long.
const pipeDialTimeout = 2 * time.Second

func ipcListen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, nil)
}

func newIPCConnection(ctx context.Context, endpoint string) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pipeDialTimeout)
		defer cancel()
	}
	return winio.DialPipeContext(ctx, endpoint)
}
