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

package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/scriptbridge/hostbridge/log"
)

// StartIPCEndpoint listens on the local socket (named pipe on Windows) at
// endpoint and serves srv on it in the background. Closing the returned listener
// stops accepting.
func StartIPCEndpoint(endpoint string, srv *Server) (net.Listener, error) {
	l, err := ipcListen(endpoint)
	if err != nil {
		return nil, err
	}
	go srv.ServeListener(l)
	return l, nil
}

// ServeListener serves every connection accepted on l until l fails.
func (s *Server) ServeListener(l net.Listener) error {
	for {
		conn, err := l.Accept()
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			log.Warn("RPC accept error", "err", err)
			continue
		case err != nil:
			return err
		}
		log.Trace("Accepted RPC connection", "conn", conn.RemoteAddr())
		go s.serve(newStreamCodec(conn, "ipc"))
	}
}

// DialIPC connects to the local socket or named pipe at endpoint.
func DialIPC(ctx context.Context, endpoint string, options ...ClientOption) (*Client, error) {
	return dialIPC(ctx, endpoint, newClientConfig(options))
}

func dialIPC(ctx context.Context, endpoint string, cfg *clientConfig) (*Client, error) {
	conn, err := newIPCConnection(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return dial(cfg, newStreamCodec(conn, "ipc"))
}
