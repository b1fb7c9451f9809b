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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/rpc"
)

// peerNamespace is the RPC namespace every peer serves.
const peerNamespace = "peer"

// Connection is one live peer session. Its name is fixed at handshake.
type Connection struct {
	id          string
	name        string
	client      *rpc.Client
	info        rpc.PeerInfo
	connectedAt time.Time
	proxy       *hostobj.Proxy
	callTimeout time.Duration
	log         log.Logger
}

func newConnection(client *rpc.Client, info rpc.PeerInfo, proxy *hostobj.Proxy, callTimeout time.Duration, logger log.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:          id,
		client:      client,
		info:        info,
		connectedAt: time.Now(),
		proxy:       proxy,
		callTimeout: callTimeout,
		log:         logger.New("conn", id[:8], "transport", info.Transport),
	}
}

// ID returns the unique id of the connection.
func (c *Connection) ID() string { return c.id }

// Name returns the client name declared at handshake.
func (c *Connection) Name() string { return c.name }

// ConnectedAt returns when the connection was accepted.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// PeerInfo describes the transport of the connection.
func (c *Connection) PeerInfo() rpc.PeerInfo { return c.info }

// Proxy returns the host object proxy serving this peer.
func (c *Connection) Proxy() *hostobj.Proxy { return c.proxy }

// Done is closed when the connection has gone away.
func (c *Connection) Done() <-chan struct{} { return c.client.Done() }

// Call invokes service on the peer and stores the result into result, which
// must be a pointer or nil. Service names are resolved in the peer namespace.
func (c *Connection) Call(ctx context.Context, result interface{}, service string, args ...interface{}) error {
	method := service
	if !strings.HasPrefix(method, peerNamespace+"_") {
		method = peerNamespace + "_" + service
	}
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	c.log.Trace("Calling client service", "method", method)
	return wrapCallError(method, c.client.CallContext(ctx, result, method, args...))
}

// notifyShutdown tells the peer the server is going away.
func (c *Connection) notifyShutdown(ctx context.Context, inviteReconnect bool) error {
	return c.Call(ctx, nil, "on_server_shutdown", inviteReconnect)
}

// Close drops the connection.
func (c *Connection) Close() {
	c.client.Close()
}
