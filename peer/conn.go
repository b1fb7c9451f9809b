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

package peer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/rpc"
)

// Conn is a connection to the host.
type Conn struct {
	client *rpc.Client
	svc    *Service

	mu       sync.Mutex
	notified bool
	invite   bool
}

// Dial connects to the host at endpoint, a socket path or a ws:// url, and
// serves svc on the connection.
func Dial(ctx context.Context, endpoint string, svc Peer, opts ...rpc.ClientOption) (*Conn, error) {
	opts = append(opts, rpc.WithService(Namespace, svc))
	client, err := rpc.DialOptions(ctx, endpoint, opts...)
	if err != nil {
		return nil, err
	}
	c := &Conn{client: client, svc: svc.base()}
	go c.watchShutdown()
	return c, nil
}

// DialEnv connects to the host announced in the environment of a spawned peer.
func DialEnv(ctx context.Context, svc Peer) (*Conn, error) {
	endpoint, opts, err := EndpointFromEnv()
	if err != nil {
		return nil, err
	}
	return Dial(ctx, endpoint, svc, opts...)
}

// EndpointFromEnv returns the host endpoint set by the launcher, preferring
// the local socket over the websocket.
func EndpointFromEnv() (string, []rpc.ClientOption, error) {
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		return endpoint, nil, nil
	}
	endpoint := os.Getenv(EnvWSEndpoint)
	if endpoint == "" {
		return "", nil, fmt.Errorf("neither %s nor %s is set", EnvEndpoint, EnvWSEndpoint)
	}
	secret, err := LoadJWTSecret(os.Getenv(EnvJWTSecret))
	if err != nil {
		return "", nil, err
	}
	return endpoint, []rpc.ClientOption{rpc.WithHTTPAuth(rpc.NewJWTAuth(secret))}, nil
}

// LoadJWTSecret reads a hex encoded 32 byte secret from fileName.
func LoadJWTSecret(fileName string) ([]byte, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x"))
	if err != nil {
		return nil, err
	}
	if len(secret) != 32 {
		return nil, errors.New("invalid JWT secret length")
	}
	return secret, nil
}

// Host returns the client used to call host services.
func (c *Conn) Host() *rpc.Client {
	return c.client
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.client.Done()
}

// Close drops the connection.
func (c *Conn) Close() {
	c.client.Close()
}

// Shutdown reports whether the host announced its shutdown on this connection,
// and if so whether it invited a reconnect.
func (c *Conn) Shutdown() (notified, inviteReconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified, c.invite
}

func (c *Conn) watchShutdown() {
	select {
	case invite := <-c.svc.shutdown:
		c.mu.Lock()
		c.notified, c.invite = true, invite
		c.mu.Unlock()
		log.Debug("Host is shutting down", "invite", invite)
		c.client.Close()
	case <-c.client.Done():
	}
}
