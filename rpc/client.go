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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

// Client is one end of a connection. It calls methods on the remote side and
// serves the services registered for the connection to it, so the same type is
// used by dialers and for every connection a Server accepts.
//
// A client lives as long as its connection. Once the connection breaks, calls
// fail and Done is closed; redialing is left to the caller.
type Client struct {
	conn codec
	h    *handler

	ids       atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn codec, services *serviceRegistry) *Client {
	c := &Client{conn: conn, done: make(chan struct{})}
	c.h = newHandler(c, conn, services)
	go c.readLoop()
	return c
}

// dial wraps a fresh connection in a client serving the configured services.
func dial(cfg *clientConfig, conn codec) (*Client, error) {
	services := new(serviceRegistry)
	for _, api := range cfg.services {
		if err := services.registerName(api.Namespace, api.Service); err != nil {
			conn.close()
			return nil, err
		}
	}
	return newClient(conn, services), nil
}

// Dial connects to the server at rawurl, a ws:// or wss:// url or the path of a
// local socket (a named pipe on Windows).
func Dial(rawurl string) (*Client, error) {
	return DialOptions(context.Background(), rawurl)
}

// DialOptions is like Dial with client options. ctx bounds connection
// establishment only.
func DialOptions(ctx context.Context, rawurl string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	cfg := newClientConfig(options)
	switch u.Scheme {
	case "ws", "wss":
		return dialWebsocket(ctx, rawurl, cfg)
	case "":
		return dialIPC(ctx, rawurl, cfg)
	}
	return nil, fmt.Errorf("no known transport for URL scheme %q", u.Scheme)
}

// RegisterName makes the methods of receiver callable by the remote side under
// namespace name.
func (c *Client) RegisterName(name string, receiver interface{}) error {
	return c.h.reg.registerName(name, receiver)
}

// Close drops the connection, failing in-flight calls with ErrClientQuit.
func (c *Client) Close() {
	c.shutdown(ErrClientQuit)
}

// Done is closed once the client has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call is CallContext without a context.
func (c *Client) Call(result interface{}, method string, args ...interface{}) error {
	return c.CallContext(context.Background(), result, method, args...)
}

// CallContext calls method with args and decodes the result into result, which
// must be a pointer or nil. It returns as soon as ctx is done.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if result != nil && reflect.TypeOf(result).Kind() != reflect.Ptr {
		return fmt.Errorf("call result parameter must be pointer or nil interface: %v", result)
	}
	id := strconv.AppendUint(nil, c.ids.Add(1), 10)
	msg, err := newCall(id, method, args)
	if err != nil {
		return err
	}
	resp, err := c.h.expect(string(id))
	if err != nil {
		return err
	}
	if err := c.conn.write(ctx, msg); err != nil {
		c.h.forget(string(id))
		return err
	}
	select {
	case m, ok := <-resp:
		if !ok {
			return c.h.failure()
		}
		return m.result(result)
	case <-ctx.Done():
		c.h.forget(string(id))
		return ctx.Err()
	}
}

// Notify calls method without waiting for, or asking for, a response.
func (c *Client) Notify(ctx context.Context, method string, args ...interface{}) error {
	select {
	case <-c.done:
		return ErrClientQuit
	default:
	}
	msg, err := newCall(nil, method, args)
	if err != nil {
		return err
	}
	return c.conn.write(ctx, msg)
}

func (c *Client) readLoop() {
	for {
		msg, err := c.conn.read()
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.conn.write(context.Background(), (*message)(nil).fail(&parseError{err.Error()}))
			}
			c.shutdown(err)
			return
		}
		c.h.handle(msg)
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.conn.close()
		c.h.shutdown(err)
		close(c.done)
	})
	<-c.done
}
