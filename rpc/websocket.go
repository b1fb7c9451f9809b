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
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"github.com/scriptbridge/hostbridge/log"
)

const (
	wsBufferSize   = 1024
	wsReadLimit    = 32 * 1024 * 1024
	wsPingInterval = 30 * time.Second
	wsPingTimeout  = 5 * time.Second
	wsPongTimeout  = 30 * time.Second
)

var wsWriteBuffers = new(sync.Pool)

// WebsocketHandler serves the server to websocket connections whose Origin
// matches one of allowedOrigins. "*" allows any origin; an empty list allows
// the local host only.
func (s *Server) WebsocketHandler(allowedOrigins []string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		WriteBufferPool: wsWriteBuffers,
		CheckOrigin:     newOriginPolicy(allowedOrigins).check,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("WebSocket upgrade failed", "err", err)
			return
		}
		codec := newWebsocketCodec(conn, wsReadLimit)
		codec.info.HTTP.Host = r.Host
		codec.info.HTTP.Origin = r.Header.Get("Origin")
		codec.info.HTTP.UserAgent = r.Header.Get("User-Agent")
		s.serve(codec)
	})
}

// originRule matches browser origins. Empty parts match anything.
type originRule struct {
	scheme, host, port string
}

func parseOrigin(origin string) (originRule, error) {
	origin = strings.ToLower(origin)
	if !strings.Contains(origin, "://") {
		// A bare host or host:port.
		host, port, found := strings.Cut(origin, ":")
		if !found {
			return originRule{host: origin}, nil
		}
		return originRule{host: host, port: port}, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return originRule{}, err
	}
	return originRule{scheme: u.Scheme, host: u.Hostname(), port: u.Port()}, nil
}

func (r originRule) allows(o originRule) bool {
	return (r.scheme == "" || r.scheme == o.scheme) &&
		(r.host == "" || r.host == o.host) &&
		(r.port == "" || r.port == o.port)
}

type originPolicy struct {
	any   bool
	exact mapset.Set[string]
	rules []originRule
}

func newOriginPolicy(allowed []string) *originPolicy {
	p := &originPolicy{exact: mapset.NewSet[string]()}
	for _, origin := range allowed {
		if origin == "*" {
			p.any = true
		}
		if origin != "" {
			p.exact.Add(strings.ToLower(origin))
		}
	}
	if p.exact.Cardinality() == 0 {
		p.exact.Add("http://localhost")
		if hostname, err := os.Hostname(); err == nil {
			p.exact.Add("http://" + strings.ToLower(hostname))
		}
	}
	for _, origin := range p.exact.ToSlice() {
		rule, err := parseOrigin(origin)
		if err != nil {
			log.Warn("Ignoring invalid allowed origin", "origin", origin, "err", err)
			continue
		}
		p.rules = append(p.rules, rule)
	}
	log.Debug("Allowed WebSocket origins", "origins", p.exact.ToSlice())
	return p
}

// check accepts requests without an Origin header. Only browsers are held to
// the policy, and they always send one.
func (p *originPolicy) check(r *http.Request) bool {
	if _, ok := r.Header["Origin"]; !ok || p.any {
		return true
	}
	origin := strings.ToLower(r.Header.Get("Origin"))
	if p.exact.Contains(origin) {
		return true
	}
	if o, err := parseOrigin(origin); err == nil {
		for _, rule := range p.rules {
			if rule.allows(o) {
				return true
			}
		}
	}
	log.Warn("Rejected WebSocket connection", "origin", origin)
	return false
}

// DialWebsocket connects to a websocket server at endpoint. origin, if set, is
// sent as the Origin header.
func DialWebsocket(ctx context.Context, endpoint, origin string, options ...ClientOption) (*Client, error) {
	cfg := newClientConfig(options)
	if origin != "" {
		cfg.header.Set("Origin", origin)
	}
	return dialWebsocket(ctx, endpoint, cfg)
}

func dialWebsocket(ctx context.Context, endpoint string, cfg *clientConfig) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	header := cfg.header.Clone()
	if u.User != nil {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(u.User.String())))
		u.User = nil
	}
	if cfg.httpAuth != nil {
		if err := cfg.httpAuth(header); err != nil {
			return nil, err
		}
	}
	dialer := websocket.Dialer{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		WriteBufferPool: wsWriteBuffers,
		Proxy:           http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP status %s)", err, resp.Status)
		}
		return nil, err
	}
	return dial(cfg, newWebsocketCodec(conn, wsReadLimit))
}

// websocketCodec sends one message per text frame. It pings the remote side
// when the connection is idle and drops it when no pong arrives in time.
type websocketCodec struct {
	conn *websocket.Conn
	info PeerInfo

	wmu sync.Mutex

	once  sync.Once
	done  chan struct{}
	wg    sync.WaitGroup
	wrote chan struct{}
	pongs chan struct{}
}

func newWebsocketCodec(conn *websocket.Conn, readLimit int64) *websocketCodec {
	conn.SetReadLimit(readLimit)
	c := &websocketCodec{
		conn:  conn,
		info:  PeerInfo{Transport: "ws", RemoteAddr: conn.RemoteAddr().String()},
		done:  make(chan struct{}),
		wrote: make(chan struct{}, 1),
		pongs: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case c.pongs <- struct{}{}:
		case <-c.done:
		}
		return nil
	})
	c.wg.Add(1)
	go c.keepalive()
	return c
}

func (c *websocketCodec) read() (*message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return parseMessage(data), nil
}

func (c *websocketCodec) write(ctx context.Context, msg *message) error {
	c.wmu.Lock()
	c.conn.SetWriteDeadline(writeDeadline(ctx))
	err := c.conn.WriteJSON(msg)
	c.wmu.Unlock()

	if err == nil {
		select {
		case c.wrote <- struct{}{}:
		default:
		}
	}
	return err
}

func (c *websocketCodec) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	c.wg.Wait()
}

func (c *websocketCodec) closed() <-chan struct{} { return c.done }

func (c *websocketCodec) peer() PeerInfo { return c.info }

func (c *websocketCodec) keepalive() {
	defer c.wg.Done()

	timer := time.NewTimer(wsPingInterval)
	defer timer.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-c.wrote:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(wsPingInterval)
		case <-timer.C:
			c.wmu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(wsPingTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			c.wmu.Unlock()
			timer.Reset(wsPingInterval)
		case <-c.pongs:
			c.conn.SetReadDeadline(time.Time{})
		}
	}
}
