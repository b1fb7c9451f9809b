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
	"sort"
	"sync"

	"github.com/scriptbridge/hostbridge/log"
)

// ConnectionHandler is notified about the lifecycle of every connection served.
// Connected runs on the connection's own goroutine after its client is live, so it
// may issue calls to the remote side. Disconnected runs once the connection has
// closed and its client has shut down.
type ConnectionHandler interface {
	Connected(c *Client, info PeerInfo)
	Disconnected(c *Client)
}

// Server accepts connections and serves its registered services on each.
type Server struct {
	services serviceRegistry
	handler  ConnectionHandler

	mu      sync.Mutex
	conns   map[codec]struct{}
	stopped bool
}

// NewServer creates a server. It serves the "rpc" namespace listing the
// registered namespaces.
func NewServer() *Server {
	s := &Server{conns: make(map[codec]struct{})}
	s.RegisterName("rpc", &introspection{s})
	return s
}

// SetConnectionHandler installs h to be told about connections. It must be called
// before the server starts serving.
func (s *Server) SetConnectionHandler(h ConnectionHandler) {
	s.handler = h
}

// RegisterName makes the methods of receiver callable under namespace name on
// every connection.
func (s *Server) RegisterName(name string, receiver interface{}) error {
	return s.services.registerName(name, receiver)
}

// serve runs a connection until it closes or the server stops.
func (s *Server) serve(conn codec) {
	if !s.track(conn) {
		conn.close()
		return
	}
	defer s.untrack(conn)

	c := newClient(conn, &s.services)
	if s.handler != nil {
		s.handler.Connected(c, conn.peer())
	}
	<-c.Done()
	if s.handler != nil {
		s.handler.Disconnected(c)
	}
}

func (s *Server) track(conn codec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn codec) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Stop closes every connection and refuses new ones. Calls in progress see
// their context canceled.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	log.Debug("RPC server shutting down", "conns", len(s.conns))
	for conn := range s.conns {
		conn.close()
	}
}

type introspection struct {
	server *Server
}

// Namespaces lists the registered namespaces in sorted order.
func (api *introspection) Namespaces() []string {
	names := api.server.services.modules()
	sort.Strings(names)
	return names
}

// PeerInfo describes the remote end of a connection. Method handlers get it
// through PeerInfoFromContext.
type PeerInfo struct {
	// Transport is "ipc", "inproc" or "ws".
	Transport string

	// RemoteAddr is the remote address if the transport has one.
	RemoteAddr string

	// HTTP describes the websocket handshake request.
	HTTP struct {
		UserAgent string
		Origin    string
		Host      string
	}
}
