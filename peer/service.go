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

// Package peer is the client side of the bridge, for peers written in Go. A peer
// serves the mandatory services in the "peer" namespace and calls host services
// through the connection it dialed.
package peer

import (
	"fmt"
	"sync"
)

const (
	// EnvEndpoint holds the socket path of the host, set for spawned peers.
	EnvEndpoint = "HOSTBRIDGE_ENDPOINT"

	// EnvWSEndpoint holds the websocket url of the host when it is enabled.
	EnvWSEndpoint = "HOSTBRIDGE_WS_ENDPOINT"

	// EnvJWTSecret holds the path of the jwt secret for websocket peers.
	EnvJWTSecret = "HOSTBRIDGE_JWT_SECRET"
)

// Namespace is the RPC namespace peers serve their services in.
const Namespace = "peer"

// Peer is implemented by types embedding Service.
type Peer interface {
	ClientName() string
	OnServerShutdown(inviteReconnect bool)
	Ping() string

	base() *Service
}

// Service implements the services every peer must provide. Embed it in a struct
// to add more; exported methods of the embedding type become peer services.
type Service struct {
	Name string

	once     sync.Once
	shutdown chan bool
}

// NewService creates a service announcing name at handshake.
func NewService(name string) *Service {
	return &Service{Name: name}
}

// ClientName returns the name the host registers this peer under.
func (s *Service) ClientName() string {
	return s.Name
}

// OnServerShutdown is called by the host before it goes away. The connection is
// closed after replying.
func (s *Service) OnServerShutdown(inviteReconnect bool) {
	s.init()
	select {
	case s.shutdown <- inviteReconnect:
	default:
	}
}

// Ping answers heartbeats.
func (s *Service) Ping() string {
	return "pong"
}

func (s *Service) base() *Service {
	s.init()
	return s
}

func (s *Service) init() {
	s.once.Do(func() { s.shutdown = make(chan bool, 1) })
}

// Error is a typed error returned by peer services. Its kind is reported to the
// host as the error type.
type Error struct {
	Kind string
	Msg  string
}

// Errorf creates an error of the given kind.
func Errorf(kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string     { return e.Msg }
func (e *Error) ErrorType() string { return e.Kind }
