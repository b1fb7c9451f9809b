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
	"net/http"
)

// ClientOption configures a client at dial time.
type ClientOption interface {
	applyOption(*clientConfig)
}

type clientConfig struct {
	header   http.Header // sent with the websocket handshake
	httpAuth HTTPAuth
	services []API
}

func newClientConfig(options []ClientOption) *clientConfig {
	cfg := &clientConfig{header: make(http.Header)}
	for _, opt := range options {
		opt.applyOption(cfg)
	}
	return cfg
}

type optionFunc func(*clientConfig)

func (fn optionFunc) applyOption(cfg *clientConfig) {
	fn(cfg)
}

// API is a receiver served under a namespace.
type API struct {
	Namespace string
	Service   interface{}
}

// WithService serves receiver under namespace on the new connection. It is
// registered before the connection is established, so the remote side may call
// it as soon as it accepts.
func WithService(namespace string, receiver interface{}) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.services = append(cfg.services, API{Namespace: namespace, Service: receiver})
	})
}

// WithHeader sets a header of the websocket handshake request.
func WithHeader(key, value string) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.header.Set(key, value)
	})
}

// HTTPAuth adds credentials to the headers of a handshake request. It is
// called on every dial and must be safe for concurrent use.
type HTTPAuth func(h http.Header) error

// WithHTTPAuth authenticates websocket handshakes with a.
func WithHTTPAuth(a HTTPAuth) ClientOption {
	if a == nil {
		panic("nil auth")
	}
	return optionFunc(func(cfg *clientConfig) {
		cfg.httpAuth = a
	})
}
