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
	"errors"
	"strings"

	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/rpc"
	"github.com/scriptbridge/hostbridge/version"
)

// hostNamespace is the RPC namespace of the services peers call on the host.
const hostNamespace = "host"

var errNoConnection = errors.New("request does not belong to a live connection")

// hostAPI is the host service exposed to peers. Each request is served against
// the object space of the connection it arrived on.
type hostAPI struct {
	inst *instance
}

func (api *hostAPI) connection(ctx context.Context) (*Connection, error) {
	client, ok := rpc.ClientFromContext(ctx)
	if !ok {
		return nil, errNoConnection
	}
	conn, ok := api.inst.lookupClient(client)
	if !ok {
		return nil, errNoConnection
	}
	return conn, nil
}

// Version returns the bridge protocol version.
func (api *hostAPI) Version() int {
	return version.Protocol
}

// Log writes a message from the peer into the host log.
func (api *hostAPI) Log(ctx context.Context, msg string, level *string) error {
	conn, err := api.connection(ctx)
	if err != nil {
		return err
	}
	lvl := "info"
	if level != nil {
		lvl = *level
	}
	logger := conn.log
	switch strings.ToLower(lvl) {
	case "trace":
		logger.Trace(msg)
	case "debug":
		logger.Debug(msg)
	case "warn", "warning":
		logger.Warn(msg)
	case "error", "critical":
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
	return nil
}

// Import returns a ref to a module published with RegisterModule.
func (api *hostAPI) Import(ctx context.Context, name string) (hostobj.Ref, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return hostobj.Ref{}, err
	}
	return conn.proxy.Import(name)
}

// Dict creates an empty host dictionary owned by the calling peer.
func (api *hostAPI) Dict(ctx context.Context) (hostobj.Ref, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return hostobj.Ref{}, err
	}
	return conn.proxy.Space().Put(hostobj.NewDict())
}

// List creates an empty host list owned by the calling peer.
func (api *hostAPI) List(ctx context.Context) (hostobj.Ref, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return hostobj.Ref{}, err
	}
	return conn.proxy.Space().Put(hostobj.NewList())
}

// Getattr reads a property of a host object.
func (api *hostAPI) Getattr(ctx context.Context, ref hostobj.Ref, member string) (interface{}, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.proxy.Getattr(ctx, ref, member)
}

// Call invokes a member of a host object with positional arguments.
func (api *hostAPI) Call(ctx context.Context, ref hostobj.Ref, member string, args []json.RawMessage) (interface{}, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.proxy.Call(ctx, ref, member, args)
}

// Release drops the peer's handle on a host object.
func (api *hostAPI) Release(ctx context.Context, ref hostobj.Ref) (bool, error) {
	conn, err := api.connection(ctx)
	if err != nil {
		return false, err
	}
	return conn.proxy.Space().Release(ref), nil
}

// Members lists the members exposed by a class, with their classification.
func (api *hostAPI) Members(class string) (map[string]string, error) {
	c, ok := api.inst.server.table.ClassByName(class)
	if !ok {
		return nil, hostobj.ErrUnknownClass
	}
	members := make(map[string]string)
	for _, name := range c.Members() {
		kind, _ := c.Kind(name)
		members[name] = kind.String()
	}
	return members, nil
}
