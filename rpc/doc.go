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

/*
Package rpc implements bidirectional JSON-RPC 2.0 over local sockets, named pipes,
in-process pipes and websockets.

Both ends of a connection are a Client. Each side can call the other and serve the
services registered for the connection, which is how a host calls into the peers
connected to it and the peers call back into the host.

# Services

Exported methods of a registered receiver are callable if they return nothing, a value,
an error, or a value and an error. A leading context.Context parameter receives the
call context, which carries the connection (see ClientFromContext) and is canceled
when the connection goes away. Trailing pointer parameters are optional:

	func (s *SceneService) Select(ctx context.Context, name string, add *bool) (int, error)

can be called with one or two arguments.

	server := rpc.NewServer()
	server.RegisterName("scene", new(SceneService))
	l, _ := rpc.StartIPCEndpoint("/tmp/scene.ipc", server)
	defer l.Close()

# Method Names

Method names are derived from the Go name in snake case and prefixed with the service
namespace, so OnServerShutdown registered under "peer" is called as
"peer_on_server_shutdown". Namespaces must not contain an underscore.

# Errors

Errors returned by methods are sent with code -32000 unless they implement Error. The
response data carries the error's type name, taken from ErrorType if the error implements
TypedError. Callers read it back with the ErrorType function.

# Connections

A client lives exactly as long as its connection and does not redial. Services the
remote side may call are given with WithService when dialing, so they are in place
before the first message arrives. Batch requests are not supported.
*/
package rpc
