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

import "net"

// DialInProc connects to srv over an in-memory pipe. Services given through
// WithService are registered before srv sees the connection.
func DialInProc(srv *Server, options ...ClientOption) (*Client, error) {
	local, remote := net.Pipe()
	go srv.serve(newStreamCodec(remote, "inproc"))
	return dial(newClientConfig(options), newStreamCodec(local, "inproc"))
}
