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
	"io"
	"net"
	"sync"
	"time"
)

// writeTimeout bounds writes whose context carries no deadline.
const writeTimeout = 10 * time.Second

// Conn is the part of net.Conn a stream transport needs.
type Conn interface {
	io.ReadWriteCloser
	SetWriteDeadline(time.Time) error
}

// codec carries messages over one connection. read is only called from the
// connection's read loop; write may be called from any goroutine.
type codec interface {
	read() (*message, error)
	write(ctx context.Context, msg *message) error
	close()
	closed() <-chan struct{}
	peer() PeerInfo
}

// streamCodec exchanges messages as a stream of JSON values. Sockets, named
// pipes and in-process pipes all use it.
type streamCodec struct {
	conn Conn
	info PeerInfo
	dec  *json.Decoder

	wmu sync.Mutex
	enc *json.Encoder

	once sync.Once
	done chan struct{}
}

func newStreamCodec(conn Conn, transport string) *streamCodec {
	c := &streamCodec{
		conn: conn,
		info: PeerInfo{Transport: transport},
		dec:  json.NewDecoder(conn),
		enc:  json.NewEncoder(conn),
		done: make(chan struct{}),
	}
	if nc, ok := conn.(net.Conn); ok && nc.RemoteAddr() != nil {
		c.info.RemoteAddr = nc.RemoteAddr().String()
	}
	return c
}

// read returns the next message. A value that is valid JSON but not a message
// object is returned as an invalid message so that it can be answered.
func (c *streamCodec) read() (*message, error) {
	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return parseMessage(raw), nil
}

func (c *streamCodec) write(ctx context.Context, msg *message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(writeDeadline(ctx))
	return c.enc.Encode(msg)
}

func (c *streamCodec) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *streamCodec) closed() <-chan struct{} { return c.done }

func (c *streamCodec) peer() PeerInfo { return c.info }

func parseMessage(raw []byte) *message {
	msg := new(message)
	if err := json.Unmarshal(raw, msg); err != nil {
		return new(message)
	}
	return msg
}

func writeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(writeTimeout)
}
