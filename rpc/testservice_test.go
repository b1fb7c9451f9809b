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
	"errors"
	"time"
)

func newTestServer() *Server {
	server := NewServer()
	if err := server.RegisterName("test", new(testService)); err != nil {
		panic(err)
	}
	return server
}

type testService struct{}

type echoResult struct {
	String string
	Int    int
}

type valueError struct{ msg string }

func (e *valueError) Error() string     { return e.msg }
func (e *valueError) ErrorType() string { return "ValueError" }

type codedError struct{}

func (codedError) Error() string  { return "coded" }
func (codedError) ErrorCode() int { return 444 }

func (s *testService) NoArgsRets() {}

func (s *testService) Echo(str string, i int) echoResult {
	return echoResult{str, i}
}

func (s *testService) OptionalArg(a int, b *int) int {
	if b == nil {
		return a
	}
	return a + *b
}

func (s *testService) Sleep(ctx context.Context, duration time.Duration) error {
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *testService) ReturnTypedError() error {
	return &valueError{"bad value"}
}

func (s *testService) ReturnPlainError() error {
	return errors.New("plain failure")
}

func (s *testService) ReturnCodedError() error {
	return codedError{}
}

func (s *testService) Panic() string {
	panic("oh no")
}

func (s *testService) PeerTransport(ctx context.Context) string {
	return PeerInfoFromContext(ctx).Transport
}

// CallMeBack calls method on the connection the request arrived on.
func (s *testService) CallMeBack(ctx context.Context, method string, args []interface{}) (interface{}, error) {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return nil, errors.New("no client")
	}
	var result interface{}
	err := c.CallContext(ctx, &result, method, args...)
	return result, err
}

type peerService struct {
	name string
}

func (p *peerService) ClientName() string { return p.name }

func (p *peerService) Add(a, b int) int { return a + b }
