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
	"net"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientRequest(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	var resp echoResult
	require.NoError(t, client.Call(&resp, "test_echo", "hello", 10))
	require.Equal(t, echoResult{"hello", 10}, resp)
}

func TestClientOptionalArgument(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	var sum int
	require.NoError(t, client.Call(&sum, "test_optional_arg", 1))
	require.Equal(t, 1, sum)
	require.NoError(t, client.Call(&sum, "test_optional_arg", 1, 2))
	require.Equal(t, 3, sum)
}

func TestClientMethodNotFound(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(nil, "test_does_not_exist")
	var rpcErr Error
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, -32601, rpcErr.ErrorCode())
}

func TestClientErrorTypes(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(nil, "test_return_typed_error")
	require.EqualError(t, err, "bad value")
	require.Equal(t, "ValueError", ErrorType(err))

	err = client.Call(nil, "test_return_plain_error")
	require.EqualError(t, err, "plain failure")
	require.Equal(t, "errorString", ErrorType(err))

	err = client.Call(nil, "test_return_coded_error")
	var rpcErr Error
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, 444, rpcErr.ErrorCode())
	require.Equal(t, "codedError", ErrorType(err))
}

func TestClientPanicIsReported(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(nil, "test_panic")
	require.ErrorContains(t, err, "method handler crashed: oh no")

	// The connection survives the panic.
	var resp echoResult
	require.NoError(t, client.Call(&resp, "test_echo", "x", 1))
}

func TestClientCancel(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = client.CallContext(ctx, nil, "test_sleep", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientReverseCall(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server, WithService("peer", &peerService{name: "tester"}))
	require.NoError(t, err)
	defer client.Close()

	var result interface{}
	require.NoError(t, client.Call(&result, "test_call_me_back", "peer_add", []interface{}{2, 3}))
	require.Equal(t, 5.0, result)

	require.NoError(t, client.Call(&result, "test_call_me_back", "peer_client_name", []interface{}{}))
	require.Equal(t, "tester", result)
}

func TestClientPeerInfo(t *testing.T) {
	server := newTestServer()
	defer server.Stop()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	var transport string
	require.NoError(t, client.Call(&transport, "test_peer_transport"))
	require.Equal(t, "inproc", transport)
}

type recordingHandler struct {
	mu           sync.Mutex
	names        []string
	connected    chan *Client
	disconnected chan *Client
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connected:    make(chan *Client, 4),
		disconnected: make(chan *Client, 4),
	}
}

func (h *recordingHandler) Connected(c *Client, info PeerInfo) {
	var name string
	if err := c.CallContext(context.Background(), &name, "peer_client_name"); err == nil {
		h.mu.Lock()
		h.names = append(h.names, name)
		h.mu.Unlock()
	}
	h.connected <- c
}

func (h *recordingHandler) Disconnected(c *Client) {
	h.disconnected <- c
}

func TestServerConnectionHandler(t *testing.T) {
	server := newTestServer()
	hooks := newRecordingHandler()
	server.SetConnectionHandler(hooks)

	client, err := DialInProc(server, WithService("peer", &peerService{name: "first"}))
	require.NoError(t, err)

	var serverSide *Client
	select {
	case serverSide = <-hooks.connected:
	case <-time.After(time.Second):
		t.Fatal("Connected not called")
	}
	hooks.mu.Lock()
	require.Equal(t, []string{"first"}, hooks.names)
	hooks.mu.Unlock()

	client.Close()
	select {
	case c := <-hooks.disconnected:
		require.Same(t, serverSide, c)
	case <-time.After(time.Second):
		t.Fatal("Disconnected not called")
	}
}

func TestClientDoneAfterServerStop(t *testing.T) {
	server := newTestServer()
	client, err := DialInProc(server)
	require.NoError(t, err)

	var resp echoResult
	require.NoError(t, client.Call(&resp, "test_echo", "a", 1))

	server.Stop()
	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not shut down after the server stopped")
	}
	err = client.Call(&resp, "test_echo", "a", 1)
	require.ErrorIs(t, err, ErrClientQuit)
}

func TestClientServerStopAbortsCall(t *testing.T) {
	server := newTestServer()
	client, err := DialInProc(server)
	require.NoError(t, err)
	defer client.Close()

	errc := make(chan error, 1)
	go func() { errc <- client.Call(nil, "test_sleep", time.Minute) }()
	time.Sleep(50 * time.Millisecond)
	server.Stop()

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("call was not aborted")
	}
}

func TestIPCRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets only")
	}
	endpoint := filepath.Join(t.TempDir(), "test.ipc")
	server := newTestServer()
	defer server.Stop()
	l, err := StartIPCEndpoint(endpoint, server)
	require.NoError(t, err)
	defer l.Close()

	client, err := DialIPC(context.Background(), endpoint)
	require.NoError(t, err)
	defer client.Close()

	var resp echoResult
	require.NoError(t, client.Call(&resp, "test_echo", "ipc", 7))
	require.Equal(t, echoResult{"ipc", 7}, resp)
}

func TestServeListenerStopsOnClose(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := newTestServer()
	defer server.Stop()

	done := make(chan error, 1)
	go func() { done <- server.ServeListener(l) }()
	l.Close()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ServeListener did not return")
	}
}
