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

package peer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scriptbridge/hostbridge/rpc"
	"github.com/stretchr/testify/require"
)

// testHost hands out the server side client of every accepted peer.
type testHost struct {
	conns chan *rpc.Client
}

func newTestHost() (*rpc.Server, *testHost) {
	host := &testHost{conns: make(chan *rpc.Client, 4)}
	srv := rpc.NewServer()
	srv.SetConnectionHandler(host)
	return srv, host
}

func (h *testHost) Connected(c *rpc.Client, info rpc.PeerInfo) { h.conns <- c }
func (h *testHost) Disconnected(c *rpc.Client)                 {}

func (h *testHost) next(t *testing.T) *rpc.Client {
	select {
	case c := <-h.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not connect")
		return nil
	}
}

type echoService struct {
	*Service
}

func (s *echoService) Echo(v string) string { return v }

func (s *echoService) Fail(kind string) error { return Errorf(kind, "failed on purpose") }

func TestMandatoryServices(t *testing.T) {
	srv, host := newTestHost()
	defer srv.Stop()

	svc := &echoService{NewService("echo peer")}
	client, err := rpc.DialInProc(srv, rpc.WithService(Namespace, svc))
	require.NoError(t, err)
	defer client.Close()

	remote := host.next(t)
	ctx := context.Background()

	var name string
	require.NoError(t, remote.CallContext(ctx, &name, "peer_client_name"))
	require.Equal(t, "echo peer", name)

	var pong string
	require.NoError(t, remote.CallContext(ctx, &pong, "peer_ping"))
	require.Equal(t, "pong", pong)

	var echoed string
	require.NoError(t, remote.CallContext(ctx, &echoed, "peer_echo", "hi"))
	require.Equal(t, "hi", echoed)

	err = remote.CallContext(ctx, nil, "peer_fail", "ValueError")
	require.Error(t, err)
	require.Equal(t, "ValueError", rpc.ErrorType(err))
	require.Contains(t, err.Error(), "failed on purpose")
}

func TestShutdownClosesConnection(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "host.ipc")
	srv, host := newTestHost()
	defer srv.Stop()
	l, err := rpc.StartIPCEndpoint(endpoint, srv)
	require.NoError(t, err)
	defer l.Close()

	conn, err := Dial(context.Background(), endpoint, NewService("closer"))
	require.NoError(t, err)
	remote := host.next(t)

	notified, _ := conn.Shutdown()
	require.False(t, notified)

	// The peer may drop the connection before the reply is read.
	remote.CallContext(context.Background(), nil, "peer_on_server_shutdown", true)
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed after shutdown notification")
	}
	notified, invite := conn.Shutdown()
	require.True(t, notified)
	require.True(t, invite)
}

func TestRunReconnectsWhenInvited(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "host.ipc")
	srv, host := newTestHost()
	defer srv.Stop()
	l, err := rpc.StartIPCEndpoint(endpoint, srv)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	connects := make(chan *Conn, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, endpoint, NewService("runner"), RunConfig{
			MinBackoff: 10 * time.Millisecond,
			MaxBackoff: 50 * time.Millisecond,
			OnConnect:  func(c *Conn) { connects <- c },
		})
	}()

	first := host.next(t)
	<-connects
	first.CallContext(ctx, nil, "peer_on_server_shutdown", true)

	second := host.next(t)
	<-connects
	var name string
	require.NoError(t, second.CallContext(ctx, &name, "peer_client_name"))
	require.Equal(t, "runner", name)
	second.CallContext(ctx, nil, "peer_on_server_shutdown", false)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not return after a non-inviting shutdown")
	}
}

func TestRunGivesUp(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "nobody.ipc")
	err := Run(context.Background(), endpoint, NewService("lonely"), RunConfig{
		MaxAttempts: 3,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrGaveUp)
}

func TestLoadJWTSecret(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadJWTSecret(filepath.Join(dir, "missing"))
	require.True(t, errors.Is(err, os.ErrNotExist))

	good := filepath.Join(dir, "good")
	require.NoError(t, os.WriteFile(good, []byte("0x"+string(make64('a'))+"\n"), 0600))
	secret, err := LoadJWTSecret(good)
	require.NoError(t, err)
	require.Len(t, secret, 32)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("abcd"), 0600))
	_, err = LoadJWTSecret(short)
	require.Error(t, err)
}

func make64(c byte) []byte {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return b
}
