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
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/jobqueue"
	"github.com/scriptbridge/hostbridge/peer"
	"github.com/scriptbridge/hostbridge/rpc"
	"github.com/stretchr/testify/require"
)

func newNameSet(names ...string) mapset.Set[string] {
	return mapset.NewSet(names...)
}

func testConfig(t *testing.T) *Config {
	return &Config{
		DataDir:          t.TempDir(),
		SocketPath:       "bridge.ipc",
		CallTimeout:      10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ShutdownTimeout:  time.Second,
	}
}

func newTestServer(t *testing.T, modify func(*Config)) *Server {
	conf := testConfig(t)
	if modify != nil {
		modify(conf)
	}
	srv, err := New(conf)
	require.NoError(t, err)
	started, err := srv.Start()
	require.NoError(t, err)
	require.True(t, started)
	t.Cleanup(srv.Close)
	return srv
}

func waitConnected(t *testing.T, srv *Server, name string, n int) {
	require.Eventually(t, func() bool {
		return srv.NumClientsConnected(name) == n
	}, 5*time.Second, 5*time.Millisecond, "waiting for %d clients named %q", n, name)
}

// idService answers with the id it was created with, to tell connections apart.
type idService struct {
	*peer.Service
	id int
}

func (s *idService) Whoami() int { return s.id }

func (s *idService) Fail(kind string) error { return peer.Errorf(kind, "asked to fail") }

// recorder remembers the shutdown notifications it receives.
type recorder struct {
	*peer.Service
	invites chan bool
}

func newRecorder(name string) *recorder {
	return &recorder{peer.NewService(name), make(chan bool, 4)}
}

func (r *recorder) OnServerShutdown(invite bool) { r.invites <- invite }

// gateService blocks in Wait until the gate is opened.
type gateService struct {
	*peer.Service
	gate chan struct{}
}

func (s *gateService) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.gate:
		return "opened", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func attach(t *testing.T, srv *Server, svc interface{}) *rpc.Client {
	client, err := srv.AttachInProc(svc)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestStartStopIdempotent(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	attach(t, srv, &idService{peer.NewService("maya"), 1})
	waitConnected(t, srv, "maya", 1)
	inst := srv.instance()

	// A second start leaves the running instance and its registry alone.
	started, err := srv.Start()
	require.NoError(t, err)
	require.False(t, started)
	require.Same(t, inst, srv.instance())
	require.Equal(t, 1, srv.NumClientsConnected("maya"))
	require.Equal(t, 1, srv.TotalClientsConnected())

	var id int
	require.NoError(t, srv.CallService(ctx, &id, "maya", "whoami"))
	require.Equal(t, 1, id)

	endpoint := srv.Endpoint()
	_, err = os.Stat(endpoint)
	require.NoError(t, err)

	srv.Stop(false)
	srv.Stop(false)
	require.False(t, srv.Running())
	require.Zero(t, srv.TotalClientsConnected())

	// The socket path is reused by the next start.
	started, err = srv.Start()
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, endpoint, srv.Endpoint())
}

func TestSingleServerPerSocket(t *testing.T) {
	srv := newTestServer(t, nil)

	second, err := New(srv.Config())
	require.NoError(t, err)
	_, err = second.Start()
	require.ErrorIs(t, err, ErrServerRunning)

	srv.Stop(false)
	started, err := second.Start()
	require.NoError(t, err)
	require.True(t, started)
	second.Close()
}

func TestStartInstallError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	srv, err := New(&Config{DataDir: dir, SocketPath: filepath.Join(blocker, "sub", "bridge.ipc")})
	require.NoError(t, err)
	defer srv.Close()
	_, err = srv.Start()
	var install *InstallError
	require.True(t, errors.As(err, &install))
	require.False(t, srv.Running())
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(&Config{DrainBudget: -time.Second})
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Budget errors raised by the drain loop itself match as well.
	srv := newTestServer(t, func(c *Config) { c.ManualDrain = true })
	_, err = srv.Loop().Queue().Drain(0)
	require.ErrorIs(t, err, jobqueue.ErrInvalidBudget)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTakeover(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	first := attach(t, srv, &idService{peer.NewService("maya"), 1})
	waitConnected(t, srv, "maya", 1)
	attach(t, srv, &idService{peer.NewService("maya"), 2})
	waitConnected(t, srv, "maya", 2)
	attach(t, srv, &idService{peer.NewService("repl"), 3})
	waitConnected(t, srv, "repl", 1)

	require.Equal(t, 3, srv.TotalClientsConnected())
	require.True(t, srv.ConnectedClientNames().Equal(newNameSet("maya", "repl")))

	var id int
	require.NoError(t, srv.CallService(ctx, &id, "maya", "whoami"))
	require.Equal(t, 2, id)
	require.NoError(t, srv.CallServiceAt(ctx, &id, "maya", 0, "whoami"))
	require.Equal(t, 1, id)

	err := srv.CallServiceAt(ctx, &id, "maya", 2, "whoami")
	var indexErr *ConnectionIndexError
	require.True(t, errors.As(err, &indexErr))

	err = srv.CallService(ctx, &id, "blender", "whoami")
	var notFound *ClientNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.False(t, srv.IsClientConnected("blender"))

	// Dropping the oldest leaves the newest in charge.
	first.Close()
	waitConnected(t, srv, "maya", 1)
	require.NoError(t, srv.CallService(ctx, &id, "maya", "whoami"))
	require.Equal(t, 2, id)
}

func TestDefaultClientName(t *testing.T) {
	srv := newTestServer(t, nil)
	attach(t, srv, &idService{peer.NewService(""), 7})
	waitConnected(t, srv, DefaultClientName, 1)
}

func TestHandshakeFailure(t *testing.T) {
	srv := newTestServer(t, nil)

	// A client serving nothing cannot answer the handshake.
	client, err := rpc.DialInProc(srv.instance().rpc)
	require.NoError(t, err)
	defer client.Close()
	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client without peer services was not dropped")
	}
	require.Zero(t, srv.TotalClientsConnected())
}

func TestRemoteErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	attach(t, srv, &idService{peer.NewService("err"), 1})
	waitConnected(t, srv, "err", 1)
	ctx := context.Background()

	err := srv.CallService(ctx, nil, "err", "fail", "ValueError")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, "ValueError", remote.Type)
	require.Equal(t, "asked to fail", remote.Message)

	err = srv.CallService(ctx, nil, "err", "no_such_service")
	require.True(t, errors.As(err, &remote))
	require.Equal(t, -32601, remote.Code)
}

func TestCallServiceAsync(t *testing.T) {
	srv := newTestServer(t, nil)
	svc := &gateService{peer.NewService("gate"), make(chan struct{})}
	attach(t, srv, svc)
	waitConnected(t, srv, "gate", 1)
	ctx := context.Background()

	_, err := srv.CallServiceAsync(ctx, "nobody", "wait")
	var notFound *ClientNotFoundError
	require.True(t, errors.As(err, &notFound))

	call, err := srv.CallServiceAsync(ctx, "gate", "wait")
	require.NoError(t, err)
	require.False(t, call.Ready())
	var result string
	require.ErrorIs(t, call.Result(&result), ErrCallPending)

	close(svc.gate)
	require.NoError(t, call.Wait(ctx, &result))
	require.Equal(t, "opened", result)
	require.True(t, call.Ready())
}

func TestCallServiceAsyncCancel(t *testing.T) {
	srv := newTestServer(t, nil)
	attach(t, srv, &gateService{peer.NewService("gate"), make(chan struct{})})
	waitConnected(t, srv, "gate", 1)

	call, err := srv.CallServiceAsync(context.Background(), "gate", "wait")
	require.NoError(t, err)
	call.Cancel()
	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not complete")
	}
	require.ErrorIs(t, call.Result(nil), context.Canceled)
}

func TestStopNotifiesClients(t *testing.T) {
	for _, invite := range []bool{true, false} {
		srv := newTestServer(t, nil)
		rec := newRecorder("rec")
		client := attach(t, srv, rec)
		waitConnected(t, srv, "rec", 1)

		srv.Stop(invite)
		select {
		case got := <-rec.invites:
			require.Equal(t, invite, got)
		case <-time.After(5 * time.Second):
			t.Fatal("no shutdown notification")
		}
		require.Zero(t, srv.TotalClientsConnected())
		select {
		case <-client.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("connection survived stop")
		}
	}
}

func TestRegistryRecreatedOnStart(t *testing.T) {
	srv := newTestServer(t, nil)
	attach(t, srv, newRecorder("old"))
	waitConnected(t, srv, "old", 1)

	srv.Stop(true)
	_, err := srv.Start()
	require.NoError(t, err)
	require.False(t, srv.IsClientConnected("old"))
	require.Zero(t, srv.ConnectedClientNames().Cardinality())
}

func TestCloseClient(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	conn, err := peer.Dial(ctx, srv.Endpoint(), peer.NewService("closing"))
	require.NoError(t, err)
	defer conn.Close()
	waitConnected(t, srv, "closing", 1)

	require.NoError(t, srv.CloseClient(ctx, "closing", true))
	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not close")
	}
	notified, invite := conn.Shutdown()
	require.True(t, notified)
	require.True(t, invite)
	waitConnected(t, srv, "closing", 0)

	var notFound *ClientNotFoundError
	require.True(t, errors.As(srv.CloseClient(ctx, "closing", false), &notFound))
}

func TestConnectionEvents(t *testing.T) {
	srv := newTestServer(t, nil)
	events := make(chan ConnectionEvent, 4)
	sub := srv.SubscribeConnections(events)
	defer sub.Unsubscribe()

	client := attach(t, srv, newRecorder("evt"))
	next := func() ConnectionEvent {
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("no connection event")
			return ConnectionEvent{}
		}
	}
	ev := next()
	require.Equal(t, ClientConnected, ev.Type)
	require.Equal(t, "evt", ev.Name)

	client.Close()
	ev2 := next()
	require.Equal(t, ClientDisconnected, ev2.Type)
	require.Equal(t, ev.ID, ev2.ID)
}

func TestWaitForConnection(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	start := time.Now()
	require.False(t, srv.WaitForConnection(ctx, "late", 100*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	attached := make(chan error, 1)
	clients := make(chan *rpc.Client, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		client, err := srv.AttachInProc(newRecorder("late"))
		clients <- client
		attached <- err
	}()
	require.True(t, srv.WaitForConnection(ctx, "late", 5*time.Second))
	require.NoError(t, <-attached)
	(<-clients).Close()
}

// slowPinger answers pings too late.
type slowPinger struct {
	*peer.Service
	pinged atomic.Int32
}

func (s *slowPinger) Ping() string {
	s.pinged.Add(1)
	time.Sleep(2 * time.Second)
	return "late"
}

func TestHeartbeatPrunesDeadClients(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.PingInterval = 200 * time.Millisecond })

	attach(t, srv, &idService{peer.NewService("alive"), 1})
	dead := &slowPinger{Service: peer.NewService("dead")}
	attach(t, srv, dead)
	waitConnected(t, srv, "alive", 1)
	waitConnected(t, srv, "dead", 1)

	waitConnected(t, srv, "dead", 0)
	require.Positive(t, dead.pinged.Load())
	require.True(t, srv.IsClientConnected("alive"))
}

func TestHostObjectsSlowPath(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.ManualDrain = true })
	ctx := context.Background()

	conn, err := peer.Dial(ctx, srv.Endpoint(), peer.NewService("objects"))
	require.NoError(t, err)
	defer conn.Close()
	host := conn.Host()

	dict, err := peer.NewHostDict(ctx, host)
	require.NoError(t, err)
	require.Equal(t, "Dict", dict.Ref.Type)

	// Writes are slow and wait for the main thread.
	queue := srv.Queue()
	require.Zero(t, queue.Len())
	done := make(chan error, 1)
	go func() { done <- dict.Set(ctx, "color", "red") }()
	require.Eventually(t, func() bool { return queue.Len() == 1 }, 5*time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("slow call returned before drain: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	n, err := queue.Drain(jobqueue.DefaultBudget)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, <-done)

	// Reads are fast and never touch the queue.
	var color string
	require.NoError(t, dict.Get(ctx, &color, "color"))
	require.Equal(t, "red", color)
	size, err := dict.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, size)
	require.Zero(t, queue.Len())

	// Host errors keep their type across the wire.
	err = dict.Get(ctx, &color, "missing")
	require.Equal(t, "KeyError", rpc.ErrorType(err))
}

func TestHostImport(t *testing.T) {
	srv := newTestServer(t, nil)
	scene := hostobj.NewDict()
	scene.Set("name", "main")
	srv.RegisterModule("scene", scene)
	ctx := context.Background()

	conn, err := peer.Dial(ctx, srv.Endpoint(), peer.NewService("importer"))
	require.NoError(t, err)
	defer conn.Close()

	obj, err := peer.Import(ctx, conn.Host(), "scene")
	require.NoError(t, err)
	var name string
	require.NoError(t, obj.Call(ctx, &name, "get", "name"))
	require.Equal(t, "main", name)

	// Slow members run on the built-in drain loop.
	require.NoError(t, obj.Call(ctx, nil, "set", "name", "other"))
	v, err := scene.Get("name")
	require.NoError(t, err)
	require.Equal(t, "other", v)

	_, err = peer.Import(ctx, conn.Host(), "nothing")
	require.Error(t, err)

	var protocol int
	require.NoError(t, conn.Host().CallContext(ctx, &protocol, "host_version"))
	require.Positive(t, protocol)
	require.NoError(t, conn.Host().CallContext(ctx, nil, "host_log", "hello from the peer", "warning"))
}

func TestWebsocketTransport(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.WSHost = "127.0.0.1"
		c.WSPort = 0
	})
	url := srv.WSURL()
	require.NotEmpty(t, url)
	ctx := context.Background()

	_, err := peer.Dial(ctx, url, peer.NewService("anonymous"))
	require.Error(t, err)

	secret, err := peer.LoadJWTSecret(srv.Config().jwtSecretPath())
	require.NoError(t, err)
	conn, err := peer.Dial(ctx, url, peer.NewService("ws peer"), rpc.WithHTTPAuth(rpc.NewJWTAuth(secret)))
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, srv.WaitForConnection(ctx, "ws peer", 5*time.Second))

	c, err := srv.Connection("ws peer", -1)
	require.NoError(t, err)
	require.Equal(t, "ws", c.PeerInfo().Transport)
}

func TestForceRestart(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	connects := make(chan struct{}, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- peer.Run(ctx, srv.Endpoint(), peer.NewService("phoenix"), peer.RunConfig{
			MinBackoff: 10 * time.Millisecond,
			MaxBackoff: 100 * time.Millisecond,
			OnConnect:  func(*peer.Conn) { connects <- struct{}{} },
		})
	}()
	<-connects
	waitConnected(t, srv, "phoenix", 1)

	require.NoError(t, srv.ForceRestart())
	<-connects
	waitConnected(t, srv, "phoenix", 1)

	srv.Stop(false)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("peer did not stop after a final shutdown")
	}
}

func TestDebugAPI(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.DebugAPI = true })
	ctx := context.Background()

	conn, err := peer.Dial(ctx, srv.Endpoint(), peer.NewService("debugger"))
	require.NoError(t, err)
	defer conn.Close()

	var stacks string
	require.NoError(t, conn.Host().CallContext(ctx, &stacks, "debug_stacks", "jobqueue"))
	require.Contains(t, stacks, "jobqueue")

	plain := newTestServer(t, nil)
	conn2, err := peer.Dial(ctx, plain.Endpoint(), peer.NewService("debugger"))
	require.NoError(t, err)
	defer conn2.Close()
	require.Error(t, conn2.Host().CallContext(ctx, &stacks, "debug_stacks", "jobqueue"))
}
