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

// Package bridge implements the host side of the script bridge: a server that
// accepts peer processes over a local socket, registers them by name and lets
// the host call their services while they call back into host objects.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofrs/flock"
	"github.com/scriptbridge/hostbridge/common/mclock"
	"github.com/scriptbridge/hostbridge/event"
	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/internal/debug"
	"github.com/scriptbridge/hostbridge/jobqueue"
	"github.com/scriptbridge/hostbridge/launcher"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics"
	"github.com/scriptbridge/hostbridge/peer"
	"github.com/scriptbridge/hostbridge/rpc"
	"golang.org/x/sync/errgroup"
)

var (
	connectionsAcceptedMeter = metrics.NewRegisteredCounter("bridge/connections/accepted", "Peer connections accepted")
	connectionsActiveGauge   = metrics.NewRegisteredGauge("bridge/connections/active", "Registered peer connections")
	handshakeFailureMeter    = metrics.NewRegisteredCounter("bridge/connections/handshake-failed", "Peers dropped during handshake")
	connectionsPrunedMeter   = metrics.NewRegisteredCounter("bridge/connections/pruned", "Peers dropped for failing a heartbeat")
)

var ErrServerClosed = errors.New("bridge server closed")

// Server is the host end of the bridge. The zero value is not usable, create
// servers with New.
type Server struct {
	config   *Config
	table    *hostobj.Table
	modules  *hostobj.Modules
	queue    *jobqueue.Queue
	loop     *jobqueue.Loop
	launcher *launcher.Launcher
	log      log.Logger

	connFeed  event.Feed[ConnectionEvent]
	feedScope event.Scope

	startStopLock sync.Mutex // Start/Stop are protected by an additional lock
	lock          sync.Mutex // protects inst and closed
	inst          *instance
	closed        bool
}

// instance is the state of one Start/Stop cycle. Every start gets a fresh rpc
// server and registry so nothing from a previous run leaks into the next.
type instance struct {
	server   *Server
	rpc      *rpc.Server
	endpoint string
	listener net.Listener
	ws       *http.Server
	wsURL    string
	dirLock  *flock.Flock
	registry *Registry
	quit     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[*rpc.Client]*Connection // every live transport session
	stopped bool
}

// New creates a bridge server. The host object table of the config is frozen.
func New(conf *Config) (*Server, error) {
	// Copy config and resolve the defaults.
	confCopy := *conf
	conf = &confCopy
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if conf.Logger == nil {
		conf.Logger = log.New()
	}
	if conf.Table == nil {
		conf.Table = hostobj.DefaultTable()
	}
	if conf.HandshakeTimeout == 0 {
		conf.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conf.ShutdownTimeout == 0 {
		conf.ShutdownTimeout = DefaultShutdownTimeout
	}
	conf.Table.Freeze()

	queue := jobqueue.New(mclock.System{})
	lconf := conf.launcherConfig()
	return &Server{
		config:   conf,
		table:    conf.Table,
		modules:  hostobj.NewModules(),
		queue:    queue,
		loop:     jobqueue.NewLoop(queue, conf.DrainBudget, conf.DrainInterval),
		launcher: launcher.New(lconf),
		log:      conf.Logger,
	}, nil
}

// Config returns the configuration of the server.
func (s *Server) Config() *Config {
	return s.config
}

// Queue returns the main thread job queue.
func (s *Server) Queue() *jobqueue.Queue {
	return s.queue
}

// Loop returns the drain loop of the job queue. Hosts that set ManualDrain run
// it on their main goroutine.
func (s *Server) Loop() *jobqueue.Loop {
	return s.loop
}

// Table returns the host object classification table.
func (s *Server) Table() *hostobj.Table {
	return s.table
}

// Launcher returns the launcher used by SpawnClient.
func (s *Server) Launcher() *launcher.Launcher {
	return s.launcher
}

// RegisterModule publishes obj to peers under name, for host_import.
func (s *Server) RegisterModule(name string, obj interface{}) {
	s.modules.Register(name, obj)
}

func (s *Server) instance() *instance {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.inst
}

// Running reports whether the server is accepting peers.
func (s *Server) Running() bool {
	return s.instance() != nil
}

// Endpoint returns the socket path of the running server, or the configured
// one when stopped.
func (s *Server) Endpoint() string {
	if inst := s.instance(); inst != nil {
		return inst.endpoint
	}
	return s.config.SocketEndpoint()
}

// WSURL returns the websocket url of the running server, or "" if the
// websocket listener is disabled or the server is stopped.
func (s *Server) WSURL() string {
	if inst := s.instance(); inst != nil {
		return inst.wsURL
	}
	return ""
}

// Start starts the server. It returns false without error if the server is
// already running. Failing to create the transport is reported as an
// *InstallError.
func (s *Server) Start() (bool, error) {
	s.startStopLock.Lock()
	defer s.startStopLock.Unlock()

	s.lock.Lock()
	closed, running := s.closed, s.inst != nil
	s.lock.Unlock()
	switch {
	case closed:
		return false, ErrServerClosed
	case running:
		return false, nil
	}
	inst, err := s.startInstance()
	if err != nil {
		s.log.Error("Failed to start bridge server", "err", err)
		return false, err
	}
	if !s.config.ManualDrain {
		if _, err := s.loop.Start(); err != nil {
			inst.stop(false)
			return false, err
		}
	}
	s.lock.Lock()
	s.inst = inst
	s.lock.Unlock()
	return true, nil
}

func (s *Server) startInstance() (*instance, error) {
	inst := &instance{
		server:   s,
		rpc:      rpc.NewServer(),
		endpoint: s.config.SocketEndpoint(),
		registry: NewRegistry(),
		quit:     make(chan struct{}),
		conns:    make(map[*rpc.Client]*Connection),
	}
	if err := inst.lockDir(s.config.lockPath()); err != nil {
		return nil, err
	}
	inst.rpc.SetConnectionHandler(inst)
	if err := inst.rpc.RegisterName(hostNamespace, &hostAPI{inst: inst}); err != nil {
		inst.unlockDir()
		return nil, err
	}
	if s.config.DebugAPI {
		if err := inst.rpc.RegisterName("debug", debug.Handler); err != nil {
			inst.unlockDir()
			return nil, err
		}
	}
	listener, err := rpc.StartIPCEndpoint(inst.endpoint, inst.rpc)
	if err != nil {
		inst.unlockDir()
		return nil, &InstallError{
			Msg:  fmt.Sprintf("cannot listen on %s", inst.endpoint),
			Hint: "check that the socket directory is writable and the path is short enough",
			Err:  err,
		}
	}
	inst.listener = listener
	if s.config.WSHost != "" {
		if err := inst.startWS(s.config); err != nil {
			listener.Close()
			inst.unlockDir()
			return nil, &InstallError{Msg: "cannot start websocket listener", Err: err}
		}
	}
	if s.config.PingInterval > 0 {
		inst.wg.Add(1)
		go inst.pingLoop(s.config.PingInterval)
	}
	s.log.Info("Bridge server started", "endpoint", inst.endpoint, "ws", inst.wsURL)
	return inst, nil
}

func (inst *instance) lockDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	// Lock the instance directory to prevent a second server on the same socket.
	inst.dirLock = flock.New(path)
	if locked, err := inst.dirLock.TryLock(); err != nil {
		return convertFileLockError(err)
	} else if !locked {
		return ErrServerRunning
	}
	return nil
}

func (inst *instance) unlockDir() {
	if inst.dirLock == nil {
		return
	}
	if err := inst.dirLock.Unlock(); err != nil {
		inst.server.log.Error("Can't release instance lock", "path", inst.dirLock.Path(), "err", err)
	}
	inst.dirLock = nil
}

// Stop notifies every peer of the shutdown, telling it whether to reconnect,
// then closes the transport and clears the registry. Notification failures are
// expected disconnects and are ignored. Stopping a stopped server is a no-op.
func (s *Server) Stop(inviteReconnect bool) {
	s.startStopLock.Lock()
	defer s.startStopLock.Unlock()

	inst := s.instance()
	if inst == nil {
		return
	}
	inst.stop(inviteReconnect)

	s.lock.Lock()
	s.inst = nil
	s.lock.Unlock()
}

func (inst *instance) stop(inviteReconnect bool) {
	s := inst.server

	inst.mu.Lock()
	inst.stopped = true
	inst.mu.Unlock()
	close(inst.quit)
	inst.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	var g errgroup.Group
	for _, conn := range inst.registry.All() {
		g.Go(func() error {
			if err := conn.notifyShutdown(ctx, inviteReconnect); !isExpectedDisconnect(err) {
				conn.log.Debug("Shutdown notification failed", "client", conn.name, "err", err)
			}
			return nil
		})
	}
	g.Wait()
	cancel()

	inst.listener.Close()
	if inst.ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		inst.ws.Shutdown(ctx)
		cancel()
	}
	inst.rpc.Stop()
	cleared := inst.registry.Clear()
	connectionsActiveGauge.Sub(float64(len(cleared)))
	inst.unlockDir()
	s.log.Info("Bridge server stopped", "endpoint", inst.endpoint, "clients", len(cleared), "invite", inviteReconnect)
}

// ForceRestart stops the server inviting peers to reconnect, removes the
// socket file and starts again.
func (s *Server) ForceRestart() error {
	s.Stop(true)
	endpoint := s.config.SocketEndpoint()
	if runtime.GOOS != "windows" {
		if err := os.Remove(endpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Error("Failed to remove socket", "endpoint", endpoint, "err", err)
			return err
		}
	}
	if _, err := s.Start(); err != nil {
		s.log.Error("Failed to restart bridge server", "err", err)
		return err
	}
	return nil
}

// Close stops the server for good, including the drain loop.
func (s *Server) Close() {
	s.Stop(false)

	s.lock.Lock()
	already := s.closed
	s.closed = true
	s.lock.Unlock()
	if already {
		return
	}
	s.loop.Stop()
	s.feedScope.Close()
}

// Connected implements rpc.ConnectionHandler. It runs the handshake and
// registers the peer under the name it declares.
func (inst *instance) Connected(client *rpc.Client, info rpc.PeerInfo) {
	s := inst.server
	space := hostobj.NewSpace(s.table)
	conn := newConnection(client, info, hostobj.NewProxy(s.table, space, s.queue, s.modules), s.config.CallTimeout, s.log)

	inst.mu.Lock()
	inst.conns[client] = conn
	inst.mu.Unlock()
	connectionsAcceptedMeter.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.HandshakeTimeout)
	defer cancel()
	var name string
	if err := client.CallContext(ctx, &name, peerNamespace+"_client_name"); err != nil {
		handshakeFailureMeter.Inc()
		conn.log.Warn("Client handshake failed", "err", err)
		client.Close()
		return
	}
	if name == "" {
		name = DefaultClientName
	}
	conn.name = name

	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		client.Close()
		return
	}
	if inst.registry.Count(name) > 0 {
		conn.log.Debug("Client name taken over", "client", name, "previous", inst.registry.Count(name))
	}
	inst.registry.Add(conn)
	inst.mu.Unlock()

	connectionsActiveGauge.Inc()
	conn.log.Info("Client connected", "client", name)
	s.connFeed.Send(ConnectionEvent{Type: ClientConnected, Name: name, ID: conn.id})
}

// Disconnected implements rpc.ConnectionHandler.
func (inst *instance) Disconnected(client *rpc.Client) {
	inst.mu.Lock()
	conn := inst.conns[client]
	delete(inst.conns, client)
	inst.mu.Unlock()
	if conn == nil {
		return
	}
	conn.proxy.Space().ReleaseAll()
	if inst.registry.Remove(conn) {
		connectionsActiveGauge.Dec()
	}
	if conn.name == "" {
		return // never completed the handshake
	}
	conn.log.Info("Client disconnected", "client", conn.name, "age", time.Since(conn.connectedAt).Round(time.Millisecond))
	inst.server.connFeed.Send(ConnectionEvent{Type: ClientDisconnected, Name: conn.name, ID: conn.id})
}

func (inst *instance) lookupClient(client *rpc.Client) (*Connection, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	conn, ok := inst.conns[client]
	return conn, ok
}

func (inst *instance) pingLoop(interval time.Duration) {
	defer inst.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-inst.quit:
			return
		case <-ticker.C:
			inst.pingAll(interval)
		}
	}
}

// pingAll closes every connection that fails to answer a ping within timeout.
// Remote errors mean the peer is alive.
func (inst *instance) pingAll(timeout time.Duration) {
	var g errgroup.Group
	for _, conn := range inst.registry.All() {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			err := conn.Call(ctx, nil, "ping")
			var terr *TransportError
			if errors.As(err, &terr) || errors.Is(err, context.DeadlineExceeded) {
				connectionsPrunedMeter.Inc()
				conn.log.Warn("Dropping unresponsive client", "client", conn.name, "err", err)
				conn.Close()
			}
			return nil
		})
	}
	g.Wait()
}

func (s *Server) registry() *Registry {
	if inst := s.instance(); inst != nil {
		return inst.registry
	}
	return nil
}

// Connection returns the connection of client at index, -1 being the newest.
func (s *Server) Connection(client string, index int) (*Connection, error) {
	reg := s.registry()
	if reg == nil {
		return nil, &ClientNotFoundError{Name: client}
	}
	return reg.Lookup(client, index)
}

// NumClientsConnected returns the number of connections registered under name.
func (s *Server) NumClientsConnected(name string) int {
	if reg := s.registry(); reg != nil {
		return reg.Count(name)
	}
	return 0
}

// TotalClientsConnected returns the number of registered connections.
func (s *Server) TotalClientsConnected() int {
	if reg := s.registry(); reg != nil {
		return reg.Total()
	}
	return 0
}

// ConnectedClientNames returns the names of the connected clients.
func (s *Server) ConnectedClientNames() mapset.Set[string] {
	if reg := s.registry(); reg != nil {
		return reg.Names()
	}
	return mapset.NewSet[string]()
}

// IsClientConnected reports whether at least one connection uses name.
func (s *Server) IsClientConnected(name string) bool {
	return s.NumClientsConnected(name) > 0
}

// AttachInProc connects an in-process peer serving svc in the peer namespace.
// The peer is registered once its handshake completes.
func (s *Server) AttachInProc(svc interface{}) (*rpc.Client, error) {
	inst := s.instance()
	if inst == nil {
		return nil, ErrServerStopped
	}
	return rpc.DialInProc(inst.rpc, rpc.WithService(peerNamespace, svc))
}

// SpawnClient starts the server if needed and launches the interpreter on
// script. It returns once the process has started; use WaitForConnection to
// wait for it to register.
func (s *Server) SpawnClient(script string, wantLogging bool, args ...string) (*launcher.Process, error) {
	if _, err := s.Start(); err != nil {
		return nil, err
	}
	inst := s.instance()
	if inst == nil {
		return nil, ErrServerStopped
	}
	env := map[string]string{peer.EnvEndpoint: inst.endpoint}
	if inst.wsURL != "" {
		env[peer.EnvWSEndpoint] = inst.wsURL
		env[peer.EnvJWTSecret] = s.config.jwtSecretPath()
	}
	return s.launcher.Spawn(script, launcher.Options{Args: args, WantLogging: wantLogging, Env: env})
}

// ValidateInterpreter checks that the configured interpreter runs and can
// import every required module.
func (s *Server) ValidateInterpreter(ctx context.Context) error {
	if err := s.launcher.Verify(ctx, "--version"); err != nil {
		return err
	}
	for _, module := range s.config.RequiredModules {
		if err := s.launcher.CheckModule(ctx, module, nil, nil); err != nil {
			return err
		}
	}
	return nil
}
