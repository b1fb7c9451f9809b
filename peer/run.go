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
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/backoff"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/rpc"
)

// RunConfig tunes the connection loop of Run.
type RunConfig struct {
	// MaxAttempts is the number of consecutive failed dials before giving up.
	// Zero means DefaultMaxAttempts.
	MaxAttempts int

	// MinBackoff and MaxBackoff bound the wait between failed dials.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnConnect is called after every successful dial. It runs on the loop
	// goroutine, so the connection is not watched until it returns.
	OnConnect func(*Conn)

	DialOptions []rpc.ClientOption
}

const DefaultMaxAttempts = 10

// ErrGaveUp is wrapped by the error Run returns after MaxAttempts failed dials.
var ErrGaveUp = errors.New("peer: giving up on host")

// Run keeps svc connected to the host at endpoint. It redials with exponential
// backoff while the host is unreachable or has invited a reconnect, and returns
// nil once the host shuts down without inviting one.
func Run(ctx context.Context, endpoint string, svc Peer, cfg RunConfig) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	b := &backoff.Backoff{Min: cfg.MinBackoff, Max: cfg.MaxBackoff, Factor: 2, Jitter: true}
	if b.Min == 0 {
		b.Min = 100 * time.Millisecond
	}
	if b.Max == 0 {
		b.Max = 5 * time.Second
	}
	logger := log.New("peer", svc.ClientName())

	for {
		conn, err := Dial(ctx, endpoint, svc, cfg.DialOptions...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt := int(b.Attempt()) + 1
			if attempt >= cfg.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempt, err)
			}
			wait := b.Duration()
			logger.Debug("Host unreachable, retrying", "attempt", attempt, "wait", wait, "err", err)
			if err := waitForEndpoint(ctx, endpoint, wait); err != nil {
				return err
			}
			continue
		}
		b.Reset()
		logger.Info("Connected to host", "endpoint", endpoint)
		if cfg.OnConnect != nil {
			cfg.OnConnect(conn)
		}
		select {
		case <-conn.Done():
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		}
		notified, invite := conn.Shutdown()
		switch {
		case notified && !invite:
			logger.Info("Host shut down")
			return nil
		case notified:
			logger.Info("Host restarting, reconnecting")
		default:
			logger.Warn("Lost connection to host, reconnecting")
		}
	}
}

// waitForEndpoint waits up to timeout, returning early when the host socket is
// created. For endpoints that are not files it simply sleeps.
func waitForEndpoint(ctx context.Context, endpoint string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	if isSocketFile(endpoint) {
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			defer watcher.Close()
			if err := watcher.Add(filepath.Dir(endpoint)); err == nil {
				events = watcher.Events
			}
		}
	}
	for {
		select {
		case ev := <-events:
			if ev.Name == endpoint && ev.Op&fsnotify.Create != 0 {
				return nil
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isSocketFile(endpoint string) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return !strings.Contains(endpoint, "://")
}
