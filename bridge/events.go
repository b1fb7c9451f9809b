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
	"time"

	"github.com/scriptbridge/hostbridge/event"
)

// ConnectionEventType tells connects and disconnects apart.
type ConnectionEventType int

const (
	ClientConnected ConnectionEventType = iota
	ClientDisconnected
)

func (t ConnectionEventType) String() string {
	if t == ClientConnected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionEvent is sent when a named peer registers or goes away.
type ConnectionEvent struct {
	Type ConnectionEventType
	Name string
	ID   string
}

// waitPollInterval is how often WaitForConnection re-checks the registry in
// case it missed an event.
const waitPollInterval = 50 * time.Millisecond

// SubscribeConnections delivers connection events to ch. Slow receivers delay
// the registration of other peers, so ch should be buffered. On a closed server
// the subscription is returned already unsubscribed.
func (s *Server) SubscribeConnections(ch chan<- ConnectionEvent) event.Subscription {
	sub := s.connFeed.Subscribe(ch)
	if tracked := s.feedScope.Track(sub); tracked != nil {
		return tracked
	}
	sub.Unsubscribe()
	return sub
}

// WaitForConnection waits at most timeout for a client named name to be
// connected and reports whether it is.
func (s *Server) WaitForConnection(ctx context.Context, name string, timeout time.Duration) bool {
	events := make(chan ConnectionEvent, 16)
	sub := s.SubscribeConnections(events)
	defer sub.Unsubscribe()

	if s.IsClientConnected(name) {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := time.NewTicker(waitPollInterval)
	defer poll.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Type == ClientConnected && ev.Name == name {
				return true
			}
		case <-poll.C:
			if s.IsClientConnected(name) {
				return true
			}
		case <-timer.C:
			return s.IsClientConnected(name)
		case <-ctx.Done():
			return false
		}
	}
}
