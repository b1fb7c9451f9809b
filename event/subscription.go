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

// Package event fans typed values out to subscriber channels.
package event

import "sync"

// Subscription is a registration on a Feed. Err is closed once the
// subscription ends. Unsubscribe may be called any number of times.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}

// Scope ends a group of subscriptions together. Once closed it refuses new
// ones. The zero value is ready to use.
type Scope struct {
	mu     sync.Mutex
	subs   map[*scoped]struct{}
	closed bool
}

type scoped struct {
	Subscription
	scope *Scope
}

// Track adds s to the scope and returns a wrapper whose Unsubscribe also drops
// it from the scope. It returns nil on a closed scope, leaving s untouched.
func (sc *Scope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil
	}
	if sc.subs == nil {
		sc.subs = make(map[*scoped]struct{})
	}
	w := &scoped{Subscription: s, scope: sc}
	sc.subs[w] = struct{}{}
	return w
}

// Close unsubscribes everything tracked.
func (sc *Scope) Close() {
	sc.mu.Lock()
	subs := sc.subs
	sc.subs, sc.closed = nil, true
	sc.mu.Unlock()

	for w := range subs {
		w.Subscription.Unsubscribe()
	}
}

// Count returns the number of live tracked subscriptions.
func (sc *Scope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.subs)
}

func (w *scoped) Unsubscribe() {
	w.Subscription.Unsubscribe()
	w.scope.mu.Lock()
	delete(w.scope.subs, w)
	w.scope.mu.Unlock()
}
