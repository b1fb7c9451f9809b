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

package mclock

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Simulated is a Clock that only moves when Run is called. Jobs under test
// call Run to pretend they took a given time, which makes budget accounting
// deterministic. The zero value is ready to use.
type Simulated struct {
	mu      sync.Mutex
	changed sync.Cond
	now     AbsTime
	armed   []*simTimer
}

type simTimer struct {
	clock *Simulated
	at    AbsTime
	ch    chan AbsTime
}

func (s *Simulated) lock() {
	s.mu.Lock()
	if s.changed.L == nil {
		s.changed.L = &s.mu
	}
}

// Now returns the virtual time.
func (s *Simulated) Now() AbsTime {
	s.lock()
	defer s.mu.Unlock()
	return s.now
}

// NewTimer arms a timer that fires once the clock has advanced by d.
func (s *Simulated) NewTimer(d time.Duration) Timer {
	t := &simTimer{clock: s, ch: make(chan AbsTime, 1)}
	t.Reset(d)
	return t
}

// Run advances the clock by d and fires every timer that falls due, earliest
// first.
func (s *Simulated) Run(d time.Duration) {
	s.lock()
	s.now = s.now.Add(d)
	var due []*simTimer
	s.armed = slices.DeleteFunc(s.armed, func(t *simTimer) bool {
		if t.at <= s.now {
			due = append(due, t)
			return true
		}
		return false
	})
	s.changed.Broadcast()
	s.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *simTimer) int { return cmp.Compare(a.at, b.at) })
	for _, t := range due {
		select {
		case t.ch <- t.at:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers are armed.
func (s *Simulated) WaitForTimers(n int) {
	s.lock()
	defer s.mu.Unlock()
	for len(s.armed) < n {
		s.changed.Wait()
	}
}

// ActiveTimers returns the number of armed timers.
func (s *Simulated) ActiveTimers() int {
	s.lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

func (t *simTimer) C() <-chan AbsTime { return t.ch }

func (t *simTimer) Reset(d time.Duration) {
	s := t.clock
	s.lock()
	defer s.mu.Unlock()
	t.at = s.now.Add(d)
	if !slices.Contains(s.armed, t) {
		s.armed = append(s.armed, t)
	}
	s.changed.Broadcast()
}

func (t *simTimer) Stop() bool {
	s := t.clock
	s.lock()
	defer s.mu.Unlock()
	i := slices.Index(s.armed, t)
	if i < 0 {
		return false
	}
	s.armed = slices.Delete(s.armed, i, i+1)
	s.changed.Broadcast()
	return true
}
