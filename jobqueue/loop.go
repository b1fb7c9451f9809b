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

package jobqueue

import (
	"runtime"
	"sync"
	"time"

	"github.com/scriptbridge/hostbridge/log"
)

// Loop drains a queue once per tick, standing in for the host's idle callback.
type Loop struct {
	queue    *Queue
	budget   time.Duration
	interval time.Duration

	mu      sync.Mutex
	quit    chan struct{}
	stopped chan struct{}
}

// NewLoop creates a drain loop. A zero budget or interval selects DefaultBudget.
func NewLoop(q *Queue, budget, interval time.Duration) *Loop {
	if budget == 0 {
		budget = DefaultBudget
	}
	if interval == 0 {
		interval = DefaultBudget
	}
	return &Loop{queue: q, budget: budget, interval: interval}
}

// Queue returns the queue the loop drains.
func (l *Loop) Queue() *Queue {
	return l.queue
}

// Start runs the loop on a dedicated goroutine locked to its OS thread. It returns
// false if the loop is already running.
func (l *Loop) Start() (bool, error) {
	if l.budget <= 0 {
		return false, ErrInvalidBudget
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quit != nil {
		return false, nil
	}
	l.quit = make(chan struct{})
	l.stopped = make(chan struct{})
	go func(quit, stopped chan struct{}) {
		defer close(stopped)
		l.run(quit)
	}(l.quit, l.stopped)
	return true, nil
}

// Run drains on the calling goroutine until quit is closed. It is meant for hosts
// whose main goroutine is the main thread.
func (l *Loop) Run(quit <-chan struct{}) error {
	if l.budget <= 0 {
		return ErrInvalidBudget
	}
	l.run(quit)
	return nil
}

// Stop halts a loop started with Start and waits for the current drain to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	quit, stopped := l.quit, l.stopped
	l.quit, l.stopped = nil, nil
	l.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-stopped
}

func (l *Loop) run(quit <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log.Debug("Drain loop started", "budget", l.budget, "interval", l.interval)
	defer log.Debug("Drain loop stopped")

	timer := l.queue.clock.NewTimer(l.interval)
	defer timer.Stop()
	for {
		select {
		case <-quit:
			return
		case <-timer.C():
			l.queue.Drain(l.budget)
			timer.Reset(l.interval)
		}
	}
}
