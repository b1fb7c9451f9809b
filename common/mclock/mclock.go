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

// Package mclock provides the monotonic clock the job queue measures drain
// budgets and schedules drain ticks with, plus a virtual clock for tests.
package mclock

import "time"

var start = time.Now()

// AbsTime is a monotonic instant, measured from process start.
type AbsTime int64

// Now returns the current monotonic instant.
func Now() AbsTime {
	return AbsTime(time.Since(start))
}

// Add returns t moved forward by d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns the duration from u to t.
func (t AbsTime) Sub(u AbsTime) time.Duration {
	return time.Duration(t - u)
}

// Clock is the time source of the job queue.
type Clock interface {
	Now() AbsTime
	NewTimer(d time.Duration) Timer
}

// Timer fires once on C after its duration and may be rearmed with Reset.
type Timer interface {
	C() <-chan AbsTime
	// Reset rearms a fired or stopped timer whose channel has been drained.
	Reset(d time.Duration)
	// Stop disarms the timer. It reports whether the timer was still armed.
	Stop() bool
}

// System is the Clock backed by the runtime's monotonic clock.
type System struct{}

func (System) Now() AbsTime { return Now() }

func (System) NewTimer(d time.Duration) Timer {
	t := &systemTimer{ch: make(chan AbsTime, 1)}
	t.timer = time.AfterFunc(d, t.fire)
	return t
}

type systemTimer struct {
	timer *time.Timer
	ch    chan AbsTime
}

// fire never blocks. A tick nobody collected before Reset is dropped.
func (t *systemTimer) fire() {
	select {
	case t.ch <- Now():
	default:
	}
}

func (t *systemTimer) C() <-chan AbsTime     { return t.ch }
func (t *systemTimer) Reset(d time.Duration) { t.timer.Reset(d) }
func (t *systemTimer) Stop() bool            { return t.timer.Stop() }
