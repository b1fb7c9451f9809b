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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	_ Clock = System{}
	_ Clock = new(Simulated)
)

func TestSimulatedTimerFires(t *testing.T) {
	var (
		c       Simulated
		offset  = 5 * time.Hour
		timeout = 30 * time.Minute
		step    = 11 * time.Minute
	)
	c.Run(offset)
	timer := c.NewTimer(timeout)
	require.Equal(t, 1, c.ActiveTimers())

	c.Run(step)
	c.Run(step)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}
	c.Run(step)
	select {
	case at := <-timer.C():
		require.Equal(t, AbsTime(0).Add(offset+timeout), at)
	default:
		t.Fatal("timer didn't fire")
	}
	require.Zero(t, c.ActiveTimers())
}

func TestSimulatedTimerReset(t *testing.T) {
	var c Simulated
	timer := c.NewTimer(time.Hour)
	c.Run(2 * time.Hour)
	<-timer.C()

	timer.Reset(time.Hour)
	c.Run(30 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}
	c.Run(30 * time.Minute)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer didn't fire after reset")
	}
}

func TestSimulatedTimerStop(t *testing.T) {
	var c Simulated
	timer := c.NewTimer(time.Second)
	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	c.Run(time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestWaitForTimers(t *testing.T) {
	var c Simulated
	done := make(chan struct{})
	go func() {
		c.WaitForTimers(2)
		close(done)
	}()
	c.NewTimer(time.Second)
	c.NewTimer(time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForTimers didn't return")
	}
}

func TestSystemTimer(t *testing.T) {
	timer := System{}.NewTimer(time.Millisecond)
	select {
	case at := <-timer.C():
		require.Positive(t, int64(at))
	case <-time.After(5 * time.Second):
		t.Fatal("system timer didn't fire")
	}
	timer.Reset(time.Hour)
	require.True(t, timer.Stop())
}
