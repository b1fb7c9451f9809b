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
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scriptbridge/hostbridge/common/mclock"
	"github.com/stretchr/testify/require"
)

func TestDrainInvalidBudget(t *testing.T) {
	q := New(new(mclock.Simulated))
	q.Post(func() {})

	for _, budget := range []time.Duration{0, -time.Second} {
		n, err := q.Drain(budget)
		require.ErrorIs(t, err, ErrInvalidBudget)
		require.ErrorIs(t, err, ErrInvalidArgument)
		require.Zero(t, n)
	}
	require.Equal(t, 1, q.Len(), "invalid drain must not consume jobs")
}

func TestDrainFIFO(t *testing.T) {
	q := New(new(mclock.Simulated))
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		q.Post(func() { order = append(order, i) })
	}
	n, err := q.Drain(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	require.Zero(t, q.Len())
}

func TestDrainBudget(t *testing.T) {
	var (
		clock   = new(mclock.Simulated)
		q       = New(clock)
		jobTime = 10 * time.Millisecond
		budget  = 35 * time.Millisecond
		total   = 10
	)
	for i := 0; i < total; i++ {
		q.Post(func() { clock.Run(jobTime) })
	}
	n, err := q.Drain(budget)
	require.NoError(t, err)

	upper := int((budget+jobTime-1)/jobTime) + 1
	require.GreaterOrEqual(t, n, 1)
	require.LessOrEqual(t, n, upper)
	require.Equal(t, 4, n)
	require.Equal(t, total-n, q.Len())
}

func TestDrainRunsAtLeastOneJob(t *testing.T) {
	clock := new(mclock.Simulated)
	q := New(clock)
	for i := 0; i < 3; i++ {
		q.Post(func() { clock.Run(time.Second) })
	}
	n, err := q.Drain(time.Nanosecond)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 2, q.Len())
}

func TestCallBlocksUntilDrained(t *testing.T) {
	q := New(new(mclock.Simulated))
	require.Zero(t, q.Len())

	type callResult struct {
		v   interface{}
		err error
	}
	result := make(chan callResult, 1)
	go func() {
		v, err := q.Call(context.Background(), func() (interface{}, error) {
			return "done", nil
		})
		result <- callResult{v, err}
	}()

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	select {
	case <-result:
		t.Fatal("Call returned before the job was drained")
	case <-time.After(20 * time.Millisecond):
	}

	n, err := q.Drain(DefaultBudget)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, q.Len())
	select {
	case r := <-result:
		require.NoError(t, r.err)
		require.Equal(t, "done", r.v)
	case <-time.After(time.Second):
		t.Fatal("Call did not return after drain")
	}
}

func TestCallPreservesError(t *testing.T) {
	q := New(new(mclock.Simulated))
	sentinel := errors.New("host refused")

	job := q.Submit(func() (interface{}, error) { return nil, sentinel })
	q.Drain(DefaultBudget)
	_, err := job.Wait(context.Background())
	require.Same(t, sentinel, err)
}

func TestJobPanicRecorded(t *testing.T) {
	q := New(new(mclock.Simulated))
	job := q.Submit(func() (interface{}, error) { panic("boom") })
	next := q.Submit(func() (interface{}, error) { return 1, nil })

	n, err := q.Drain(DefaultBudget)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, ErrJobPanicked)
	require.ErrorContains(t, err, "boom")

	v, err := next.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestWithdrawnJobNeverRuns(t *testing.T) {
	q := New(new(mclock.Simulated))
	var ran atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Call(ctx, func() (interface{}, error) {
		ran.Store(true)
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	n, err := q.Drain(DefaultBudget)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, ran.Load())
}

func TestJobRunsAtMostOnce(t *testing.T) {
	q := New(new(mclock.Simulated))
	var runs atomic.Int32
	job := q.Submit(func() (interface{}, error) {
		runs.Add(1)
		return nil, nil
	})
	q.Drain(DefaultBudget)
	q.Drain(DefaultBudget)
	<-job.Done()
	require.Equal(t, int32(1), runs.Load())
}
