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

// Package jobqueue serialises work onto a single host thread.
//
// Producers on arbitrary goroutines post jobs; the host drains them in FIFO order
// from its main thread, bounded by a time budget per tick.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scriptbridge/hostbridge/common/mclock"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics"
	"golang.org/x/time/rate"
)

// DefaultBudget is the drain budget of a single host frame.
const DefaultBudget = time.Second / 60

var (
	// ErrInvalidArgument is the root of all argument errors of this package
	// and of the bridge built on it.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidBudget is returned by Drain for a non-positive budget.
	ErrInvalidBudget = fmt.Errorf("%w: drain budget must be positive", ErrInvalidArgument)

	// ErrJobPanicked is wrapped by the error recorded for a job that panicked.
	ErrJobPanicked = errors.New("jobqueue: job panicked")
)

var (
	queueLengthGauge  = metrics.NewRegisteredGauge("jobqueue/length", "Jobs waiting for the main thread")
	jobsExecutedMeter = metrics.NewRegisteredCounter("jobqueue/executed", "Jobs run by the drain loop")
	jobsSkippedMeter  = metrics.NewRegisteredCounter("jobqueue/skipped", "Jobs abandoned by their submitter before running")
	drainTimer        = metrics.NewRegisteredTimer("jobqueue/drain", "Time spent per drain")
	overBudgetMeter   = metrics.NewRegisteredCounter("jobqueue/over-budget", "Drains that stopped with work left")
)

const (
	jobPending int32 = iota
	jobRunning
	jobDone
	jobCancelled
)

// Job is a unit of work waiting for the main thread. It runs at most once.
type Job struct {
	fn     func() (interface{}, error)
	state  atomic.Int32
	done   chan struct{}
	result interface{}
	err    error
}

func newJob(fn func() (interface{}, error)) *Job {
	return &Job{fn: fn, done: make(chan struct{})}
}

// Done returns a channel that is closed once the job has run.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns what the job recorded. It must only be called after Done is closed.
func (j *Job) Result() (interface{}, error) {
	return j.result, j.err
}

// Wait blocks until the job has run and returns its result. If ctx ends while the
// job is still queued, the job is withdrawn and will never run. A job that has
// already started is always waited for, so its caller never returns while the
// job is touching host state.
func (j *Job) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobCancelled) {
			jobsSkippedMeter.Inc()
			return nil, ctx.Err()
		}
		<-j.done
		return j.result, j.err
	}
}

// run executes the job on the calling goroutine, recording a panic as an error.
func (j *Job) run() {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Error("Job crashed", "err", r, "stack", string(buf))
			j.result, j.err = nil, fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
		j.state.Store(jobDone)
	}()
	j.result, j.err = j.fn()
}

// Queue is a thread-safe FIFO of jobs consumed by Drain.
type Queue struct {
	clock   mclock.Clock
	limiter *rate.Limiter

	mu   sync.Mutex
	jobs []*Job
}

// New creates an empty queue. Drain budgets are measured with clock.
func New(clock mclock.Clock) *Queue {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Queue{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Post enqueues fn for the main thread and returns immediately.
func (q *Queue) Post(fn func()) *Job {
	return q.Submit(func() (interface{}, error) {
		fn()
		return nil, nil
	})
}

// Submit enqueues fn and returns its job without waiting.
func (q *Queue) Submit(fn func() (interface{}, error)) *Job {
	j := newJob(fn)
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	queueLengthGauge.Set(float64(len(q.jobs)))
	q.mu.Unlock()
	return j
}

// Call submits fn and blocks until the drain loop has run it.
func (q *Queue) Call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	return q.Submit(fn).Wait(ctx)
}

// Len returns the number of queued jobs, including withdrawn ones not yet popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	queueLengthGauge.Set(float64(len(q.jobs)))
	return j
}

// Drain runs queued jobs in order on the calling goroutine until the queue is
// empty or the time spent exceeds budget. The budget is only checked between
// jobs, so a non-empty queue always gets at least one job run and a running job
// is never interrupted. It returns the number of jobs executed.
func (q *Queue) Drain(budget time.Duration) (int, error) {
	if budget <= 0 {
		return 0, ErrInvalidBudget
	}
	var (
		start   = q.clock.Now()
		started = time.Now()
		n       int
	)
	for {
		j := q.pop()
		if j == nil {
			break
		}
		if !j.state.CompareAndSwap(jobPending, jobRunning) {
			continue // withdrawn by its submitter
		}
		j.run()
		n++
		if q.clock.Now().Sub(start) >= budget {
			break
		}
	}
	if n > 0 {
		jobsExecutedMeter.Add(float64(n))
		metrics.UpdateSince(drainTimer, started)
	}
	if left := q.Len(); left > 0 {
		overBudgetMeter.Inc()
		if q.limiter.Allow() {
			log.Warn("Job queue drain over budget", "ran", n, "left", left, "budget", budget)
		}
	}
	return n, nil
}
