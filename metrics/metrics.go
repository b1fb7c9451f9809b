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

// Package metrics holds the process wide metric registry. Metrics are named with
// slash separated paths ("rpc/requests") which are exported to Prometheus with
// the slashes replaced by underscores and a "hostbridge_" prefix.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hostbridge"

// DefaultRegistry is the registry all package level constructors register into.
var DefaultRegistry = newRegistry()

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	lock  sync.Mutex
	known = make(map[string]prometheus.Collector)
)

// promName converts a metric path into a valid Prometheus metric name.
func promName(name string) string {
	name = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return namespace + "_" + name
}

// getOrRegister returns the collector registered under name, creating it with
// create if absent.
func getOrRegister[T prometheus.Collector](name string, create func(string) T) T {
	lock.Lock()
	defer lock.Unlock()

	if c, ok := known[name]; ok {
		return c.(T)
	}
	c := create(promName(name))
	DefaultRegistry.MustRegister(c)
	known[name] = c
	return c
}

// NewRegisteredCounter returns a counter registered in the default registry.
func NewRegisteredCounter(name, help string) prometheus.Counter {
	return getOrRegister(name, func(n string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: n, Help: help})
	})
}

// NewRegisteredGauge returns a gauge registered in the default registry.
func NewRegisteredGauge(name, help string) prometheus.Gauge {
	return getOrRegister(name, func(n string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: n, Help: help})
	})
}

// NewRegisteredTimer returns a histogram of durations in seconds.
func NewRegisteredTimer(name, help string) prometheus.Histogram {
	return getOrRegister(name, func(n string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    n,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		})
	})
}

// NewRegisteredTimerVec is like NewRegisteredTimer but partitioned by labels.
func NewRegisteredTimerVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return getOrRegister(name, func(n string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    n,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels)
	})
}

// UpdateSince records the time elapsed since start on a timer.
func UpdateSince(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}
