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

// Package exp exposes the metrics registry over HTTP.
package exp

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics"
)

const path = "/debug/metrics/prometheus"

// Handler returns an http.Handler serving the given registry in the Prometheus
// text format.
func Handler(r *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{ErrorLog: errorLogger{}})
}

// Exp registers the metrics handler on the default mux.
func Exp(r *prometheus.Registry) {
	http.Handle(path, Handler(r))
}

// Setup starts a dedicated metrics server at the given address.
func Setup(address string) {
	m := http.NewServeMux()
	m.Handle(path, Handler(metrics.DefaultRegistry))
	log.Info("Starting metrics server", "addr", fmt.Sprintf("http://%s%s", address, path))
	go func() {
		if err := http.ListenAndServe(address, m); err != nil {
			log.Error("Failure in running metrics server", "err", err)
		}
	}()
}

type errorLogger struct{}

func (errorLogger) Println(v ...interface{}) {
	log.Warn("Metrics collection failed", "err", fmt.Sprint(v...))
}
