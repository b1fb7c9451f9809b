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

package rpc

import (
	"time"

	"github.com/scriptbridge/hostbridge/metrics"
)

var (
	rpcRequestGauge        = metrics.NewRegisteredCounter("rpc/requests", "RPC requests served")
	successfulRequestGauge = metrics.NewRegisteredCounter("rpc/success", "RPC requests that succeeded")
	failedRequestGauge     = metrics.NewRegisteredCounter("rpc/failure", "RPC requests that failed")

	rpcServingTimer = metrics.NewRegisteredTimer("rpc/duration/all", "Time spent serving RPC requests")
	rpcMethodTimer  = metrics.NewRegisteredTimerVec("rpc/duration", "Time spent serving RPC requests per method", "method", "result")
)

func updateServeTimeHistogram(method string, success bool, elapsed time.Duration) {
	note := "success"
	if !success {
		note = "failure"
	}
	rpcMethodTimer.WithLabelValues(method, note).Observe(elapsed.Seconds())
}
