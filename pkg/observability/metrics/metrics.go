/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics implements the prometheus metrics and the route that exposes them
package metrics

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/any2feed/any2feed/pkg/appinfo"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	metricNamespace   = "any2feed"
	serverSubsystem   = "server"
	poolSubsystem     = "pool"
	upstreamSubsystem = "upstream"
	cacheSubsystem    = "cache"
	buildSubsystem    = "build"
)

// Default histogram buckets used by any2feed
var (
	defaultBuckets = []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 10, 30}
)

// BuildInfo is a Gauge representing the binary build information of the running server
var BuildInfo *prometheus.GaugeVec

// RequestStatus is a Counter of requests that have been served, by method and status
var RequestStatus *prometheus.CounterVec

// RequestDuration is a histogram that tracks the time it takes to serve a request
var RequestDuration *prometheus.HistogramVec

// ResponseWrittenBytes is a Counter of bytes written to clients
var ResponseWrittenBytes prometheus.Counter

// ConnectionsAccepted is a Counter of accepted connections
var ConnectionsAccepted prometheus.Counter

// ConnectionsFailed is a Counter of failed accepts and failed response writes
var ConnectionsFailed *prometheus.CounterVec

// PoolQueueDepth is a Gauge of jobs waiting for a worker
var PoolQueueDepth prometheus.Gauge

// PoolBusyWorkers is a Gauge of workers currently running a job
var PoolBusyWorkers prometheus.Gauge

// PoolJobPanics is a Counter of jobs that panicked and were recovered
var PoolJobPanics prometheus.Counter

// UpstreamRequestStatus is a Counter of outbound requests by upstream host and status
var UpstreamRequestStatus *prometheus.CounterVec

// UpstreamRequestDuration is a Histogram of outbound request durations by host
var UpstreamRequestDuration *prometheus.HistogramVec

// CacheEvents is a Counter of events performed on the response cache
var CacheEvents *prometheus.CounterVec

func init() {
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: buildSubsystem,
			Name:      "info",
			Help: "A metric with a constant '1' value labeled by version," +
				"revision, and goversion from which any2feed was built.",
		},
		[]string{"goversion", "revision", "version"},
	)

	RequestStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: serverSubsystem,
			Name:      "requests_total",
			Help:      "Count of requests served, by method and status.",
		},
		[]string{"method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: serverSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Time required in seconds to serve a request.",
			Buckets:   defaultBuckets,
		},
		[]string{"method", "status"},
	)

	ResponseWrittenBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: serverSubsystem,
			Name:      "written_bytes_total",
			Help:      "Count of bytes written to clients.",
		},
	)

	ConnectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: serverSubsystem,
			Name:      "connections_accepted_total",
			Help:      "Count of connections accepted by the listener.",
		},
	)

	ConnectionsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: serverSubsystem,
			Name:      "connections_failed_total",
			Help:      "Count of connection failures, by stage.",
		},
		[]string{"stage"},
	)

	PoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: poolSubsystem,
			Name:      "queued_jobs",
			Help:      "Number of jobs waiting for a worker.",
		},
	)

	PoolBusyWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: poolSubsystem,
			Name:      "busy_workers",
			Help:      "Number of workers currently running a job.",
		},
	)

	PoolJobPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: poolSubsystem,
			Name:      "job_panics_total",
			Help:      "Count of jobs that panicked and were recovered.",
		},
	)

	UpstreamRequestStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: upstreamSubsystem,
			Name:      "requests_total",
			Help:      "Count of outbound requests, by host and status.",
		},
		[]string{"host", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: upstreamSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Time required in seconds for an outbound request.",
			Buckets:   defaultBuckets,
		},
		[]string{"host"},
	)

	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "events_total",
			Help:      "Count of events performed on the response cache.",
		},
		[]string{"provider", "event"},
	)

	// Register Metrics
	prometheus.MustRegister(BuildInfo)
	prometheus.MustRegister(RequestStatus)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ResponseWrittenBytes)
	prometheus.MustRegister(ConnectionsAccepted)
	prometheus.MustRegister(ConnectionsFailed)
	prometheus.MustRegister(PoolQueueDepth)
	prometheus.MustRegister(PoolBusyWorkers)
	prometheus.MustRegister(PoolJobPanics)
	prometheus.MustRegister(UpstreamRequestStatus)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(CacheEvents)
}

// SetBuildInfo publishes the running binary's version information
func SetBuildInfo() {
	BuildInfo.WithLabelValues(runtime.Version(), appinfo.GitCommitID, appinfo.Version).Set(1)
}

// ObserveRequest records a served request
func ObserveRequest(method string, status uint16, seconds float64) {
	s := strconv.Itoa(int(status))
	RequestStatus.WithLabelValues(method, s).Inc()
	RequestDuration.WithLabelValues(method, s).Observe(seconds)
}

// textFormat is the prometheus text exposition format
var textFormat = expfmt.NewFormat(expfmt.TypeTextPlain)

// Render gathers every registered metric in the prometheus text format
func Render(g prometheus.Gatherer) ([]byte, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mfs, err := g.Gather()
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	enc := expfmt.NewEncoder(buf, textFormat)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Route returns the route that serves the metrics at path
func Route(path string) (*router.Route, error) {
	return router.NewRoute(path, router.HandlerFunc(
		func(*request.Request) (*response.Response, error) {
			b, err := Render(nil)
			if err != nil {
				return nil, err
			}
			return response.WithBytes(b).SetContentType(string(textFormat)), nil
		}))
}
