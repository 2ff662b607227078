// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the running benchmark's rolling per-second
// summary as Prometheus gauges, grounded on
// internal/ratelimiter/telemetry/churn/prom_counters.go's global-vector
// registration and standalone /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvbench/internal/driver"
	"kvbench/internal/logging"
)

// Exporter is a histogram.Sink that republishes each rolling summary as a
// set of per-kind Prometheus gauges, including a gauge holding the
// cumulative operation count.
type Exporter struct {
	registry *prometheus.Registry

	rps          *prometheus.GaugeVec
	minLatency   *prometheus.GaugeVec
	avgLatency   *prometheus.GaugeVec
	rmsLatency   *prometheus.GaugeVec
	maxLatency   *prometheus.GaugeVec
	bps         *prometheus.GaugeVec
	cumulativeN *prometheus.GaugeVec
	server      *http.Server
}

// NewExporter builds an Exporter with its own registry, so a benchmark run
// never collides with any metrics the host process already registers.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		rps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_ops_per_second",
			Help: "Operations completed per second in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		minLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_latency_min_seconds",
			Help: "Minimum observed operation latency in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		avgLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_latency_avg_seconds",
			Help: "Average operation latency in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		rmsLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_latency_rms_seconds",
			Help: "Root-mean-square operation latency in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		maxLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_latency_max_seconds",
			Help: "Maximum observed operation latency in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		bps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_bytes_per_second",
			Help: "Bytes moved per second in the last rolling window, by workload kind.",
		}, []string{"kind"}),
		cumulativeN: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvbench_ops_cumulative",
			Help: "Cumulative operation count since the run started, by workload kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(e.rps, e.minLatency, e.avgLatency, e.rmsLatency, e.maxLatency, e.bps, e.cumulativeN)
	return e
}

// Observe implements histogram.Sink.
func (e *Exporter) Observe(kind driver.Kind, rps, minNs, avgNs, rmsNs, maxNs, bps float64, cumulativeN uint64) {
	label := kind.String()
	const nsPerSec = 1e9

	e.rps.WithLabelValues(label).Set(rps)
	e.minLatency.WithLabelValues(label).Set(minNs / nsPerSec)
	e.avgLatency.WithLabelValues(label).Set(avgNs / nsPerSec)
	e.rmsLatency.WithLabelValues(label).Set(rmsNs / nsPerSec)
	e.maxLatency.WithLabelValues(label).Set(maxNs / nsPerSec)
	e.bps.WithLabelValues(label).Set(bps)
	e.cumulativeN.WithLabelValues(label).Set(float64(cumulativeN))
}

// Serve starts a standalone /metrics endpoint on addr, mirroring
// startMetricsEndpoint's dedicated-server pattern for an opt-in exporter.
func (e *Exporter) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.Errorf("metrics: serve %s: %v", addr, err)
		}
	}()
}

// Shutdown stops the standalone metrics server, if one was started.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
