// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics registers the gateway's Prometheus series and serves
// them on a dedicated listener, separate from the gin engine — mirroring
// the original's exporter being its own ASGI mount rather than a route
// on the main app.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled by the gateway.",
	}, []string{"method", "endpoint", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llm",
		Name:      "request_duration_seconds",
		Help:      "Request handling duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "llm",
		Name:      "active_requests",
		Help:      "Number of requests currently being handled.",
	})

	ModelMemoryGB = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "llm",
		Name:      "model_memory_gb",
		Help:      "Resident memory, in GB, attributed to a loaded model.",
	}, []string{"model"})
)

// Serve starts a dedicated metrics listener on addr, serving
// promhttp.Handler() at /metrics. It blocks until ctx is cancelled or
// the listener fails.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		slog.Info("metrics listener shutting down", slog.String("addr", addr))
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
