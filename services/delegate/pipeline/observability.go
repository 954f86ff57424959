// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "delegate",
		Subsystem: "router",
		Name:      "decisions_total",
		Help:      "Routing decisions by route",
	}, []string{"route"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "delegate",
		Subsystem: "pipeline",
		Name:      "step_duration_seconds",
		Help:      "Duration of each pipeline step",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"step"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "delegate",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by route and outcome",
	}, []string{"route", "outcome"})

	retrievalTiers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "delegate",
		Subsystem: "retrieval",
		Name:      "tier_results_total",
		Help:      "Retrieval attempts by tier (filtered, unfiltered) and result (hit, empty, error)",
	}, []string{"tier", "result"})

	finalizerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "delegate",
		Subsystem: "finalizer",
		Name:      "outcomes_total",
		Help:      "Final answer source (model, fallback_error, fallback_empty, fallback_unconfigured)",
	}, []string{"source"})
)

// =============================================================================
// OTel
// =============================================================================

var (
	tracer = otel.Tracer("aleutian.delegate.pipeline")
	meter  = otel.Meter("aleutian.delegate.pipeline")
)

// otelRunCounter mirrors runsTotal for OTel metric exporters. Nil when the
// meter could not create the instrument.
var otelRunCounter = func() metric.Int64Counter {
	c, err := meter.Int64Counter("delegate.pipeline.runs",
		metric.WithDescription("Pipeline runs by route and outcome"),
	)
	if err != nil {
		return nil
	}
	return c
}()

func recordRun(ctx context.Context, route Route, outcome string) {
	runsTotal.WithLabelValues(string(route), outcome).Inc()
	if otelRunCounter != nil {
		otelRunCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("route", string(route)),
			attribute.String("outcome", outcome),
		))
	}
}
