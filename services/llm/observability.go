// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const llmTracerName = "aleutian.delegate.llm"

var llmTracer = otel.Tracer(llmTracerName)

var (
	// llmCallDuration measures provider call latency.
	//
	// Labels:
	//   - provider: "gemini", "openai", "anthropic"
	//   - status: "success" or "error"
	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delegate",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of language model calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delegate",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of language model calls.",
		},
		[]string{"provider", "status"},
	)

	// llmErrorsTotal counts failures by coarse type.
	//
	// Labels:
	//   - error_type: "timeout", "auth", "rate_limit", "server",
	//     "no_candidates", "unknown"
	llmErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delegate",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total language model errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	llmActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "delegate",
			Subsystem: "llm",
			Name:      "active_requests",
			Help:      "Number of in-flight language model requests.",
		},
		[]string{"provider"},
	)
)

// classifyError maps an error to a label-safe error type.
//
// Returns "" for nil.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoCandidates) {
		return "no_candidates"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "status 401") ||
		strings.Contains(msg, "status 403") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "status 5"):
		return "server"
	default:
		return "unknown"
	}
}

func recordLLMMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		llmErrorsTotal.WithLabelValues(provider, classifyError(err)).Inc()
	}
	llmCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	llmCallsTotal.WithLabelValues(provider, status).Inc()
}

// instrumentedClient wraps a Client with a span and Prometheus metrics.
type instrumentedClient struct {
	inner    Client
	provider string
}

// Instrument decorates c so every Generate call is traced and measured.
func Instrument(c Client, provider string) Client {
	return &instrumentedClient{inner: c, provider: provider}
}

func (i *instrumentedClient) Model() string { return i.inner.Model() }

func (i *instrumentedClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	ctx, span := llmTracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("llm.provider", i.provider),
			attribute.String("llm.model", i.inner.Model()),
			attribute.Int("llm.prompt_len", len(prompt)),
		),
	)
	defer span.End()

	llmActiveRequests.WithLabelValues(i.provider).Inc()
	defer llmActiveRequests.WithLabelValues(i.provider).Dec()

	start := time.Now()
	completion, err := i.inner.Generate(ctx, prompt)
	recordLLMMetrics(i.provider, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, classifyError(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.response_len", len(completion.Text())),
		attribute.String("llm.finish_reason", completion.FinishReason),
	)
	return completion, nil
}
