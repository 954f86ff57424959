// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline routes a query to one branch, merges the branch result
// into the run state and writes the final answer.
//
// The run is a fixed state machine:
//
//	start -> routed -> {direct | chart | retrieval | combined} -> final -> end
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/llm"
)

// Step is a node of the pipeline state machine.
type Step string

const (
	StepStart     Step = "start"
	StepRouted    Step = "routed"
	StepDirect    Step = "direct"
	StepChart     Step = "chart"
	StepRetrieval Step = "retrieval"
	StepCombined  Step = "combined"
	StepFinal     Step = "final"
	StepEnd       Step = "end"
)

// Next is the transition table. route only matters when leaving
// StepRouted. StepEnd is absorbing.
func Next(step Step, route Route) Step {
	switch step {
	case StepStart:
		return StepRouted
	case StepRouted:
		switch route {
		case RouteChart:
			return StepChart
		case RouteRetrieval:
			return StepRetrieval
		case RouteBoth:
			return StepCombined
		default:
			return StepDirect
		}
	case StepDirect, StepChart, StepRetrieval, StepCombined:
		return StepFinal
	default:
		return StepEnd
	}
}

// Outcome is the result of one run.
type Outcome struct {
	Route Route  `json:"route"`
	Path  []Step `json:"path"`
	State *State `json:"state"`
}

// Options wires a Pipeline.
type Options struct {
	// Router classifies queries. Required.
	Router *Router

	// Charts builds chart configurations. Required.
	Charts ChartBuilder

	// Knowledge is searched by the retrieval branch. Required.
	Knowledge KnowledgeSource

	// RetrievalLimit caps both retrieval tiers. 0 uses DefaultRetrievalLimit.
	RetrievalLimit int

	// Model writes final answers. Nil means "not configured".
	Model llm.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline runs queries through the state machine.
//
// Thread Safety: Safe for concurrent use. Each Run owns its own State.
type Pipeline struct {
	router    *Router
	charts    ChartBuilder
	retriever *Retriever
	finalizer *Finalizer
	logger    *slog.Logger
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Router == nil {
		return nil, errors.New("pipeline: router is required")
	}
	if opts.Charts == nil {
		return nil, errors.New("pipeline: chart builder is required")
	}
	if opts.Knowledge == nil {
		return nil, errors.New("pipeline: knowledge source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "pipeline"))

	return &Pipeline{
		router:    opts.Router,
		charts:    opts.Charts,
		retriever: NewRetriever(opts.Knowledge, opts.RetrievalLimit, logger),
		finalizer: NewFinalizer(opts.Model, logger),
		logger:    logger,
	}, nil
}

// Classify exposes the router decision without running the pipeline.
func (p *Pipeline) Classify(query string) Route {
	return p.router.Classify(query)
}

// Run executes one query.
//
// Description:
//
//	Walks the state machine from StepStart to StepEnd. Exactly one branch
//	runs. Retrieval and model faults degrade into notes; a chart fault
//	aborts the run with an error wrapping ErrChartFailed. A canceled ctx
//	aborts between steps.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - qc: Validated input (see datatypes.NewQueryContext).
//
// Outputs:
//   - *Outcome: Route, visited steps and terminal state.
//   - error: Non-nil on chart fault, cancellation or empty query.
func (p *Pipeline) Run(ctx context.Context, qc datatypes.QueryContext) (*Outcome, error) {
	if qc.Query == "" {
		return nil, datatypes.ErrEmptyQuery
	}
	if qc.Tenant == "" {
		qc.Tenant = datatypes.DefaultTenant
	}

	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("tenant", qc.Tenant)),
	)
	defer span.End()

	state := NewState(qc)
	out := &Outcome{State: state, Path: []Step{StepStart}}
	route := RouteDirect

	for step := StepStart; step != StepEnd; {
		if err := ctx.Err(); err != nil {
			recordRun(ctx, route, "canceled")
			span.RecordError(err)
			span.SetStatus(codes.Error, "canceled")
			return nil, fmt.Errorf("pipeline: %w", err)
		}

		if step == StepRouted {
			route = p.router.Classify(state.Query)
			out.Route = route
			routeDecisions.WithLabelValues(string(route)).Inc()
			span.SetAttributes(attribute.String("route", string(route)))
		}

		if err := p.runStep(ctx, step, route, state); err != nil {
			recordRun(ctx, route, "error")
			span.RecordError(err)
			span.SetStatus(codes.Error, string(step)+" failed")
			p.logger.Error("pipeline step failed",
				slog.String("step", string(step)),
				slog.String("route", string(route)),
				slog.String("error", err.Error()))
			return nil, err
		}

		step = Next(step, route)
		out.Path = append(out.Path, step)
	}

	recordRun(ctx, route, "ok")
	p.logger.Debug("pipeline run complete",
		slog.String("route", string(route)),
		slog.Int("references", len(state.References)),
		slog.Int("notes", len(state.Notes)))
	return out, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, route Route, state *State) error {
	start := time.Now()
	defer func() {
		stepDuration.WithLabelValues(string(step)).Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracer.Start(ctx, "pipeline."+string(step))
	defer span.End()

	var (
		u   Update
		err error
	)
	switch step {
	case StepStart:
		return nil
	case StepRouted:
		u = Update{Notes: note("Routing decision: " + string(route))}
	case StepDirect:
		u, err = p.direct(ctx, state)
	case StepChart:
		u, err = p.chart(ctx, state)
	case StepRetrieval:
		u, err = p.retrieval(ctx, state)
	case StepCombined:
		u, err = p.combined(ctx, state)
	case StepFinal:
		u = p.finalizer.Finalize(ctx, state)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	state.Apply(u)
	return nil
}
