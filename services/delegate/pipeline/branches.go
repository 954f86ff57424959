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
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// ErrChartFailed wraps any chart builder fault. A chart fault aborts the
// run, including inside the combined branch.
var ErrChartFailed = errors.New("pipeline: chart builder failed")

// ChartBuilder produces a chart configuration for a query.
//
// chart.Builder is the production implementation.
type ChartBuilder interface {
	Build(ctx context.Context, query string) (*datatypes.ChartConfig, error)
}

const (
	directNote   = "Delegate decided to answer directly."
	chartNote    = "Chart tool used with mocked config."
	parallelNote = "Parallel branch: Chart + RAG."
)

func directAnswer(query string) string {
	return `Direct answer (no tools): "` + query + `" - delegate suggests a concise response.`
}

// direct answers without tools. It performs no I/O.
func (p *Pipeline) direct(_ context.Context, s *State) (Update, error) {
	u := Update{Notes: note(directNote)}
	if !s.HasAnswer() {
		u.Answer = stringPtr(directAnswer(s.Query))
	}
	return u, nil
}

// chart attaches a chart configuration.
func (p *Pipeline) chart(ctx context.Context, s *State) (Update, error) {
	cfg, err := p.charts.Build(ctx, s.Query)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %w", ErrChartFailed, err)
	}
	if cfg == nil {
		return Update{}, fmt.Errorf("%w: builder returned no chart", ErrChartFailed)
	}
	return Update{ChartConfig: cfg, Notes: note(chartNote)}, nil
}

// retrieval looks up tenant knowledge. It never fails.
func (p *Pipeline) retrieval(ctx context.Context, s *State) (Update, error) {
	result := p.retriever.Retrieve(ctx, s.Tenant, s.Query)
	return retrievalUpdate(result, s.HasAnswer()), nil
}

// combined runs chart and retrieval concurrently and merges chart first.
//
// Both handlers only read s; nothing writes it until both return.
func (p *Pipeline) combined(ctx context.Context, s *State) (Update, error) {
	var chartUpdate, ragUpdate Update

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := p.chart(gctx, s)
		if err != nil {
			return err
		}
		chartUpdate = u
		return nil
	})
	g.Go(func() error {
		u, err := p.retrieval(gctx, s)
		if err != nil {
			return err
		}
		ragUpdate = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return Update{}, err
	}

	merged := Combine(chartUpdate, ragUpdate)
	merged.Notes = append(merged.Notes, parallelNote)
	return merged, nil
}
