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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/config"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	rules, err := config.GetRoutingRules(context.Background())
	require.NoError(t, err)
	r, err := NewRouter(rules)
	require.NoError(t, err)
	return r
}

func TestRouter_Classify(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		query string
		want  Route
	}{
		{"Say hello to the operator and acknowledge the task.", RouteDirect},
		{"What are the three-point inspection checks for packaging?", RouteRetrieval},
		{"Create a chart of weekly throughput for the line.", RouteChart},
		{"Create a chart and reference any onboarding documentation for new operators.", RouteBoth},
		{"Draw the flowchart", RouteChart},
		{"two GRAPHS please", RouteChart},
		{"visualize the plot", RouteChart},
		{"call the doctor", RouteDirect},
		{"these documents are long", RouteDirect},
		{"HOW do I reset it", RouteRetrieval},
		{"kb lookup", RouteRetrieval},
		{"data for tenant-b", RouteRetrieval},
		{"plot what happened", RouteBoth},
		{"", RouteDirect},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.query))
		})
	}
}

func TestRouter_Deterministic(t *testing.T) {
	r := newTestRouter(t)
	q := "How does the chart look?"
	first := r.Classify(q)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Classify(q))
	}
	assert.Equal(t, RouteBoth, first)
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(nil)
	assert.Error(t, err)

	_, err = NewRouter(&config.RoutingRules{ChartPatterns: []string{"chart"}})
	assert.Error(t, err)
}

func TestNewRouter_QuotesPatterns(t *testing.T) {
	r, err := NewRouter(&config.RoutingRules{
		ChartPatterns:  []string{"c++"},
		RetrievalWords: []string{"faq"},
	})
	require.NoError(t, err)
	assert.Equal(t, RouteChart, r.Classify("plot in C++"))
	assert.Equal(t, RouteDirect, r.Classify("plot in c"))
	assert.Equal(t, RouteRetrieval, r.Classify("see the FAQ"))
}

func TestNext_TransitionTable(t *testing.T) {
	assert.Equal(t, StepRouted, Next(StepStart, RouteBoth))
	assert.Equal(t, StepDirect, Next(StepRouted, RouteDirect))
	assert.Equal(t, StepChart, Next(StepRouted, RouteChart))
	assert.Equal(t, StepRetrieval, Next(StepRouted, RouteRetrieval))
	assert.Equal(t, StepCombined, Next(StepRouted, RouteBoth))
	for _, branch := range []Step{StepDirect, StepChart, StepRetrieval, StepCombined} {
		assert.Equal(t, StepFinal, Next(branch, RouteDirect))
	}
	assert.Equal(t, StepEnd, Next(StepFinal, RouteDirect))
	assert.Equal(t, StepEnd, Next(StepEnd, RouteDirect))
}
