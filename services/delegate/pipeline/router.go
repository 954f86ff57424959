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
	"errors"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/config"
)

// Route is the branch a query is dispatched to.
type Route string

const (
	RouteDirect    Route = "direct"
	RouteChart     Route = "chart"
	RouteRetrieval Route = "retrieval"
	RouteBoth      Route = "both"
)

// Router classifies queries by keyword.
//
// Description:
//
//	Chart patterns match as case-insensitive substrings, so "charts" and
//	"flowchart" both count. Retrieval words match only as whole words, so
//	"doc" does not fire on "doctor".
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Router struct {
	chart     *regexp.Regexp
	retrieval *regexp.Regexp
}

// NewRouter compiles rules into a Router.
//
// Inputs:
//   - rules: Routing vocabularies. Both lists must be non-empty.
//
// Outputs:
//   - *Router: The compiled router.
//   - error: Non-nil if rules is nil or a list is empty.
func NewRouter(rules *config.RoutingRules) (*Router, error) {
	if rules == nil {
		return nil, errors.New("pipeline: routing rules must not be nil")
	}
	if len(rules.ChartPatterns) == 0 || len(rules.RetrievalWords) == 0 {
		return nil, errors.New("pipeline: routing rules need chart patterns and retrieval words")
	}
	return &Router{
		chart:     regexp.MustCompile(`(?i)(` + alternation(rules.ChartPatterns) + `)`),
		retrieval: regexp.MustCompile(`(?i)\b(` + alternation(rules.RetrievalWords) + `)\b`),
	}, nil
}

func alternation(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// Classify returns the route for query. It is a pure function of the text.
func (r *Router) Classify(query string) Route {
	wantsChart := r.chart.MatchString(query)
	wantsRetrieval := r.retrieval.MatchString(query)

	switch {
	case wantsChart && wantsRetrieval:
		return RouteBoth
	case wantsChart:
		return RouteChart
	case wantsRetrieval:
		return RouteRetrieval
	default:
		return RouteDirect
	}
}
