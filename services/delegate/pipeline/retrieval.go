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
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

const (
	// DefaultRetrievalLimit caps both retrieval tiers.
	DefaultRetrievalLimit = 3

	// maxFragmentRunes bounds the query prefix used in the Like pattern.
	maxFragmentRunes = 60

	noKnowledgeAnswer = "No matching knowledge found."
)

// KnowledgeSource is the tenant-scoped question/answer store.
//
// knowledge.Store is the production implementation.
type KnowledgeSource interface {
	// SearchQuestions returns rows whose question matches *fragment*.
	SearchQuestions(ctx context.Context, tenant, fragment string, limit int) ([]datatypes.Reference, error)

	// FetchAny returns up to limit rows without filtering.
	FetchAny(ctx context.Context, tenant string, limit int) ([]datatypes.Reference, error)
}

// Retriever runs the two-tier search against a KnowledgeSource.
//
// Description:
//
//	The filtered tier runs first. If it fails or finds nothing, exactly
//	one unfiltered fetch follows. Faults never escape: they are reported
//	as notes and the result is simply empty.
//
// Thread Safety: Safe for concurrent use if the source is.
type Retriever struct {
	source KnowledgeSource
	limit  int
	logger *slog.Logger
}

// NewRetriever creates a Retriever. limit <= 0 uses DefaultRetrievalLimit.
func NewRetriever(source KnowledgeSource, limit int, logger *slog.Logger) *Retriever {
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{source: source, limit: limit, logger: logger}
}

// RetrievalResult is what one Retrieve call found.
type RetrievalResult struct {
	References []datatypes.Reference
	Notes      []string
}

// Retrieve searches tenant's knowledge for query.
func (r *Retriever) Retrieve(ctx context.Context, tenant, query string) RetrievalResult {
	ctx, span := tracer.Start(ctx, "pipeline.Retrieve",
		trace.WithAttributes(attribute.String("tenant", tenant)),
	)
	defer span.End()

	var result RetrievalResult

	hits, err := r.source.SearchQuestions(ctx, tenant, queryFragment(query), r.limit)
	switch {
	case err != nil:
		retrievalTiers.WithLabelValues("filtered", "error").Inc()
		r.logger.Warn("filtered search failed",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()))
		result.Notes = append(result.Notes, fmt.Sprintf("Filtered search failed, falling back: %v", err))
	case len(hits) == 0:
		retrievalTiers.WithLabelValues("filtered", "empty").Inc()
	default:
		retrievalTiers.WithLabelValues("filtered", "hit").Inc()
		result.References = capRefs(hits, r.limit)
		span.SetAttributes(attribute.String("tier", "filtered"), attribute.Int("hits", len(result.References)))
		return result
	}

	hits, err = r.source.FetchAny(ctx, tenant, r.limit)
	if err != nil {
		retrievalTiers.WithLabelValues("unfiltered", "error").Inc()
		r.logger.Warn("unfiltered fetch failed",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()))
		result.Notes = append(result.Notes, fmt.Sprintf("Unfiltered fetch failed: %v", err))
		span.SetAttributes(attribute.String("tier", "none"))
		return result
	}
	if len(hits) == 0 {
		retrievalTiers.WithLabelValues("unfiltered", "empty").Inc()
	} else {
		retrievalTiers.WithLabelValues("unfiltered", "hit").Inc()
	}
	if len(result.Notes) == 0 {
		result.Notes = append(result.Notes, "Used unfiltered fetch because the filtered search returned no matches.")
	}
	result.References = capRefs(hits, r.limit)
	span.SetAttributes(attribute.String("tier", "unfiltered"), attribute.Int("hits", len(result.References)))
	return result
}

// queryFragment returns the first maxFragmentRunes runes of query.
func queryFragment(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) > maxFragmentRunes {
		runes = runes[:maxFragmentRunes]
	}
	return string(runes)
}

func capRefs(refs []datatypes.Reference, limit int) []datatypes.Reference {
	if len(refs) > limit {
		refs = refs[:limit]
	}
	out := make([]datatypes.Reference, len(refs))
	copy(out, refs)
	return out
}

// numberedAnswer renders hits as "1. a 2. b".
func numberedAnswer(refs []datatypes.Reference) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = fmt.Sprintf("%d. %s", i+1, ref.Answer)
	}
	return strings.Join(parts, " ")
}

// retrievalUpdate turns a result into a state update. hasAnswer reports
// whether the state already carries an answer.
func retrievalUpdate(result RetrievalResult, hasAnswer bool) Update {
	u := Update{Notes: result.Notes}
	if len(result.References) == 0 {
		if !hasAnswer {
			u.Answer = stringPtr(noKnowledgeAnswer)
		}
		return u
	}

	ids := make([]string, 0, len(result.References))
	for _, ref := range result.References {
		ids = append(ids, ref.SourceID)
	}
	u.Answer = stringPtr(numberedAnswer(result.References))
	u.References = result.References
	u.KnownFileIDs = union(nil, ids)
	return u
}
