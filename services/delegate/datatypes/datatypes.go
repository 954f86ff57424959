// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the value types shared by the delegate pipeline,
// the knowledge store and the HTTP surface.
package datatypes

import (
	"errors"
	"strings"
)

const (
	// DefaultTenant scopes retrieval when the caller names no tenant.
	DefaultTenant = "tenant-a"

	// QAClassName is the knowledge-store class holding question/answer rows.
	QAClassName = "QAItem"

	// UnknownSourceID is recorded for stored rows that carry no sourceId.
	UnknownSourceID = "unknown-source"
)

// ErrEmptyQuery is returned when a query is blank after trimming.
var ErrEmptyQuery = errors.New("datatypes: query must not be empty")

// Reference is one retrieved knowledge record.
//
// References are produced by the knowledge store and never mutated after
// creation. Two references are the same record when their SourceID matches.
type Reference struct {
	SourceID string `json:"sourceId" yaml:"source_id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// QueryContext is the immutable input to one pipeline run.
type QueryContext struct {
	Query  string `json:"query"`
	Tenant string `json:"tenant"`
}

// NewQueryContext validates and normalizes pipeline input.
//
// Description:
//
//	Trims the query and rejects it when nothing is left. A blank tenant
//	falls back to DefaultTenant.
//
// Inputs:
//   - query: Free text from the operator. Must contain non-space characters.
//   - tenant: Tenant identifier. May be empty.
//
// Outputs:
//   - QueryContext: The normalized context.
//   - error: ErrEmptyQuery when the query is blank.
func NewQueryContext(query, tenant string) (QueryContext, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return QueryContext{}, ErrEmptyQuery
	}
	t := strings.TrimSpace(tenant)
	if t == "" {
		t = DefaultTenant
	}
	return QueryContext{Query: q, Tenant: t}, nil
}
