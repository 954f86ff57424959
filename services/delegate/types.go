// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package delegate

import (
	"github.com/AleutianAI/AleutianDelegate/services/delegate/pipeline"
)

// QueryRequest is the body of POST /v1/delegate/query.
type QueryRequest struct {
	// Query is the operator's free text. Required.
	Query string `json:"query" binding:"required"`

	// Tenant scopes retrieval. Empty uses the configured default tenant.
	Tenant string `json:"tenant"`
}

// QueryResponse is the body returned by POST /v1/delegate/query.
type QueryResponse struct {
	RequestID string          `json:"requestId"`
	Route     pipeline.Route  `json:"route"`
	Path      []pipeline.Step `json:"path"`
	State     *pipeline.State `json:"state"`
}

// RouteRequest is the body of POST /v1/delegate/route.
type RouteRequest struct {
	Query string `json:"query" binding:"required"`
}

// RouteResponse is the body returned by POST /v1/delegate/route.
type RouteResponse struct {
	Route pipeline.Route `json:"route"`
}

// HealthResponse is returned by the health and readiness endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
