// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package delegate exposes the query pipeline over HTTP.
package delegate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/delegate/pipeline"
)

// Runner executes queries. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, qc datatypes.QueryContext) (*pipeline.Outcome, error)
	Classify(query string) pipeline.Route
}

// ReadinessChecker reports whether a dependency can serve requests.
// *knowledge.Store implements it.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Handlers serves the /v1/delegate endpoints.
//
// Thread Safety: Safe for concurrent use if the Runner is.
type Handlers struct {
	runner        Runner
	ready         ReadinessChecker
	defaultTenant string
	logger        *slog.Logger
}

// NewHandlers creates Handlers.
//
// Inputs:
//   - runner: Pipeline runner. Must not be nil.
//   - ready: Knowledge store readiness. Must not be nil.
//   - defaultTenant: Used when a request names no tenant. Empty uses
//     datatypes.DefaultTenant.
//   - logger: May be nil.
func NewHandlers(runner Runner, ready ReadinessChecker, defaultTenant string, logger *slog.Logger) *Handlers {
	if runner == nil {
		panic("NewHandlers: runner must not be nil")
	}
	if ready == nil {
		panic("NewHandlers: readiness checker must not be nil")
	}
	if defaultTenant == "" {
		defaultTenant = datatypes.DefaultTenant
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{runner: runner, ready: ready, defaultTenant: defaultTenant, logger: logger}
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleQuery handles POST /v1/delegate/query.
//
// Description:
//
//	Runs one query through the pipeline and returns the terminal state.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Malformed body or blank query
//	502 Bad Gateway: The chart builder failed
//	500 Internal Server Error: Any other pipeline failure
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleQuery"))

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query is required", Code: "INVALID_REQUEST"})
		return
	}

	tenant := strings.TrimSpace(req.Tenant)
	if tenant == "" {
		tenant = h.defaultTenant
	}
	qc, err := datatypes.NewQueryContext(req.Query, tenant)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "EMPTY_QUERY"})
		return
	}

	out, err := h.runner.Run(c.Request.Context(), qc)
	if err != nil {
		status, code := http.StatusInternalServerError, "PIPELINE_FAILED"
		switch {
		case errors.Is(err, pipeline.ErrChartFailed):
			status, code = http.StatusBadGateway, "CHART_FAILED"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusServiceUnavailable, "CANCELED"
		}
		logger.Error("pipeline run failed", slog.String("error", err.Error()))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("query answered",
		slog.String("route", string(out.Route)),
		slog.String("tenant", qc.Tenant),
		slog.Int("references", len(out.State.References)))

	c.JSON(http.StatusOK, QueryResponse{
		RequestID: requestID,
		Route:     out.Route,
		Path:      out.Path,
		State:     out.State,
	})
}

// HandleRoute handles POST /v1/delegate/route. It returns the routing
// decision without running any branch.
func (h *Handlers) HandleRoute(c *gin.Context) {
	getOrCreateRequestID(c)

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query is required", Code: "INVALID_REQUEST"})
		return
	}
	c.JSON(http.StatusOK, RouteResponse{Route: h.runner.Classify(req.Query)})
}

// HandleHealth handles GET /v1/delegate/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleReady handles GET /v1/delegate/ready.
//
// Response:
//
//	200 OK: The knowledge store is ready
//	503 Service Unavailable: The knowledge store is not reachable or not ready
func (h *Handlers) HandleReady(c *gin.Context) {
	if err := h.ready.Ready(c.Request.Context()); err != nil {
		h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "NOT_READY"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}
