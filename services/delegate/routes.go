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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the delegate routes with the router.
//
// Description:
//
//	Registers all /v1/delegate/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/delegate/query - Run a query through the pipeline
//	POST /v1/delegate/route - Classify a query without running it
//	GET  /v1/delegate/health - Health check
//	GET  /v1/delegate/ready - Readiness check (knowledge store)
//
// Example:
//
//	handlers := delegate.NewHandlers(p, store, cfg.DefaultTenant, logger)
//	v1 := router.Group("/v1")
//	delegate.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	d := rg.Group("/delegate")
	{
		d.POST("/query", handlers.HandleQuery)
		d.POST("/route", handlers.HandleRoute)

		d.GET("/health", handlers.HandleHealth)
		d.GET("/ready", handlers.HandleReady)
	}
}
