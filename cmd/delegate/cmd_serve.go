// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianDelegate/services/delegate"
	"github.com/AleutianAI/AleutianDelegate/services/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port  int
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Example: `  delegate serve --port 12300
  curl -X POST localhost:12300/v1/delegate/query -d '{"query":"Plot weekly scrap"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			// Shutdown uses a fresh context; ctx is already done by then.
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					a.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
				}
			}()

			if port == 0 {
				port = a.cfg.Server.Port
			}
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           newRouter(a, debug),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(ctx, srv, a.cfg.Server.ShutdownTimeout, a.logger)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode and request logging")
	return cmd
}

// newRouter builds the gin engine with tracing middleware, the delegate
// routes under /v1 and /metrics.
func newRouter(a *app, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(a.cfg.Telemetry.ServiceName))
	if debug {
		router.Use(gin.Logger())
	}

	handlers := delegate.NewHandlers(a.pipeline, a.store, a.cfg.DefaultTenant, a.logger)
	v1 := router.Group("/v1")
	delegate.RegisterRoutes(v1, handlers)

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	return router
}

// runServer serves until ctx is done, then drains in-flight requests for
// at most grace.
func runServer(ctx context.Context, srv *http.Server, grace time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Aleutian Delegate server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down Aleutian Delegate server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	return nil
}
