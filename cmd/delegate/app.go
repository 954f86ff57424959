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

	"github.com/AleutianAI/AleutianDelegate/services/delegate/chart"
	"github.com/AleutianAI/AleutianDelegate/services/delegate/config"
	"github.com/AleutianAI/AleutianDelegate/services/delegate/pipeline"
	"github.com/AleutianAI/AleutianDelegate/services/knowledge"
	"github.com/AleutianAI/AleutianDelegate/services/llm"
	badgerstore "github.com/AleutianAI/AleutianDelegate/services/storage/badger"
	"github.com/AleutianAI/AleutianDelegate/services/telemetry"
)

// app is the wired process: configuration, knowledge store, optional
// model and the pipeline over them.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *knowledge.ResilientClient
	store    *knowledge.Store
	pipeline *pipeline.Pipeline

	cacheDB           *badgerstore.DB
	shutdownTelemetry func(context.Context) error
}

// newApp resolves configuration and builds every dependency.
//
// Description:
//
//	Nothing here touches the network: the Weaviate client connects lazily
//	and the language model is only called by the finalizer. A completion
//	cache that cannot be opened is logged and skipped.
//
// Outputs:
//   - *app: Ready application. The caller must Close it.
//   - error: Configuration, telemetry or client construction failure.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(ctx, opts.configPath, opts.lookup)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", slog.Any("config", cfg))

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Writer:         opts.stderr,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, shutdownTelemetry: shutdown}

	var cache *llm.CompletionCache
	if cfg.Cache.Enabled && cfg.LLM.Configured() {
		bcfg := badgerstore.DefaultConfig(cfg.Cache.Dir)
		bcfg.Logger = logger
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			logger.Warn("Completion cache unavailable, continuing without it",
				slog.String("path", cfg.Cache.Dir),
				slog.String("error", err.Error()))
		} else {
			a.cacheDB = db
			cache = llm.NewCompletionCache(db, cfg.Cache.TTL, logger)
		}
	}

	model, err := llm.NewClient(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Params: llm.GenerationParams{
			Temperature:     cfg.LLM.Temperature,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		},
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	}, cache)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	kcfg := knowledge.DefaultClientConfig()
	kcfg.URL = cfg.Weaviate.URL
	kcfg.Timeout = cfg.Weaviate.Timeout
	kcfg.RetryAttempts = cfg.Weaviate.MaxRetries
	if kcfg.RetryAttempts == 0 {
		kcfg.RetryAttempts = -1
	}
	kcfg.CircuitThreshold = cfg.Weaviate.CircuitThreshold
	kcfg.CircuitCooldown = cfg.Weaviate.CircuitCooldown
	kcfg.Logger = logger

	a.client, err = knowledge.NewResilientClient(kcfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.store = knowledge.NewStore(a.client, logger)

	router, err := pipeline.NewRouter(cfg.Routing)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.pipeline, err = pipeline.New(pipeline.Options{
		Router:         router,
		Charts:         chart.Builder{},
		Knowledge:      a.store,
		RetrievalLimit: cfg.RetrievalLimit,
		Model:          model,
		Logger:         logger,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return a, nil
}

// Close releases the knowledge client, the cache and telemetry providers.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.cacheDB != nil {
		errs = append(errs, a.cacheDB.Close())
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(ctx))
	}
	return errors.Join(errs...)
}
