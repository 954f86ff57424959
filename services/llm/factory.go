// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
)

// Supported provider names.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig describes the one language model the service may use.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   *memguard.Enclave
	Params   GenerationParams
	Timeout  time.Duration

	// RequestsPerSecond caps provider calls. 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// NewClient builds the configured client with its decorators.
//
// Description:
//
//	Returns (nil, nil) when no provider or no key is configured; the
//	finalizer treats a nil Client as "not configured". Otherwise the
//	provider client is instrumented, rate limited and, when cache is
//	non-nil, fronted by the completion cache (outermost, so hits skip the
//	limiter).
//
// Inputs:
//   - cfg: Provider configuration resolved at startup.
//   - cache: Optional completion cache. May be nil.
//
// Outputs:
//   - Client: Ready client, or nil when not configured.
//   - error: Non-nil for an unknown provider.
func NewClient(cfg ProviderConfig, cache *CompletionCache) (Client, error) {
	if cfg.Provider == "" || cfg.APIKey == nil {
		slog.Info("language model not configured; final answers use deterministic fallbacks")
		return nil, nil
	}

	var (
		base Client
		err  error
	)
	switch cfg.Provider {
	case ProviderGemini:
		base, err = NewGeminiClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Params, cfg.Timeout)
	case ProviderOpenAI:
		base, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Params, cfg.Timeout)
	case ProviderAnthropic:
		base, err = NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Params, cfg.Timeout)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("language model configured",
		slog.String("provider", cfg.Provider),
		slog.String("model", cfg.Model),
		slog.Bool("cache", cache != nil),
		slog.Float64("rps", cfg.RequestsPerSecond),
	)

	client := Instrument(base, cfg.Provider)
	client = WithRateLimit(client, cfg.RequestsPerSecond, cfg.Burst)
	return WithCache(client, cache, cfg.Params), nil
}
