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
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type throttledClient struct {
	inner   Client
	limiter *rate.Limiter
}

// WithRateLimit bounds how fast Generate may reach the provider.
//
// Callers block until a token is available or ctx ends. A non-positive
// rps leaves c unwrapped.
func WithRateLimit(c Client, rps float64, burst int) Client {
	if rps <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &throttledClient{inner: c, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttledClient) Model() string { return t.inner.Model() }

func (t *throttledClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm: rate limit wait: %w", err)
	}
	return t.inner.Generate(ctx, prompt)
}
