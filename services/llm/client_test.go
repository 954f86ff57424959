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
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/AleutianAI/AleutianDelegate/services/storage/badger"
)

// stubClient counts calls and returns a fixed completion or error.
type stubClient struct {
	model      string
	completion *Completion
	err        error
	calls      atomic.Int32
}

func (s *stubClient) Model() string { return s.model }

func (s *stubClient) Generate(_ context.Context, _ string) (*Completion, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func TestCompletion_Text(t *testing.T) {
	tests := []struct {
		name string
		c    *Completion
		want string
	}{
		{"nil", nil, ""},
		{"content", &Completion{Content: "  single payload "}, "single payload"},
		{"content wins over parts", &Completion{Content: "a", Parts: []string{"b"}}, "a"},
		{"parts joined by one space", &Completion{Parts: []string{"first", "second"}}, "first second"},
		{"blank parts skipped", &Completion{Parts: []string{" ", "one", "", " two "}}, "one two"},
		{"blank content falls to parts", &Completion{Content: "  ", Parts: []string{"x"}}, "x"},
		{"all blank", &Completion{Content: " ", Parts: []string{" "}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Text())
		})
	}
}

func TestNewClient_NotConfigured(t *testing.T) {
	c, err := NewClient(ProviderConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewClient(ProviderConfig{Provider: ProviderGemini}, nil)
	require.NoError(t, err)
	assert.Nil(t, c, "provider without key is not configured")
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(ProviderConfig{Provider: "mystery", APIKey: testKey("k")}, nil)
	assert.Error(t, err)
}

func TestNewClient_Providers(t *testing.T) {
	for _, p := range []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		t.Run(p, func(t *testing.T) {
			c, err := NewClient(ProviderConfig{Provider: p, Model: "m-" + p, BaseURL: "http://localhost", APIKey: testKey("k")}, nil)
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, "m-"+p, c.Model())
		})
	}
}

func TestWithCache_HitSkipsProvider(t *testing.T) {
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	stub := &stubClient{model: "m", completion: &Completion{Parts: []string{"cached", "answer"}}}
	client := WithCache(stub, NewCompletionCache(db, time.Hour, nil), GenerationParams{})
	ctx := context.Background()

	first, err := client.Generate(ctx, "prompt")
	require.NoError(t, err)
	second, err := client.Generate(ctx, "prompt")
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, first.Text(), second.Text())
	assert.Equal(t, "cached answer", second.Text())

	_, err = client.Generate(ctx, "another prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestWithCache_EmptyAndErrorsNotCached(t *testing.T) {
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	cache := NewCompletionCache(db, 0, nil)
	ctx := context.Background()

	empty := &stubClient{model: "m", completion: &Completion{}}
	client := WithCache(empty, cache, GenerationParams{})
	_, _ = client.Generate(ctx, "p")
	_, _ = client.Generate(ctx, "p")
	assert.Equal(t, int32(2), empty.calls.Load())

	failing := &stubClient{model: "m2", err: errors.New("status 503")}
	client = WithCache(failing, cache, GenerationParams{})
	_, err = client.Generate(ctx, "p")
	assert.Error(t, err)
	_, err = cache.Load(ctx, "m2", GenerationParams{}, "p")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestWithCache_GenerationParamsSeparateEntries(t *testing.T) {
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	cache := NewCompletionCache(db, time.Hour, nil)
	ctx := context.Background()
	stub := &stubClient{model: "m", completion: &Completion{Content: "answer"}}

	cool := WithCache(stub, cache, GenerationParams{Temperature: 0.2, MaxOutputTokens: 256})
	warm := WithCache(stub, cache, GenerationParams{Temperature: 0.9, MaxOutputTokens: 256})
	short := WithCache(stub, cache, GenerationParams{Temperature: 0.2, MaxOutputTokens: 32})

	for _, c := range []Client{cool, warm, short} {
		_, err := c.Generate(ctx, "prompt")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), stub.calls.Load())

	_, err = cool.Generate(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(3), stub.calls.Load())

	_, err = cache.Load(ctx, "m", GenerationParams{Temperature: 0.5, MaxOutputTokens: 256}, "prompt")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCompletionCacheKey(t *testing.T) {
	base := completionCacheKey("m", GenerationParams{Temperature: 0.2, MaxOutputTokens: 64}, "p")
	assert.True(t, strings.HasPrefix(string(base), CompletionCacheKeyPrefix))
	assert.Equal(t, base, completionCacheKey("m", GenerationParams{Temperature: 0.2, MaxOutputTokens: 64}, "p"))
	assert.NotEqual(t, base, completionCacheKey("m", GenerationParams{Temperature: 0.3, MaxOutputTokens: 64}, "p"))
	assert.NotEqual(t, base, completionCacheKey("m", GenerationParams{Temperature: 0.2, MaxOutputTokens: 65}, "p"))
	assert.NotEqual(t, base, completionCacheKey("m", GenerationParams{Temperature: 0.2, MaxOutputTokens: 64}, "q"))
}

func TestWithCache_NilCacheIsPassthrough(t *testing.T) {
	stub := &stubClient{model: "m"}
	assert.Same(t, Client(stub), WithCache(stub, nil, GenerationParams{}))
}

func TestWithRateLimit(t *testing.T) {
	stub := &stubClient{model: "m", completion: &Completion{Content: "ok"}}
	assert.Same(t, Client(stub), WithRateLimit(stub, 0, 1))

	limited := WithRateLimit(stub, 1, 1)
	_, err := limited.Generate(context.Background(), "p")
	require.NoError(t, err)

	// The single token is spent; a canceled context must not wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Generate(ctx, "p")
	assert.Error(t, err)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestInstrument_PassesThrough(t *testing.T) {
	stub := &stubClient{model: "m", completion: &Completion{Content: "ok"}}
	c := Instrument(stub, ProviderGemini)
	assert.Equal(t, "m", c.Model())

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text())

	stub.err = errors.New("status 429")
	_, err = c.Generate(context.Background(), "p")
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNoCandidates, "no_candidates"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("gemini: API returned status 401: nope"), "auth"},
		{errors.New("openai: API returned status 429: slow"), "rate_limit"},
		{errors.New("gemini: API returned status 503: down"), "server"},
		{errors.New("something odd"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyError(tt.err), "err=%v", tt.err)
	}
}
