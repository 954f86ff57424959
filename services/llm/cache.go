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

// =============================================================================
// Completion cache
// =============================================================================
//
// Identical prompts against the same model and sampling settings are
// answered from BadgerDB
// instead of the provider. The demo runner and repeated CLI invocations hit
// the same prompts constantly.
//
// Storage layout:
//
//	llm/completion/v2/{sha256(model, temperature, maxOutputTokens, prompt)}
//	    ->  gob(Completion), TTL: configurable
//
// Key fields are joined with "\x00".

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	badgerstore "github.com/AleutianAI/AleutianDelegate/services/storage/badger"
)

// CompletionCacheKeyPrefix is shared with cmd/cache_dump.
const CompletionCacheKeyPrefix = "llm/completion/v2/"

const completionCacheDefaultTTL = 24 * time.Hour

// ErrCacheMiss distinguishes "key not found" from a storage error.
var ErrCacheMiss = errors.New("llm: cache miss")

var completionCacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "delegate",
		Subsystem: "llm",
		Name:      "cache_lookups_total",
		Help:      "Completion cache lookups by result (hit, miss, error).",
	},
	[]string{"result"},
)

// CompletionCache persists completions keyed by model, generation
// parameters and prompt.
//
// Thread Safety: Safe for concurrent use.
type CompletionCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewCompletionCache creates a cache on an opened database.
//
// Inputs:
//   - db: Opened database. Must not be nil. The caller owns its lifecycle.
//   - ttl: Entry lifetime. 0 uses 24h.
//   - logger: May be nil.
func NewCompletionCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *CompletionCache {
	if db == nil {
		panic("NewCompletionCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = completionCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionCache{db: db, ttl: ttl, logger: logger}
}

// Load returns the cached completion, or ErrCacheMiss.
func (c *CompletionCache) Load(ctx context.Context, model string, params GenerationParams, prompt string) (*Completion, error) {
	key := completionCacheKey(model, params, prompt)
	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("completion cache load: %w", err)
	}

	var completion Completion
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&completion); err != nil {
		return nil, fmt.Errorf("completion cache decode: %w", err)
	}
	return &completion, nil
}

// Save stores completion under model, params and prompt with the cache TTL.
func (c *CompletionCache) Save(ctx context.Context, model string, params GenerationParams, prompt string, completion *Completion) error {
	if completion == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(completion); err != nil {
		return fmt.Errorf("completion cache encode: %w", err)
	}
	key := completionCacheKey(model, params, prompt)
	err := c.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(key, buf.Bytes()).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("completion cache save: %w", err)
	}
	return nil
}

func completionCacheKey(model string, params GenerationParams, prompt string) []byte {
	material := strings.Join([]string{
		model,
		strconv.FormatFloat(float64(params.Temperature), 'g', -1, 32),
		strconv.Itoa(params.MaxOutputTokens),
		prompt,
	}, "\x00")
	sum := sha256.Sum256([]byte(material))
	return []byte(CompletionCacheKeyPrefix + hex.EncodeToString(sum[:]))
}

func shortHash(key []byte) string {
	s := string(bytes.TrimPrefix(key, []byte(CompletionCacheKeyPrefix)))
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// cachingClient answers from the cache before calling the provider.
type cachingClient struct {
	inner  Client
	cache  *CompletionCache
	params GenerationParams
}

// WithCache decorates c with a completion cache. Cache faults are logged
// and bypassed; they never fail a Generate call. Empty completions are not
// cached. params must be the settings c generates with; they are part of
// the cache key.
func WithCache(c Client, cache *CompletionCache, params GenerationParams) Client {
	if cache == nil {
		return c
	}
	return &cachingClient{inner: c, cache: cache, params: params}
}

func (cc *cachingClient) Model() string { return cc.inner.Model() }

func (cc *cachingClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	model := cc.inner.Model()
	key := completionCacheKey(model, cc.params, prompt)

	cached, err := cc.cache.Load(ctx, model, cc.params, prompt)
	switch {
	case err == nil:
		completionCacheLookups.WithLabelValues("hit").Inc()
		cc.cache.logger.Debug("completion cache: hit", slog.String("hash", shortHash(key)))
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
		completionCacheLookups.WithLabelValues("miss").Inc()
	default:
		completionCacheLookups.WithLabelValues("error").Inc()
		cc.cache.logger.Warn("completion cache: load failed", slog.String("error", err.Error()))
	}

	completion, err := cc.inner.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if completion.Text() != "" {
		if err := cc.cache.Save(ctx, model, cc.params, prompt, completion); err != nil {
			cc.cache.logger.Warn("completion cache: save failed", slog.String("error", err.Error()))
		}
	}
	return completion, nil
}
