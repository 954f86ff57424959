// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge stores and retrieves tenant-scoped question/answer
// records in Weaviate.
//
// Features:
//   - Resilient client with retry, exponential backoff and a circuit breaker
//   - Idempotent schema and tenant provisioning for the QAItem class
//   - Two retrieval tiers: a filtered question search and an unfiltered fetch
//   - Deterministic object ids so re-seeding overwrites instead of duplicating
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnavailable is returned when Weaviate reports it is not ready.
	ErrUnavailable = errors.New("knowledge: weaviate is not available")

	// ErrCircuitOpen is returned while the circuit breaker blocks requests.
	ErrCircuitOpen = errors.New("knowledge: circuit breaker is open, weaviate requests blocked")

	// ErrConnectionTimeout is returned when a request times out.
	ErrConnectionTimeout = errors.New("knowledge: weaviate connection timeout")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("knowledge: client is closed")
)

var tracer = otel.Tracer("aleutian.delegate.knowledge")

// ConnectionState is the circuit state of the client.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates recent failures below the circuit threshold.
	StateDegraded
	// StateCircuitOpen indicates requests are blocked until the cooldown ends.
	StateCircuitOpen
	// StateHalfOpen indicates a single probe request is allowed through.
	StateHalfOpen
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ClientConfig configures the resilient Weaviate client.
type ClientConfig struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// Timeout bounds each HTTP request. Default: 10s
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Default: 2. Use a negative value to disable retries.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries. Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 2s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0). Default: 0.25
	RetryJitter float64

	// CircuitThreshold is the number of failures inside CircuitWindow
	// that opens the circuit. Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures. Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open. Default: 30s
	CircuitCooldown time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultClientConfig returns the defaults used by the delegate binaries.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:          10 * time.Second,
		RetryAttempts:    2,
		RetryBackoff:     100 * time.Millisecond,
		MaxRetryBackoff:  2 * time.Second,
		RetryJitter:      0.25,
		CircuitThreshold: 5,
		CircuitWindow:    30 * time.Second,
		CircuitCooldown:  30 * time.Second,
		Logger:           slog.Default(),
	}
}

func (c *ClientConfig) applyDefaults() {
	d := DefaultClientConfig()
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = d.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = d.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = d.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = d.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = d.CircuitCooldown
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
}

func (c *ClientConfig) validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	return nil
}

// splitURL turns "https://host:port/" into the scheme and host pair the
// Weaviate client expects. A bare "host:port" is treated as http.
func splitURL(raw string) (scheme, host string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return "", "", fmt.Errorf("parse weaviate url %q: %w", raw, err)
		}
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("weaviate url %q has no host", raw)
	}
	scheme = u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme, u.Host, nil
}

// ResilientClient wraps the Weaviate client with retry and a circuit
// breaker.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type ResilientClient struct {
	client *weaviate.Client
	config ClientConfig
	logger *slog.Logger

	state           atomic.Int32
	circuitOpenTime atomic.Int64 // UnixNano when the circuit opened
	closed          atomic.Bool

	// Ring buffer of failure timestamps.
	failures   []time.Time
	failureIdx int
	failureMu  sync.Mutex

	halfOpenTest atomic.Bool
}

// NewResilientClient creates a client for config.URL.
//
// Description:
//
//	No request is made here; the first Execute or Ready call is the first
//	contact with the server. The client starts in StateConnected.
//
// Inputs:
//   - config: Client configuration. URL is required; zero values take
//     defaults.
//
// Outputs:
//   - *ResilientClient: Ready-to-use client.
//   - error: Non-nil if the configuration is invalid.
func NewResilientClient(config ClientConfig) (*ResilientClient, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("knowledge: invalid config: %w", err)
	}

	scheme, host, err := splitURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:             host,
		Scheme:           scheme,
		ConnectionClient: &http.Client{Timeout: config.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: create weaviate client: %w", err)
	}

	rc := &ResilientClient{
		client:   client,
		config:   config,
		logger:   config.Logger.With(slog.String("component", "knowledge_client")),
		failures: make([]time.Time, config.CircuitThreshold),
	}
	rc.state.Store(int32(StateConnected))
	rc.logger.Debug("weaviate client initialized",
		slog.String("scheme", scheme),
		slog.String("host", host))
	return rc, nil
}

// Client returns the underlying Weaviate client.
func (c *ResilientClient) Client() *weaviate.Client {
	return c.client
}

// GetState returns the current connection state.
func (c *ResilientClient) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Execute runs fn with retry and circuit breaker protection.
//
// Description:
//
//	Transient faults (timeouts, connection errors, 5xx responses) are
//	retried with exponential backoff and jitter. Every exhausted call
//	counts toward the circuit threshold. While the circuit is open calls
//	fail fast with ErrCircuitOpen; after the cooldown one probe is let
//	through and its outcome closes or re-opens the circuit.
//
// Inputs:
//   - ctx: Context for cancellation. It is handed to fn.
//   - op: Operation name recorded on the span.
//   - fn: The Weaviate operation.
//
// Outputs:
//   - error: Nil on success; otherwise the wrapped last error.
//
// Thread Safety: Safe for concurrent use.
func (c *ResilientClient) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := tracer.Start(ctx, "knowledge.Execute",
		trace.WithAttributes(
			attribute.String("op", op),
			attribute.String("state", c.GetState().String()),
		),
	)
	defer span.End()

	switch c.GetState() {
	case StateCircuitOpen:
		if !c.shouldTryHalfOpen() {
			span.SetStatus(codes.Error, "circuit open")
			return ErrCircuitOpen
		}
		c.transitionState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if !c.halfOpenTest.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "circuit open (half-open busy)")
			return ErrCircuitOpen
		}
		defer c.halfOpenTest.Store(false)
	}

	var lastErr error
attempts:
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break attempts
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			c.recordSuccess()
			span.SetStatus(codes.Ok, "success")
			return nil
		}
		if !isRetryable(lastErr) {
			break
		}
	}

	// Only transport faults and 5xx responses count against the circuit.
	// A 4xx or GraphQL-level error is an answer from a healthy server.
	switch {
	case errors.Is(lastErr, context.Canceled):
	case isRetryable(lastErr):
		c.recordFailure()
	default:
		c.recordSuccess()
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, op+" failed")
	return wrapWeaviateError(lastErr)
}

// Ready asks Weaviate whether it is ready to serve requests. It bypasses
// the circuit breaker so readiness probes keep reporting the real state.
func (c *ResilientClient) Ready(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	ctx, span := tracer.Start(ctx, "knowledge.Ready")
	defer span.End()

	ready, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ready check failed")
		return wrapWeaviateError(err)
	}
	if !ready {
		span.SetStatus(codes.Error, "not ready")
		return ErrUnavailable
	}
	return nil
}

// Close marks the client closed. Safe to call more than once.
func (c *ResilientClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Debug("closing weaviate client")
	return nil
}

func (c *ResilientClient) transitionState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	c.logger.Info("weaviate state transition",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()))
}

func (c *ResilientClient) recordSuccess() {
	switch c.GetState() {
	case StateHalfOpen, StateDegraded:
		c.resetFailures()
		c.transitionState(StateConnected)
	}
}

func (c *ResilientClient) recordFailure() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()

	now := time.Now()
	c.failures[c.failureIdx] = now
	c.failureIdx = (c.failureIdx + 1) % len(c.failures)

	windowStart := now.Add(-c.config.CircuitWindow)
	count := 0
	for _, t := range c.failures {
		if !t.IsZero() && t.After(windowStart) {
			count++
		}
	}

	// A failed half-open probe re-opens immediately.
	if count >= c.config.CircuitThreshold || c.GetState() == StateHalfOpen {
		c.circuitOpenTime.Store(now.UnixNano())
		if c.GetState() != StateCircuitOpen {
			c.transitionState(StateCircuitOpen)
			c.logger.Warn("circuit breaker opened",
				slog.Int("failures", count),
				slog.Duration("window", c.config.CircuitWindow))
		}
		return
	}
	if c.GetState() == StateConnected {
		c.transitionState(StateDegraded)
	}
}

func (c *ResilientClient) resetFailures() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureIdx = 0
}

func (c *ResilientClient) shouldTryHalfOpen() bool {
	openTime := time.Unix(0, c.circuitOpenTime.Load())
	return time.Since(openTime) >= c.config.CircuitCooldown
}

// calculateBackoff returns base * 2^(attempt-1), capped, with jitter.
func (c *ResilientClient) calculateBackoff(attempt int) time.Duration {
	backoff := c.config.RetryBackoff * time.Duration(1<<(attempt-1))
	if backoff > c.config.MaxRetryBackoff {
		backoff = c.config.MaxRetryBackoff
	}

	jitterRange := float64(backoff) * c.config.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = c.config.RetryBackoff
	}
	return backoff
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// net.OpError implements net.Error, so check it first.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) {
		if clientErr.StatusCode >= http.StatusInternalServerError {
			return true
		}
		if clientErr.DerivedFromError != nil {
			return isRetryable(clientErr.DerivedFromError)
		}
	}
	return false
}

func wrapWeaviateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	return fmt.Errorf("knowledge: weaviate error: %w", err)
}
