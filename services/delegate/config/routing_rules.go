// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Routing Rules
// =============================================================================

//go:embed routing_rules.yaml
var defaultRoutingRulesYAML []byte

// MaxYAMLFileSize bounds every YAML document this package will parse.
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("aleutian.delegate.config")

// RoutingRules holds the vocabularies the router classifies queries with.
//
// Description:
//
//	ChartPatterns are matched as case-insensitive substrings.
//	RetrievalWords are matched as case-insensitive whole words.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RoutingRules struct {
	// ChartPatterns signal that the caller wants a chart.
	ChartPatterns []string `yaml:"chart_patterns"`

	// RetrievalWords signal a document lookup or a question.
	RetrievalWords []string `yaml:"retrieval_words"`
}

// =============================================================================
// Singleton Routing Rules
// =============================================================================

var (
	routingRulesMu      sync.RWMutex
	routingRulesOnce    sync.Once
	cachedRoutingRules  *RoutingRules
	routingRulesLoadErr error
)

// GetRoutingRules returns the embedded routing rules, loading them once.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*RoutingRules - The loaded rules. Never nil on success.
//	error - Non-nil if the embedded YAML failed to load.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetRoutingRules(ctx context.Context) (*RoutingRules, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRoutingRules: ctx must not be nil")
	}

	routingRulesMu.RLock()
	if cachedRoutingRules != nil || routingRulesLoadErr != nil {
		rules, err := cachedRoutingRules, routingRulesLoadErr
		routingRulesMu.RUnlock()
		return rules, err
	}
	routingRulesMu.RUnlock()

	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()

	routingRulesOnce.Do(func() {
		cachedRoutingRules, routingRulesLoadErr = LoadRoutingRules(ctx, defaultRoutingRulesYAML)
	})

	return cachedRoutingRules, routingRulesLoadErr
}

// ResetRoutingRules clears the cached rules so tests can reload them.
//
// Thread Safety: Safe for concurrent use.
func ResetRoutingRules() {
	routingRulesMu.Lock()
	defer routingRulesMu.Unlock()
	cachedRoutingRules = nil
	routingRulesLoadErr = nil
	routingRulesOnce = sync.Once{}
}

// LoadRoutingRules parses and validates routing rules from YAML bytes.
//
// Description:
//
//	Parses the YAML, lower-cases and trims every entry, drops duplicates
//	and validates that both vocabularies are usable.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*RoutingRules - The validated rules.
//	error - Non-nil if parsing or validation fails.
func LoadRoutingRules(ctx context.Context, data []byte) (*RoutingRules, error) {
	_, span := configTracer.Start(ctx, "config.LoadRoutingRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRoutingRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRoutingRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rules RoutingRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: parsing YAML: %w", err)
	}

	rules.ChartPatterns = normalizeVocabulary(rules.ChartPatterns)
	rules.RetrievalWords = normalizeVocabulary(rules.RetrievalWords)

	if err := validateRoutingRules(&rules); err != nil {
		return nil, fmt.Errorf("LoadRoutingRules: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("chart_patterns", len(rules.ChartPatterns)),
		attribute.Int("retrieval_words", len(rules.RetrievalWords)),
	)

	slog.Debug("routing rules loaded",
		slog.Int("chart_patterns", len(rules.ChartPatterns)),
		slog.Int("retrieval_words", len(rules.RetrievalWords)),
	)

	return &rules, nil
}

func normalizeVocabulary(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, w := range in {
		w = strings.ToLower(strings.TrimSpace(w))
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func validateRoutingRules(rules *RoutingRules) error {
	if len(rules.ChartPatterns) == 0 {
		return fmt.Errorf("chart_patterns must not be empty")
	}
	if len(rules.RetrievalWords) == 0 {
		return fmt.Errorf("retrieval_words must not be empty")
	}
	for i, p := range rules.ChartPatterns {
		if p == "" {
			return fmt.Errorf("chart_patterns[%d]: must not be blank", i)
		}
	}
	for i, w := range rules.RetrievalWords {
		if w == "" {
			return fmt.Errorf("retrieval_words[%d]: must not be blank", i)
		}
		// Whole-word matching only makes sense for single words.
		if strings.IndexFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) >= 0 {
			return fmt.Errorf("retrieval_words[%d] (%s): must be a single word", i, w)
		}
	}
	return nil
}
