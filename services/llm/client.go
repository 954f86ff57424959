// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the optional language-model clients used to phrase
// final answers, plus the decorators (cache, throttle, instrumentation)
// wrapped around them.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/awnumar/memguard"
)

var (
	// ErrNoCandidates is returned when a provider answers with no choices.
	ErrNoCandidates = errors.New("llm: provider returned no candidates")

	// ErrMissingAPIKey is returned when a client is built without a key.
	ErrMissingAPIKey = errors.New("llm: API key is missing")
)

// Client generates text for a single prompt.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate sends prompt to the model and returns its completion.
	Generate(ctx context.Context, prompt string) (*Completion, error)

	// Model names the model that serves Generate.
	Model() string
}

// GenerationParams are the sampling settings shared by every provider.
type GenerationParams struct {
	Temperature     float32
	MaxOutputTokens int
}

// Completion is a provider response.
//
// Providers fill either Content (one text payload) or Parts (a sequence of
// text segments); Text reconciles the two shapes.
type Completion struct {
	Content      string   `json:"content,omitempty"`
	Parts        []string `json:"parts,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// Text returns the completion's text.
//
// Description:
//
//	A non-blank Content wins. Otherwise non-blank Parts are trimmed and
//	joined with a single space. A nil completion yields "".
func (c *Completion) Text() string {
	if c == nil {
		return ""
	}
	if s := strings.TrimSpace(c.Content); s != "" {
		return s
	}
	segments := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return strings.Join(segments, " ")
}

// withAPIKey opens the enclave for the duration of fn.
//
// The key string handed to fn aliases locked memory that is wiped when fn
// returns; fn must not retain it.
func withAPIKey(key *memguard.Enclave, fn func(apiKey string) error) error {
	if key == nil {
		return ErrMissingAPIKey
	}
	buf, err := key.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.String())
}
