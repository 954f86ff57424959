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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
)

// GeminiClient implements Client for Google Gemini models.
//
// Description:
//
//	Uses the Gemini REST API (generateContent). Each candidate part is
//	returned as a separate Completion part so callers can decide how to
//	join them.
//
// Thread Safety: GeminiClient is safe for concurrent use.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
	params     GenerationParams
	logger     *slog.Logger
}

// NewGeminiClient creates a GeminiClient with explicit configuration.
//
// Inputs:
//   - apiKey: Sealed Gemini API key. Must not be nil.
//   - model: The model name (e.g., "gemini-1.5-flash-latest").
//   - baseURL: API root, e.g. "https://generativelanguage.googleapis.com/v1beta".
//   - params: Sampling settings sent with every request.
//   - timeout: HTTP timeout. Zero means 120s.
//
// Outputs:
//   - *GeminiClient: The configured client.
//   - error: ErrMissingAPIKey when apiKey is nil.
func NewGeminiClient(apiKey *memguard.Enclave, model, baseURL string, params GenerationParams, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == nil {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		params:     params,
		logger:     slog.Default(),
	}, nil
}

// geminiRequest is the request payload for the Gemini generateContent API.
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiContent represents a content block in the Gemini API.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiGenerationConfig controls generation behavior.
type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// geminiResponse is the response from the Gemini generateContent API.
type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiError represents an API error.
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Model implements Client.
func (g *GeminiClient) Model() string { return g.model }

// Generate implements Client using the Gemini generateContent API.
//
// Description:
//
//	Sends prompt as a single user turn. A response whose parts carry no
//	text is returned as an empty Completion, not an error.
//
// Outputs:
//   - *Completion: Parts holds the first candidate's text parts.
//   - error: Non-nil on transport failure, non-200 status, API error or
//     zero candidates. Error text is redacted.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	reqPayload := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: g.buildGenConfig(),
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	g.logger.Debug("Sending request to Gemini",
		slog.String("model", g.model),
		slog.Int("prompt_len", len(prompt)),
	)

	var bodyBytes []byte
	var status int
	err = withAPIKey(g.apiKey, func(key string) error {
		httpReq.Header.Set("x-goog-api-key", key)
		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode
		bodyBytes, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: HTTP request failed: %s", SafeLogString(err.Error()))
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("gemini: API returned status %d: %s", status, SafeLogString(string(bodyBytes)))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("gemini: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("gemini: API error [%d] %s: %s",
			apiResp.Error.Code, apiResp.Error.Status, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrNoCandidates)
	}

	first := apiResp.Candidates[0]
	completion := &Completion{FinishReason: first.FinishReason}
	for _, part := range first.Content.Parts {
		if part.Text != "" {
			completion.Parts = append(completion.Parts, part.Text)
		}
	}

	g.logger.Debug("Received Gemini response",
		slog.String("model", g.model),
		slog.Int("parts", len(completion.Parts)),
		slog.String("finish_reason", first.FinishReason),
	)

	return completion, nil
}

func (g *GeminiClient) buildGenConfig() *geminiGenerationConfig {
	if g.params.Temperature == 0 && g.params.MaxOutputTokens == 0 {
		return nil
	}
	cfg := &geminiGenerationConfig{}
	if g.params.Temperature > 0 {
		temp := g.params.Temperature
		cfg.Temperature = &temp
	}
	if g.params.MaxOutputTokens > 0 {
		maxTokens := g.params.MaxOutputTokens
		cfg.MaxOutputTokens = &maxTokens
	}
	return cfg
}
