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
	"strings"
	"time"

	"github.com/awnumar/memguard"
)

const anthropicAPIVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason,omitempty"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient implements Client against the Anthropic Messages API.
//
// Thread Safety: AnthropicClient is safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
	params     GenerationParams
	logger     *slog.Logger
}

// NewAnthropicClient creates an AnthropicClient.
//
// baseURL is the API root (".../v1"); "/messages" is appended per call.
func NewAnthropicClient(apiKey *memguard.Enclave, model, baseURL string, params GenerationParams, timeout time.Duration) (*AnthropicClient, error) {
	if apiKey == nil {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		params:     params,
		logger:     slog.Default(),
	}, nil
}

// Model implements Client.
func (a *AnthropicClient) Model() string { return a.model }

// Generate implements Client. Every text block of the reply becomes one
// Completion part.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	reqPayload := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: a.params.MaxOutputTokens,
	}
	if reqPayload.MaxTokens <= 0 {
		reqPayload.MaxTokens = 256
	}
	if a.params.Temperature > 0 {
		temp := a.params.Temperature
		reqPayload.Temperature = &temp
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("anthropic: creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	var bodyBytes []byte
	var status int
	err = withAPIKey(a.apiKey, func(key string) error {
		req.Header.Set("x-api-key", key)
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode
		bodyBytes, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: HTTP request failed: %s", SafeLogString(err.Error()))
	}

	var apiResp anthropicResponse
	if jsonErr := json.Unmarshal(bodyBytes, &apiResp); jsonErr != nil && status == http.StatusOK {
		return nil, fmt.Errorf("anthropic: parsing response JSON: %w", jsonErr)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic: API error (%s): %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("anthropic: API returned status %d: %s", status, SafeLogString(string(bodyBytes)))
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: %w", ErrNoCandidates)
	}

	completion := &Completion{FinishReason: apiResp.StopReason}
	for _, block := range apiResp.Content {
		if block.Type == "text" && block.Text != "" {
			completion.Parts = append(completion.Parts, block.Text)
		}
	}

	a.logger.Debug("Received Anthropic response",
		slog.String("model", a.model),
		slog.Int("parts", len(completion.Parts)),
		slog.String("stop_reason", apiResp.StopReason),
	)
	return completion, nil
}
