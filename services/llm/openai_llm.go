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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client on top of the go-openai SDK.
//
// Description:
//
//	A fresh SDK client is built per call so the API key only leaves its
//	enclave for the lifetime of one request.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
	params     GenerationParams
	logger     *slog.Logger
}

// NewOpenAIClient creates an OpenAIClient.
//
// Inputs:
//   - apiKey: Sealed OpenAI API key. Must not be nil.
//   - model: Chat model name (e.g., "gpt-4o-mini").
//   - baseURL: API root including /v1. Empty uses the SDK default.
//   - params: Sampling settings sent with every request.
//   - timeout: HTTP timeout. Zero means 120s.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: ErrMissingAPIKey when apiKey is nil.
func NewOpenAIClient(apiKey *memguard.Enclave, model, baseURL string, params GenerationParams, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == nil {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		params:     params,
		logger:     slog.Default(),
	}, nil
}

// Model implements Client.
func (o *OpenAIClient) Model() string { return o.model }

// Generate implements Client with a single-turn chat completion.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.params.Temperature,
		MaxTokens:   o.params.MaxOutputTokens,
	}

	o.logger.Debug("Sending request to OpenAI",
		slog.String("model", o.model),
		slog.Int("prompt_len", len(prompt)),
	)

	var resp openai.ChatCompletionResponse
	err := withAPIKey(o.apiKey, func(key string) error {
		cfg := openai.DefaultConfig(key)
		if o.baseURL != "" {
			cfg.BaseURL = o.baseURL
		}
		cfg.HTTPClient = o.httpClient

		var err error
		resp, err = openai.NewClientWithConfig(cfg).CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: API returned status %d: %s", apiErr.HTTPStatusCode, SafeLogString(apiErr.Message))
		}
		return nil, fmt.Errorf("openai: request failed: %s", SafeLogString(err.Error()))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrNoCandidates)
	}

	choice := resp.Choices[0]
	o.logger.Debug("Received OpenAI response",
		slog.String("model", o.model),
		slog.Int("response_len", len(choice.Message.Content)),
		slog.String("finish_reason", string(choice.FinishReason)),
	)

	completion := &Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	// Some compatible servers return content as typed parts instead.
	for _, part := range choice.Message.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
			completion.Parts = append(completion.Parts, part.Text)
		}
	}
	return completion, nil
}
