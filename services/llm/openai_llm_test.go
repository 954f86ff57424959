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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, url string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(testKey("sk-test"), "gpt-4o-mini", url,
		GenerationParams{Temperature: 0.4, MaxOutputTokens: 256}, 0)
	require.NoError(t, err)
	return client
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.EqualValues(t, 256, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Barcode, seal, weight."}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	completion, err := newTestOpenAI(t, server.URL).Generate(context.Background(), "checks?")
	require.NoError(t, err)
	assert.Equal(t, "Barcode, seal, weight.", completion.Text())
	assert.Equal(t, "stop", completion.FinishReason)
}

func TestOpenAIClient_Generate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	_, err := newTestOpenAI(t, server.URL).Generate(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrNoCandidates), "err = %v", err)
}

func TestOpenAIClient_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided: sk-abcdefghijklmnopqrstuvwxyz123456", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestOpenAI(t, server.URL).Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.NotContains(t, err.Error(), "sk-abcdefghijklmnopqrstuvwxyz123456")
}

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient(nil, "gpt-4o-mini", "", GenerationParams{}, 0)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
