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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicClient_Generate_JoinsTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.MaxTokens != 128 {
			t.Errorf("max_tokens = %d, want 128", req.MaxTokens)
		}

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			ID: "msg_1",
			Content: []anthropicContent{
				{Type: "text", Text: "Restart after"},
				{Type: "tool_use"},
				{Type: "text", Text: "clearing the stop."},
			},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	client, err := NewAnthropicClient(testKey("test-key"), "claude-3-5-haiku-latest", server.URL+"/",
		GenerationParams{MaxOutputTokens: 128}, 0)
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	completion, err := client.Generate(context.Background(), "how do I restart?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := completion.Text(); got != "Restart after clearing the stop." {
		t.Errorf("Text() = %q", got)
	}
}

func TestAnthropicClient_Generate_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(testKey("test-key"), "claude", server.URL, GenerationParams{}, 0)
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	_, err = client.Generate(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "rate_limit_error") {
		t.Fatalf("err = %v, want rate_limit_error", err)
	}
}
