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
	"strings"
	"testing"
)

func TestSafeLogString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		mustNot string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "no secrets",
			in:   "weaviate: status 503",
			want: "weaviate: status 503",
		},
		{
			name: "anthropic before openai",
			in:   "401 for sk-ant-REDACTED",
			want: "401 for [REDACTED:anthropic_key]",
		},
		{
			name: "openai",
			in:   "bad key sk-abcdefghijklmnopqrstuvwxyz123456",
			want: "bad key [REDACTED:openai_key]",
		},
		{
			name: "openai project key",
			in:   "sk-proj-abcdefghijklmnopqrstuvwx",
			want: "[REDACTED:openai_key]",
		},
		{
			name: "gemini",
			in:   "AIzaSyAbcDefGhiJklMnoPqrStUvWxYz01234567 rejected",
			want: "[REDACTED:gemini_key] rejected",
		},
		{
			name:    "bearer",
			in:      "Authorization: Bearer abcdef1234567890",
			mustNot: "abcdef1234567890",
		},
		{
			name: "header echo",
			in:   `{"x-goog-api-key": "not-a-google-format"}`,
			want: `{"x-goog-api-key": "[REDACTED]"}`,
		},
		{
			name: "short sk is not a key",
			in:   "sk-test",
			want: "sk-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeLogString(tt.in)
			if tt.mustNot != "" {
				if strings.Contains(got, tt.mustNot) {
					t.Errorf("SafeLogString(%q) = %q, still contains %q", tt.in, got, tt.mustNot)
				}
				return
			}
			if got != tt.want {
				t.Errorf("SafeLogString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
