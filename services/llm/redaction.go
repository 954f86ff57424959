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
	"regexp"
)

// secretRule replaces one class of secret with a labeled placeholder.
type secretRule struct {
	re    *regexp.Regexp
	label string
}

// secretRules run in order. Anthropic keys also start with "sk-", so they
// must be matched before the OpenAI rule.
var secretRules = []secretRule{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9]+-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{10,}=*`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`(?i)(x-goog-api-key|x-api-key|x-weaviate-api-key)(["']?\s*[:=]\s*["']?)[^\s"',}]+`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`), "key=[REDACTED]"},
}

// SafeLogString strips known secret formats from s.
//
// Description:
//
//	Used on every provider error before it reaches a log line or a
//	pipeline note. Matching is pattern based, so keys in unknown formats
//	pass through untouched; do not rely on it as the only line of defense.
//
// Examples:
//
//	SafeLogString("401 for sk-ant-REDACTED")
//	// "401 for [REDACTED:anthropic_key]"
//
// Thread Safety: Safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, r := range secretRules {
		s = r.re.ReplaceAllString(s, r.label)
	}
	return s
}
