// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/llm"
)

const (
	noContextMarker    = "(no context retrieved)"
	chartInstruction   = "A chart has been prepared; mention it briefly."
	lengthInstruction  = "Answer in 1-3 sentences."
	noAnswerPrefix     = "No answer found for: "
	notConfiguredNote  = "Language model not configured, using fallback answer."
	emptyCompletionFmt = "Language model %s returned empty text, using fallback answer."
)

const finalPromptTemplate = `You are a concise operations assistant.
Question: {{.query}}
{{- if .chart}}
{{.chart_instruction}}
{{- end}}
Context:
{{.context}}
{{.length_instruction}}`

// Finalizer writes the final answer.
//
// Description:
//
//	When a language model is configured it is asked once with the query,
//	the stitched context and, if present, a note about the chart. Any
//	failure or empty completion falls back to a deterministic answer:
//	the existing answer, else the stitched context, else
//	"No answer found for: <query>".
//
// Thread Safety: Safe for concurrent use if the model client is.
type Finalizer struct {
	model  llm.Client
	prompt prompts.PromptTemplate
	logger *slog.Logger
}

// NewFinalizer creates a Finalizer. A nil model means "not configured".
func NewFinalizer(model llm.Client, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{
		model: model,
		prompt: prompts.NewPromptTemplate(finalPromptTemplate,
			[]string{"query", "chart", "chart_instruction", "context", "length_instruction"}),
		logger: logger,
	}
}

// StitchedContext renders one "- <answer>" line per reference.
func StitchedContext(refs []datatypes.Reference) string {
	lines := make([]string, len(refs))
	for i, ref := range refs {
		lines[i] = "- " + ref.Answer
	}
	return strings.Join(lines, "\n")
}

// FallbackAnswer is the answer used when no model text is available.
func FallbackAnswer(s *State) string {
	if answer := strings.TrimSpace(s.AnswerText()); answer != "" {
		return s.AnswerText()
	}
	if stitched := StitchedContext(s.References); stitched != "" {
		return stitched
	}
	return noAnswerPrefix + s.Query
}

// BuildPrompt renders the prompt sent to the language model.
func (f *Finalizer) BuildPrompt(s *State) (string, error) {
	contextText := StitchedContext(s.References)
	if contextText == "" {
		contextText = noContextMarker
	}
	return f.prompt.Format(map[string]any{
		"query":              s.Query,
		"chart":              s.ChartConfig != nil,
		"chart_instruction":  chartInstruction,
		"context":            contextText,
		"length_instruction": lengthInstruction,
	})
}

// Finalize returns the update that sets the final answer.
func (f *Finalizer) Finalize(ctx context.Context, s *State) Update {
	ctx, span := tracer.Start(ctx, "pipeline.Finalize")
	defer span.End()

	if f.model == nil {
		finalizerOutcomes.WithLabelValues("fallback_unconfigured").Inc()
		span.SetAttributes(attribute.String("source", "fallback_unconfigured"))
		return Update{Answer: stringPtr(FallbackAnswer(s)), Notes: note(notConfiguredNote)}
	}

	model := f.model.Model()
	span.SetAttributes(attribute.String("model", model))

	prompt, err := f.BuildPrompt(s)
	if err != nil {
		return f.failed(span, s, fmt.Errorf("render prompt: %w", err))
	}

	completion, err := f.model.Generate(ctx, prompt)
	if err != nil {
		return f.failed(span, s, err)
	}

	text := completion.Text()
	if text == "" {
		finalizerOutcomes.WithLabelValues("fallback_empty").Inc()
		span.SetAttributes(attribute.String("source", "fallback_empty"))
		f.logger.Warn("language model returned empty text", slog.String("model", model))
		return Update{
			Answer: stringPtr(FallbackAnswer(s)),
			Notes:  note(fmt.Sprintf(emptyCompletionFmt, model)),
		}
	}

	finalizerOutcomes.WithLabelValues("model").Inc()
	span.SetAttributes(attribute.String("source", "model"))
	return Update{
		Answer: stringPtr(text),
		Notes:  note(fmt.Sprintf("Final answer generated by %s.", model)),
	}
}

func (f *Finalizer) failed(span trace.Span, s *State, err error) Update {
	reason := llm.SafeLogString(err.Error())
	finalizerOutcomes.WithLabelValues("fallback_error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "language model failed")
	f.logger.Warn("language model failed, using fallback answer",
		slog.String("model", f.model.Model()),
		slog.String("error", reason))
	return Update{
		Answer: stringPtr(FallbackAnswer(s)),
		Notes:  note("Language model failed, using fallback answer: " + reason),
	}
}
