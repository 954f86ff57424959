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
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/llm"
)

// fakeKnowledge returns canned rows and counts calls per tier.
type fakeKnowledge struct {
	mu sync.Mutex

	searchRows []datatypes.Reference
	searchErr  error
	fetchRows  []datatypes.Reference
	fetchErr   error

	searchCalls  int
	fetchCalls   int
	lastFragment string
	lastTenant   string
	lastLimit    int
}

func (f *fakeKnowledge) SearchQuestions(_ context.Context, tenant, fragment string, limit int) ([]datatypes.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastFragment = fragment
	f.lastTenant = tenant
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRows, nil
}

func (f *fakeKnowledge) FetchAny(_ context.Context, tenant string, limit int) ([]datatypes.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.lastTenant = tenant
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchRows, nil
}

// failingCharts always fails.
type failingCharts struct{ err error }

func (f failingCharts) Build(context.Context, string) (*datatypes.ChartConfig, error) {
	return nil, f.err
}

// stubModel is a scripted language model.
type stubModel struct {
	model      string
	completion *llm.Completion
	err        error
	calls      atomic.Int32
	lastPrompt atomic.Value
}

func (s *stubModel) Model() string { return s.model }

func (s *stubModel) Generate(_ context.Context, prompt string) (*llm.Completion, error) {
	s.calls.Add(1)
	s.lastPrompt.Store(prompt)
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func (s *stubModel) prompt() string {
	p, _ := s.lastPrompt.Load().(string)
	return p
}

var (
	checklistRef = datatypes.Reference{
		SourceID: "quality-checklist",
		Question: "What are the three-point inspection checks for packaging?",
		Answer:   "Check barcode readability, seal integrity, and weight tolerance before palletizing.",
	}
	trainingRef = datatypes.Reference{
		SourceID: "training-plan",
		Question: "How long is the onboarding for a new operator?",
		Answer:   "A two-week plan with shadowing, supervised operation, and a final check ride.",
	}
	safetyRef = datatypes.Reference{
		SourceID: "safety-manual",
		Question: "How do I restart the conveyor after an emergency stop?",
		Answer:   "Verify the stop cause is cleared, inspect the belt, then press reset and start in that order.",
	}
)
