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
	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// State is the accumulated result of one pipeline run.
//
// Description:
//
//	Query and Tenant are set once at start. Every other field changes only
//	through Apply, which enforces the per-field merge rules:
//
//	  Answer        last writer wins; an absent update leaves it
//	  References    concatenation
//	  KnownFileIDs  set union, first-seen order kept
//	  ChartConfig   last writer wins
//	  Notes         append
//
// Thread Safety: Not safe for concurrent use. Branches return Updates
// and the pipeline applies them from one goroutine.
type State struct {
	Query        string                 `json:"query"`
	Tenant       string                 `json:"tenant"`
	Answer       *string                `json:"answer,omitempty"`
	References   []datatypes.Reference  `json:"references"`
	KnownFileIDs []string               `json:"knownFileIds"`
	ChartConfig  *datatypes.ChartConfig `json:"chartConfig,omitempty"`
	Notes        []string               `json:"notes"`
}

// NewState returns the initial state for qc.
func NewState(qc datatypes.QueryContext) *State {
	return &State{
		Query:        qc.Query,
		Tenant:       qc.Tenant,
		References:   []datatypes.Reference{},
		KnownFileIDs: []string{},
		Notes:        []string{},
	}
}

// AnswerText returns the answer, or "" when none is set.
func (s *State) AnswerText() string {
	if s.Answer == nil {
		return ""
	}
	return *s.Answer
}

// HasAnswer reports whether an answer has been written.
func (s *State) HasAnswer() bool {
	return s.Answer != nil
}

// Update is a partial state produced by one step. Zero fields mean
// "no change".
type Update struct {
	Answer       *string
	References   []datatypes.Reference
	KnownFileIDs []string
	ChartConfig  *datatypes.ChartConfig
	Notes        []string
}

// Apply folds u into s.
func (s *State) Apply(u Update) {
	if u.Answer != nil {
		answer := *u.Answer
		s.Answer = &answer
	}
	s.References = append(s.References, u.References...)
	s.KnownFileIDs = union(s.KnownFileIDs, u.KnownFileIDs)
	if u.ChartConfig != nil {
		s.ChartConfig = u.ChartConfig
	}
	s.Notes = append(s.Notes, u.Notes...)
}

// Combine folds a then b into one Update using the same rules as Apply.
// Applying Combine(a, b) equals applying a and then b.
func Combine(a, b Update) Update {
	out := Update{
		Answer:      a.Answer,
		ChartConfig: a.ChartConfig,
	}
	if b.Answer != nil {
		out.Answer = b.Answer
	}
	if b.ChartConfig != nil {
		out.ChartConfig = b.ChartConfig
	}
	out.References = append(append([]datatypes.Reference(nil), a.References...), b.References...)
	out.KnownFileIDs = union(union(nil, a.KnownFileIDs), b.KnownFileIDs)
	out.Notes = append(append([]string(nil), a.Notes...), b.Notes...)
	return out
}

// union appends the members of add that dst lacks, keeping first-seen order.
func union(dst, add []string) []string {
	if len(add) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(add))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range add {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

func note(s string) []string { return []string{s} }

func stringPtr(s string) *string { return &s }
