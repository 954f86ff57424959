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
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

func TestRetriever_FilteredHitSkipsFallback(t *testing.T) {
	src := &fakeKnowledge{searchRows: []datatypes.Reference{checklistRef}}
	r := NewRetriever(src, 0, nil)

	res := r.Retrieve(context.Background(), "tenant-a", "What are the checks?")
	assert.Equal(t, []datatypes.Reference{checklistRef}, res.References)
	assert.Empty(t, res.Notes)
	assert.Equal(t, 1, src.searchCalls)
	assert.Equal(t, 0, src.fetchCalls)
	assert.Equal(t, DefaultRetrievalLimit, src.lastLimit)
	assert.Equal(t, "tenant-a", src.lastTenant)
}

func TestRetriever_EmptyFilteredFallsBackOnce(t *testing.T) {
	src := &fakeKnowledge{fetchRows: []datatypes.Reference{trainingRef}}
	r := NewRetriever(src, 3, nil)

	res := r.Retrieve(context.Background(), "tenant-b", "anything")
	assert.Equal(t, []datatypes.Reference{trainingRef}, res.References)
	assert.Equal(t, []string{"Used unfiltered fetch because the filtered search returned no matches."}, res.Notes)
	assert.Equal(t, 1, src.searchCalls)
	assert.Equal(t, 1, src.fetchCalls)
}

func TestRetriever_FilteredErrorFallsBackOnce(t *testing.T) {
	src := &fakeKnowledge{searchErr: errors.New("like unsupported"), fetchRows: []datatypes.Reference{safetyRef}}
	r := NewRetriever(src, 3, nil)

	res := r.Retrieve(context.Background(), "tenant-a", "q")
	assert.Equal(t, []datatypes.Reference{safetyRef}, res.References)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "Filtered search failed, falling back: like unsupported", res.Notes[0])
	assert.Equal(t, 1, src.fetchCalls)
}

func TestRetriever_BothTiersFail(t *testing.T) {
	src := &fakeKnowledge{searchErr: errors.New("down"), fetchErr: errors.New("still down")}
	r := NewRetriever(src, 3, nil)

	res := r.Retrieve(context.Background(), "tenant-a", "q")
	assert.Empty(t, res.References)
	assert.Equal(t, []string{
		"Filtered search failed, falling back: down",
		"Unfiltered fetch failed: still down",
	}, res.Notes)
	assert.Equal(t, 1, src.searchCalls)
	assert.Equal(t, 1, src.fetchCalls)
}

func TestRetriever_CapsAtLimit(t *testing.T) {
	src := &fakeKnowledge{searchRows: []datatypes.Reference{checklistRef, trainingRef, safetyRef}}
	r := NewRetriever(src, 2, nil)

	res := r.Retrieve(context.Background(), "tenant-a", "q")
	assert.Len(t, res.References, 2)
	assert.Equal(t, 2, src.lastLimit)
}

func TestQueryFragment(t *testing.T) {
	assert.Equal(t, "short", queryFragment("  short  "))

	long := strings.Repeat("é", 75)
	frag := queryFragment(long)
	assert.Equal(t, maxFragmentRunes, utf8.RuneCountInString(frag))
	assert.True(t, utf8.ValidString(frag))
}

func TestRetrievalUpdate(t *testing.T) {
	t.Run("hits overwrite answer and union ids", func(t *testing.T) {
		u := retrievalUpdate(RetrievalResult{References: []datatypes.Reference{checklistRef, trainingRef, checklistRef}}, true)
		require.NotNil(t, u.Answer)
		assert.Equal(t, "1. "+checklistRef.Answer+" 2. "+trainingRef.Answer+" 3. "+checklistRef.Answer, *u.Answer)
		assert.Equal(t, []string{"quality-checklist", "training-plan"}, u.KnownFileIDs)
		assert.Len(t, u.References, 3)
	})

	t.Run("no hits without answer", func(t *testing.T) {
		u := retrievalUpdate(RetrievalResult{Notes: []string{"n"}}, false)
		require.NotNil(t, u.Answer)
		assert.Equal(t, "No matching knowledge found.", *u.Answer)
		assert.Equal(t, []string{"n"}, u.Notes)
	})

	t.Run("no hits keeps existing answer", func(t *testing.T) {
		u := retrievalUpdate(RetrievalResult{}, true)
		assert.Nil(t, u.Answer)
	})
}
