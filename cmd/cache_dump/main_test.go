// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDelegate/services/llm"
	badgerstore "github.com/AleutianAI/AleutianDelegate/services/storage/badger"
)

func TestReadEntries(t *testing.T) {
	ctx := context.Background()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := llm.NewCompletionCache(db, time.Hour, nil)
	require.NoError(t, cache.Save(ctx, "gpt-4o-mini", llm.GenerationParams{Temperature: 0.2}, "prompt one", &llm.Completion{Content: "Seal integrity first.", FinishReason: "stop"}))
	require.NoError(t, cache.Save(ctx, "gpt-4o-mini", llm.GenerationParams{MaxOutputTokens: 512}, "prompt two", &llm.Completion{Parts: []string{"Two", "parts"}}))

	// Unrelated keys are skipped; a corrupt value under the prefix is reported.
	require.NoError(t, db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set([]byte("other/key"), []byte("x")); err != nil {
			return err
		}
		return txn.Set([]byte(llm.CompletionCacheKeyPrefix+"corrupt"), []byte("not gob"))
	}))

	entries, err := readEntries(ctx, db)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var texts []string
	var corrupt int
	for _, e := range entries {
		if e.decodeErr != nil {
			corrupt++
			assert.Equal(t, "corrupt", e.hash)
			continue
		}
		assert.True(t, e.hasExpiry)
		texts = append(texts, e.completion.Text())
	}
	assert.Equal(t, 1, corrupt)
	assert.ElementsMatch(t, []string{"Seal integrity first.", "Two parts"}, texts)

	var buf bytes.Buffer
	printEntries(&buf, entries, 80)
	out := buf.String()
	assert.Contains(t, out, "Found 3 completion cache entries")
	assert.Contains(t, out, "DECODE ERROR")
	assert.Contains(t, out, "Finish:    stop")
	assert.Contains(t, out, "Summary: 3 entries")
}

func TestPrintEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, nil, 80)
	assert.Contains(t, buf.String(), "No completion cache entries found.")
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "(empty)", previewText("  \n ", 10))
	assert.Equal(t, "a b c", previewText("a\n b\tc", 10))
	assert.Equal(t, "abc ...", previewText("abcdef", 3))
	assert.Equal(t, strings.Repeat("y", 5), previewText(strings.Repeat("y", 5), 0))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "2.0 KB (2048 bytes)", formatBytes(2048))
	assert.Equal(t, "1.0 MB (1048576 bytes)", formatBytes(1024*1024))
}
