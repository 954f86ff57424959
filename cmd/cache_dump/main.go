// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// cache_dump inspects the delegate's language model completion cache.
//
// The finalizer caches completions in BadgerDB keyed by model, generation
// parameters and prompt, so repeated demo runs and CLI invocations skip the
// provider. This tool opens the cache read-only and prints each entry: key
// hash, TTL remaining, finish reason and a preview of the cached text.
//
// Usage:
//
//	cache_dump [--path /path/to/completion/cache] [--preview 80]
//
// If --path is not given, reads DELEGATE_CACHE_DIR from the environment,
// falling back to ~/.aleutian/cache/delegate/.
//
// Exit codes:
//
//	0 - success (including an empty or missing cache)
//	1 - error opening or reading the database
package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianDelegate/services/llm"
	badgerstore "github.com/AleutianAI/AleutianDelegate/services/storage/badger"
)

// entry is one decoded cache record.
type entry struct {
	hash       string
	expiresAt  time.Time
	hasExpiry  bool
	rawSize    int
	completion *llm.Completion
	decodeErr  error
}

func main() {
	pathFlag := flag.String("path", "", "Path to the completion cache directory (overrides DELEGATE_CACHE_DIR)")
	previewFlag := flag.Int("preview", 80, "Characters of completion text to show per entry")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("DELEGATE_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".aleutian", "cache", "delegate")
	}

	fmt.Printf("Completion cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. No completions have been cached yet.")
		fmt.Println("Set DELEGATE_CACHE_DIR and a provider API key, then run 'delegate demo'.")
		os.Exit(0)
	}

	cfg := badgerstore.DefaultConfig(dbPath)
	cfg.ReadOnly = true
	cfg.GCInterval = 0
	db, err := badgerstore.Open(cfg)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	entries, err := readEntries(context.Background(), db)
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}
	printEntries(os.Stdout, entries, *previewFlag)
}

// readEntries collects every record under llm.CompletionCacheKeyPrefix.
func readEntries(ctx context.Context, db *badgerstore.DB) ([]entry, error) {
	var entries []entry
	err := db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(llm.CompletionCacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e := entry{hash: strings.TrimPrefix(string(item.Key()), llm.CompletionCacheKeyPrefix)}

			// ExpiresAt is Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			var c llm.Completion
			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&c); err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.completion = &c
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func printEntries(w io.Writer, entries []entry, preview int) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "\nNo completion cache entries found.")
		return
	}

	fmt.Fprintf(w, "\nFound %d completion cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Fprintln(w, strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Fprintf(w, "\n[%d] Key hash:  %s\n", i+1, e.hash)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Fprintf(w, "    TTL:       EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Fprintf(w, "    TTL:       %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Fprintf(w, "    TTL:       no expiry set\n")
		}

		fmt.Fprintf(w, "    Raw size:  %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Fprintf(w, "    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		finish := e.completion.FinishReason
		if finish == "" {
			finish = "(none)"
		}
		fmt.Fprintf(w, "    Finish:    %s\n", finish)
		fmt.Fprintf(w, "    Text:      %s\n", previewText(e.completion.Text(), preview))
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("─", 80))
	fmt.Fprintf(w, "Summary: %d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
}

// previewText flattens s to one line and cuts it to n runes.
func previewText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(empty)"
	}
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n]) + " ..."
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
