// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command delegate routes operator queries to direct, chart, retrieval or
// combined handling and prints the terminal pipeline state.
//
// Usage:
//
//	delegate ask --query "What are the checks for packaging?" [--tenant tenant-a]
//	delegate demo
//	delegate seed
//	delegate serve
//
// With a language model for final answers:
//
//	GEMINI_API_KEY=... delegate ask --query "How do I hand over a shift?"
//
// Against a non-default Weaviate:
//
//	WEAVIATE_URL=http://weaviate:8080 delegate demo
//
// Exit codes:
//
//	0 - success
//	1 - runtime failure (configuration, knowledge store, chart builder)
//	2 - usage error (missing or blank --query, bad flag)
package main

import (
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	code := execute(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	memguard.Purge()
	os.Exit(code)
}
