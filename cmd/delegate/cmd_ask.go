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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		query  string
		tenant string
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Run one query and print the terminal state as JSON",
		Example: `  delegate ask --query "What are the three-point inspection checks for packaging?"
  delegate ask --query "Plot weekly scrap" --tenant tenant-b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(query) == "" {
				return newUsageError("--query is required")
			}
			qc, err := datatypes.NewQueryContext(query, tenant)
			if err != nil {
				return usageError{err: err}
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(ctx); err != nil {
					a.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
				}
			}()

			out, err := a.pipeline.Run(ctx, qc)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(opts.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Operator query (required)")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", datatypes.DefaultTenant, "Tenant whose knowledge is searched")
	return cmd
}
