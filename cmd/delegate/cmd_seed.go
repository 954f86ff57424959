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
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDelegate/services/knowledge"
)

// maxCellRunes bounds question and answer cells in the seed table.
const maxCellRunes = 48

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the QAItem class and tenants, then insert the sample knowledge",
		Long: `seed ensures the multi-tenant QAItem class and the tenant-a and tenant-b
tenants exist, then writes the sample rows. Object ids are derived from
tenant, sourceId and question, so running it again replaces rows instead
of duplicating them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			rows, err := knowledge.Seed(ctx, a.store, knowledge.SeedData)
			if len(rows) > 0 {
				fmt.Fprintln(opts.stdout, renderSeedTable(rows, isTerminal(opts.stdout)))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Seeded %d rows into %s.\n", len(rows), a.cfg.Weaviate.URL)
			return nil
		},
	}
}

// renderSeedTable lays out seeded rows as a bordered table.
func renderSeedTable(rows []knowledge.SeededRow, color bool) string {
	header := lipgloss.NewStyle()
	if color {
		header = header.Bold(true).Foreground(lipgloss.Color("39"))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TENANT", "SOURCE", "QUESTION", "ANSWER", "ID").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return lipgloss.NewStyle()
		})
	for _, r := range rows {
		t.Row(r.Tenant, r.SourceID, truncate(r.Question), truncate(r.Answer), string(r.ID))
	}
	return t.Render()
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellRunes {
		return s
	}
	return string(runes[:maxCellRunes-3]) + "..."
}
