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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
	"github.com/AleutianAI/AleutianDelegate/services/delegate/pipeline"
)

// demoQueries exercise each route once, in order: direct, retrieval,
// chart, both.
var demoQueries = []string{
	"Say hello to the operator and acknowledge the task.",
	"What are the three-point inspection checks for packaging?",
	"Create a chart of weekly throughput for the line.",
	"Create a chart and reference any onboarding documentation for new operators.",
}

// demoStyles renders demo output.
type demoStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	route lipgloss.Style
	note  lipgloss.Style
	fail  lipgloss.Style
}

func newDemoStyles(color bool) demoStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return demoStyles{title: plain, label: plain, route: plain, note: plain, fail: plain}
	}
	return demoStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		route: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		note:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		fail:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the four demo scenarios and print each terminal state",
		Args:  cobra.NoArgs,
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

			styles := newDemoStyles(isTerminal(opts.stdout))
			var failures []error
			for i, q := range demoQueries {
				qc, err := datatypes.NewQueryContext(q, tenant)
				if err != nil {
					return err
				}
				out, err := a.pipeline.Run(ctx, qc)
				writeScenario(opts.stdout, styles, i+1, q, out, err)
				if err != nil {
					failures = append(failures, fmt.Errorf("scenario %d: %w", i+1, err))
				}
			}
			return errors.Join(failures...)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", datatypes.DefaultTenant, "Tenant whose knowledge is searched")
	return cmd
}

// writeScenario prints one scenario's terminal state, or its failure.
func writeScenario(w io.Writer, s demoStyles, n int, query string, out *pipeline.Outcome, runErr error) {
	fmt.Fprintln(w, s.title.Render(fmt.Sprintf("Scenario %d: %s", n, query)))
	if runErr != nil {
		fmt.Fprintf(w, "  %s %v\n\n", s.fail.Render("FAILED"), runErr)
		return
	}

	steps := make([]string, len(out.Path))
	for i, step := range out.Path {
		steps[i] = string(step)
	}
	st := out.State

	fmt.Fprintf(w, "  %s %s\n", s.label.Render("Route: "), s.route.Render(string(out.Route)))
	fmt.Fprintf(w, "  %s %s\n", s.label.Render("Path:  "), strings.Join(steps, " -> "))
	fmt.Fprintf(w, "  %s %s\n", s.label.Render("Answer:"), st.AnswerText())
	if st.ChartConfig != nil {
		fmt.Fprintf(w, "  %s %s (%s)\n", s.label.Render("Chart: "), st.ChartConfig.DatasetLabel(), st.ChartConfig.Type)
	}
	if len(st.KnownFileIDs) > 0 {
		fmt.Fprintf(w, "  %s %s\n", s.label.Render("Files: "), strings.Join(st.KnownFileIDs, ", "))
	}
	for _, note := range st.Notes {
		fmt.Fprintf(w, "    %s\n", s.note.Render("- "+note))
	}
	fmt.Fprintln(w)
}
