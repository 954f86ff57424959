// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chart builds the mocked Chart.js payload attached to chart routes.
package chart

import (
	"context"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

const (
	// MaxLabelLength is the longest query fragment embedded in a label.
	MaxLabelLength = 40

	labelEllipsis = "..."
	labelPrefix   = "Mocked chart for: "
	chartTitle    = "Chart.js tool (mocked)"
)

var (
	weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}
	weekdayValues = []float64{12, 19, 8, 15, 10}

	// indigo, emerald, amber
	fillColors   = []string{"rgba(99, 102, 241, 0.5)", "rgba(16, 185, 129, 0.5)", "rgba(245, 158, 11, 0.5)"}
	borderColors = []string{"rgba(99, 102, 241, 1)", "rgba(16, 185, 129, 1)", "rgba(245, 158, 11, 1)"}
)

// Build returns the chart payload for a query.
//
// Description:
//
//	Produces a fixed weekday bar chart whose single dataset is labeled with
//	the clamped query text. The result depends only on the query; calling
//	Build twice with the same text yields equal payloads that share no
//	slices.
//
// Thread Safety: Safe for concurrent use.
func Build(query string) *datatypes.ChartConfig {
	return &datatypes.ChartConfig{
		Type: "bar",
		Data: datatypes.ChartData{
			Labels: clone(weekdayLabels),
			Datasets: []datatypes.ChartDataset{{
				Label:           labelPrefix + ClampLabel(query),
				Data:            append([]float64(nil), weekdayValues...),
				BackgroundColor: clone(fillColors),
				BorderColor:     clone(borderColors),
				BorderWidth:     1,
			}},
		},
		Options: datatypes.ChartOptions{
			Responsive: true,
			Plugins: datatypes.ChartPlugins{
				Legend: datatypes.ChartLegend{Position: "top"},
				Title:  datatypes.ChartTitle{Display: true, Text: chartTitle},
			},
		},
	}
}

// ClampLabel bounds s to MaxLabelLength runes.
//
// Longer strings keep their first MaxLabelLength-3 runes followed by "...".
func ClampLabel(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxLabelLength {
		return s
	}
	return string(runes[:MaxLabelLength-len(labelEllipsis)]) + labelEllipsis
}

// Builder adapts Build to the pipeline's chart collaborator contract.
type Builder struct{}

// Build never fails; the error return exists for builders that do I/O.
func (Builder) Build(_ context.Context, query string) (*datatypes.ChartConfig, error) {
	return Build(query), nil
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
