// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chart

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"short", "weekly throughput", "weekly throughput"},
		{"exactly forty", strings.Repeat("a", 40), strings.Repeat("a", 40)},
		{"forty one", strings.Repeat("a", 41), strings.Repeat("a", 37) + "..."},
		{"scenario query", "Create a chart of weekly throughput for the line.", "Create a chart of weekly throughput f..."},
		{"multibyte", strings.Repeat("é", 45), strings.Repeat("é", 37) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampLabel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxLabelLength)
		})
	}
}

func TestBuild_Shape(t *testing.T) {
	cfg := Build("Create a chart of weekly throughput for the line.")

	assert.Equal(t, "bar", cfg.Type)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri"}, cfg.Data.Labels)
	require.Len(t, cfg.Data.Datasets, 1)

	ds := cfg.Data.Datasets[0]
	assert.Equal(t, "Mocked chart for: Create a chart of weekly throughput f...", ds.Label)
	assert.Equal(t, []float64{12, 19, 8, 15, 10}, ds.Data)
	assert.Len(t, ds.BackgroundColor, 3)
	assert.Len(t, ds.BorderColor, 3)
	assert.Equal(t, 1, ds.BorderWidth)

	assert.True(t, cfg.Options.Responsive)
	assert.Equal(t, "top", cfg.Options.Plugins.Legend.Position)
	assert.True(t, cfg.Options.Plugins.Title.Display)
	assert.Equal(t, "Chart.js tool (mocked)", cfg.Options.Plugins.Title.Text)
}

func TestBuild_Deterministic(t *testing.T) {
	a := Build("plot the weekly numbers")
	b := Build("plot the weekly numbers")
	assert.Equal(t, a, b)

	// Mutating one payload must not leak into the next.
	a.Data.Labels[0] = "Sun"
	a.Data.Datasets[0].Data[0] = 99
	c := Build("plot the weekly numbers")
	assert.Equal(t, "Mon", c.Data.Labels[0])
	assert.Equal(t, float64(12), c.Data.Datasets[0].Data[0])
}

func TestBuild_JSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(Build("graph it"))
	require.NoError(t, err)

	s := string(raw)
	for _, field := range []string{`"type":"bar"`, `"labels"`, `"datasets"`, `"backgroundColor"`, `"borderWidth":1`, `"responsive":true`, `"position":"top"`} {
		assert.Contains(t, s, field)
	}
}

func TestBuilder_NeverFails(t *testing.T) {
	cfg, err := Builder{}.Build(context.Background(), "visualize")
	require.NoError(t, err)
	assert.Equal(t, "Mocked chart for: visualize", cfg.DatasetLabel())
}
