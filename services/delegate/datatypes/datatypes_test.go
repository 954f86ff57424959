// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"testing"
)

func TestNewQueryContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		tenant     string
		wantQuery  string
		wantTenant string
		wantErr    error
	}{
		{"explicit tenant", "what is the kb", "tenant-b", "what is the kb", "tenant-b", nil},
		{"default tenant", "hello", "", "hello", DefaultTenant, nil},
		{"trims both", "  hello  ", "  tenant-b ", "hello", "tenant-b", nil},
		{"blank query", "   ", "tenant-a", "", "", ErrEmptyQuery},
		{"empty query", "", "", "", "", ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qc, err := NewQueryContext(tt.query, tt.tenant)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if qc.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", qc.Query, tt.wantQuery)
			}
			if qc.Tenant != tt.wantTenant {
				t.Errorf("Tenant = %q, want %q", qc.Tenant, tt.wantTenant)
			}
		})
	}
}

func TestChartConfig_DatasetLabel(t *testing.T) {
	var nilChart *ChartConfig
	if got := nilChart.DatasetLabel(); got != "" {
		t.Errorf("nil chart label = %q, want empty", got)
	}

	c := &ChartConfig{Data: ChartData{Datasets: []ChartDataset{{Label: "series"}}}}
	if got := c.DatasetLabel(); got != "series" {
		t.Errorf("label = %q, want %q", got, "series")
	}
}
