// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// TenantRows groups seed rows under one tenant.
type TenantRows struct {
	Tenant string
	Rows   []datatypes.Reference
}

// SeededRow is one row written by Seed.
type SeededRow struct {
	Tenant string
	ID     strfmt.UUID
	datatypes.Reference
}

// SeedData is the sample knowledge used by the demo.
var SeedData = []TenantRows{
	{
		Tenant: datatypes.DefaultTenant,
		Rows: []datatypes.Reference{
			{
				SourceID: "safety-manual",
				Question: "How do I restart the conveyor after an emergency stop?",
				Answer:   "Verify the stop cause is cleared, inspect the belt, then press reset and start in that order.",
			},
			{
				SourceID: "quality-checklist",
				Question: "What are the three-point inspection checks for packaging?",
				Answer:   "Check barcode readability, seal integrity, and weight tolerance before palletizing.",
			},
			{
				SourceID: "shift-handover",
				Question: "What should the shift lead include in the handover note?",
				Answer:   "Include machine status, outstanding work orders, and any safety observations.",
			},
		},
	},
	{
		Tenant: "tenant-b",
		Rows: []datatypes.Reference{
			{
				SourceID: "analytics-deck",
				Question: "Which KPI tracks rework over time?",
				Answer:   "The rework rate KPI measures reprocessed units divided by total output.",
			},
			{
				SourceID: "training-plan",
				Question: "How long is the onboarding for a new operator?",
				Answer:   "A two-week plan with shadowing, supervised operation, and a final check ride.",
			},
		},
	},
}

// Seed provisions the schema and tenants, then inserts data.
//
// Description:
//
//	Safe to run repeatedly: the schema and tenants are only created when
//	missing and rows are stored under deterministic ids.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - store: Target store.
//   - data: Rows to insert, usually SeedData.
//
// Outputs:
//   - []SeededRow: Every row written, in input order.
//   - error: The first failure; rows before it remain stored.
func Seed(ctx context.Context, store *Store, data []TenantRows) ([]SeededRow, error) {
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	tenants := make([]string, 0, len(data))
	for _, group := range data {
		tenants = append(tenants, group.Tenant)
	}
	if _, err := store.EnsureTenants(ctx, tenants); err != nil {
		return nil, err
	}

	var seeded []SeededRow
	for _, group := range data {
		for _, row := range group.Rows {
			id, err := store.Insert(ctx, group.Tenant, row)
			if err != nil {
				return seeded, fmt.Errorf("knowledge: seed: %w", err)
			}
			seeded = append(seeded, SeededRow{Tenant: group.Tenant, ID: id, Reference: row})
		}
	}
	store.logger.Info("seeded knowledge store",
		"tenants", len(data),
		"rows", len(seeded))
	return seeded, nil
}
