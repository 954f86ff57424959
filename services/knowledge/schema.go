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
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// Property names of the QAItem class.
const (
	PropSourceID = "sourceId"
	PropQuestion = "question"
	PropAnswer   = "answer"
)

// QAItemSchema returns the QAItem class definition.
//
// The class is multi-tenant and has no vectorizer; answers are plain text.
// sourceId is stored verbatim and excluded from both the searchable and
// the filterable index.
func QAItemSchema() *models.Class {
	disabled := new(bool)

	return &models.Class{
		Class:       datatypes.QAClassName,
		Description: "Simple QA store with multi-tenancy; answers are plain text (no vectorizer).",
		Vectorizer:  "none",
		MultiTenancyConfig: &models.MultiTenancyConfig{
			Enabled: true,
		},
		Properties: []*models.Property{
			{
				Name:            PropSourceID,
				DataType:        []string{"text"},
				Description:     "Identifier of the source document. Not searchable.",
				Tokenization:    "field",
				IndexFilterable: disabled,
				IndexSearchable: disabled,
			},
			{
				Name:        PropQuestion,
				DataType:    []string{"text"},
				Description: "Stored question text.",
			},
			{
				Name:        PropAnswer,
				DataType:    []string{"text"},
				Description: "Stored answer text.",
			},
		},
	}
}
