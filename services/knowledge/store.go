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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// objectNamespace seeds the UUIDv5 ids of stored QAItem objects.
var objectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://aleutian.ai/delegate/QAItem"))

// Store reads and writes QAItem rows through a ResilientClient.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	rc     *ResilientClient
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(rc *ResilientClient, logger *slog.Logger) *Store {
	if rc == nil {
		panic("NewStore: client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rc: rc, logger: logger.With(slog.String("component", "knowledge_store"))}
}

// Ready reports whether Weaviate is ready to serve requests.
func (s *Store) Ready(ctx context.Context) error {
	return s.rc.Ready(ctx)
}

// EnsureSchema creates the QAItem class when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	class := QAItemSchema()
	client := s.rc.Client()

	exists := false
	err := s.rc.Execute(ctx, "schema.get", func(ctx context.Context) error {
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if isStatus(err, http.StatusNotFound) {
			return nil
		}
		if err == nil {
			exists = true
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("knowledge: get class %s: %w", class.Class, err)
	}
	if exists {
		s.logger.Debug("schema already exists", slog.String("class", class.Class))
		return nil
	}

	s.logger.Info("schema not found, creating it", slog.String("class", class.Class))
	err = s.rc.Execute(ctx, "schema.create", func(ctx context.Context) error {
		return client.Schema().ClassCreator().WithClass(class).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("knowledge: create class %s: %w", class.Class, err)
	}
	return nil
}

// EnsureTenants creates the named tenants that do not exist yet.
//
// Outputs:
//   - []string: The tenants that were created, in input order.
//   - error: Non-nil if listing or creating tenants failed.
func (s *Store) EnsureTenants(ctx context.Context, tenants []string) ([]string, error) {
	client := s.rc.Client()

	have := make(map[string]bool)
	err := s.rc.Execute(ctx, "tenants.get", func(ctx context.Context) error {
		existing, err := client.Schema().TenantsGetter().WithClassName(datatypes.QAClassName).Do(ctx)
		if err != nil {
			return err
		}
		for _, t := range existing {
			have[t.Name] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: list tenants: %w", err)
	}

	var missing []models.Tenant
	var created []string
	for _, name := range tenants {
		if name == "" || have[name] {
			continue
		}
		have[name] = true
		missing = append(missing, models.Tenant{Name: name})
		created = append(created, name)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	err = s.rc.Execute(ctx, "tenants.create", func(ctx context.Context) error {
		return client.Schema().TenantsCreator().
			WithClassName(datatypes.QAClassName).
			WithTenants(missing...).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: create tenants %v: %w", created, err)
	}
	s.logger.Info("created tenants", slog.Any("tenants", created))
	return created, nil
}

// ObjectID returns the deterministic id under which ref is stored for
// tenant. The same tenant, sourceId and question always map to one object.
func ObjectID(tenant string, ref datatypes.Reference) strfmt.UUID {
	name := tenant + "\x00" + ref.SourceID + "\x00" + ref.Question
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(name)).String())
}

// Insert stores ref for tenant and returns its object id.
//
// Description:
//
//	The id is derived from the row content, so inserting the same row
//	twice replaces the stored object instead of duplicating it.
func (s *Store) Insert(ctx context.Context, tenant string, ref datatypes.Reference) (strfmt.UUID, error) {
	id := ObjectID(tenant, ref)
	props := map[string]interface{}{
		PropSourceID: ref.SourceID,
		PropQuestion: ref.Question,
		PropAnswer:   ref.Answer,
	}
	client := s.rc.Client()

	err := s.rc.Execute(ctx, "objects.create", func(ctx context.Context) error {
		_, err := client.Data().Creator().
			WithClassName(datatypes.QAClassName).
			WithID(id.String()).
			WithProperties(props).
			WithTenant(tenant).
			Do(ctx)
		if !isStatus(err, http.StatusUnprocessableEntity) {
			return err
		}
		// Already stored under this id: replace it.
		return client.Data().Updater().
			WithClassName(datatypes.QAClassName).
			WithID(id.String()).
			WithProperties(props).
			WithTenant(tenant).
			Do(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("knowledge: insert %s for tenant %s: %w", ref.SourceID, tenant, err)
	}
	return id, nil
}

// likeWildcards strips the Like operator's wildcards from user text.
var likeWildcards = strings.NewReplacer("*", "", "?", "")

// likePattern returns the Like pattern matching fragment as a literal
// substring. Wildcards in fragment are dropped.
func likePattern(fragment string) string {
	fragment = strings.TrimSpace(likeWildcards.Replace(fragment))
	if fragment == "" {
		return "*"
	}
	return "*" + fragment + "*"
}

// SearchQuestions returns up to limit rows of tenant whose question
// contains fragment. Like wildcards in fragment match literally nothing.
func (s *Store) SearchQuestions(ctx context.Context, tenant, fragment string, limit int) ([]datatypes.Reference, error) {
	ctx, span := tracer.Start(ctx, "knowledge.SearchQuestions",
		trace.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	where := filters.Where().
		WithPath([]string{PropQuestion}).
		WithOperator(filters.Like).
		WithValueText(likePattern(fragment))

	var refs []datatypes.Reference
	client := s.rc.Client()
	err := s.rc.Execute(ctx, "graphql.get", func(ctx context.Context) error {
		result, err := client.GraphQL().Get().
			WithClassName(datatypes.QAClassName).
			WithFields(
				graphql.Field{Name: PropSourceID},
				graphql.Field{Name: PropQuestion},
				graphql.Field{Name: PropAnswer},
			).
			WithTenant(tenant).
			WithWhere(where).
			WithLimit(limit).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		}
		refs = parseGetResult(result)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("knowledge: search questions: %w", err)
	}
	span.SetAttributes(attribute.Int("hits", len(refs)))
	return refs, nil
}

// FetchAny returns up to limit rows of tenant without filtering.
func (s *Store) FetchAny(ctx context.Context, tenant string, limit int) ([]datatypes.Reference, error) {
	ctx, span := tracer.Start(ctx, "knowledge.FetchAny",
		trace.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	var refs []datatypes.Reference
	client := s.rc.Client()
	err := s.rc.Execute(ctx, "objects.list", func(ctx context.Context) error {
		objects, err := client.Data().ObjectsGetter().
			WithClassName(datatypes.QAClassName).
			WithTenant(tenant).
			WithLimit(limit).
			Do(ctx)
		if err != nil {
			return err
		}
		refs = make([]datatypes.Reference, 0, len(objects))
		for _, obj := range objects {
			if obj == nil {
				continue
			}
			props, _ := obj.Properties.(map[string]interface{})
			refs = append(refs, toReference(props))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("knowledge: fetch objects: %w", err)
	}
	span.SetAttributes(attribute.Int("hits", len(refs)))
	return refs, nil
}

func parseGetResult(result *models.GraphQLResponse) []datatypes.Reference {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[datatypes.QAClassName].([]interface{})
	if !ok {
		return nil
	}
	refs := make([]datatypes.Reference, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		refs = append(refs, toReference(m))
	}
	return refs
}

func toReference(m map[string]interface{}) datatypes.Reference {
	ref := datatypes.Reference{
		SourceID: getString(m, PropSourceID),
		Question: getString(m, PropQuestion),
		Answer:   getString(m, PropAnswer),
	}
	if strings.TrimSpace(ref.SourceID) == "" {
		ref.SourceID = datatypes.UnknownSourceID
	}
	return ref
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func isStatus(err error, status int) bool {
	var clientErr *fault.WeaviateClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode == status
}
