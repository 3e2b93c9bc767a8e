// Package weaviate adapts a Weaviate instance to the vectorstore.Store
// contract. Each namespace maps to one Weaviate class; record identity is a
// deterministic UUID derived from (documentID, seq) so re-ingestion
// overwrites instead of duplicating.
package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"knowgo/src/storage/vectorstore"
)

// recordSpace scopes the deterministic record UUIDs.
var recordSpace = uuid.MustParse("8f9a7c44-1f2e-4f7a-9f0d-6f3c2a5b8e11")

// SDK encapsulates all Weaviate operations and implements
// vectorstore.Store.
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{client: client}
}

// className maps a namespace onto its Weaviate class. Class names must
// start with an upper-case letter.
func className(namespace string) string {
	return "Knowledge_" + namespace
}

// RecordID derives the deterministic identity for one (documentID, seq)
// pair within a namespace.
func RecordID(namespace string, documentID int64, seq int) string {
	key := fmt.Sprintf("%s/%d/%d", namespace, documentID, seq)
	return uuid.NewSHA1(recordSpace, []byte(key)).String()
}

// EnsureNamespace creates the class for namespace if it does not exist yet.
func (w *SDK) EnsureNamespace(ctx context.Context, namespace string) error {
	class := className(namespace)

	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}
	for _, c := range schema.Classes {
		if c.Class == class {
			return nil
		}
	}

	properties := []*models.Property{
		{Name: "chunkId", DataType: []string{"text"}},
		{Name: "documentId", DataType: []string{"text"}},
		{Name: "seq", DataType: []string{"int"}},
		{Name: "ownerScope", DataType: []string{"text"}},
		{Name: "sourceLabel", DataType: []string{"text"}},
		{Name: "snippet", DataType: []string{"text"}},
	}

	err = w.client.Schema().ClassCreator().WithClass(&models.Class{
		Class:      class,
		Properties: properties,
		Vectorizer: "none",
	}).Do(ctx)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create class %s: %w", class, err)
	}
	return nil
}

// Upsert writes records into the namespace's class in one batch.
func (w *SDK) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	objs := make([]*models.Object, len(records))
	for i, r := range records {
		objs[i] = &models.Object{
			ID:    strfmt.UUID(RecordID(namespace, r.DocumentID, r.Seq)),
			Class: className(namespace),
			Properties: map[string]interface{}{
				"chunkId":     strconv.FormatInt(r.ChunkID, 10),
				"documentId":  strconv.FormatInt(r.DocumentID, 10),
				"seq":         r.Seq,
				"ownerScope":  r.OwnerScope,
				"sourceLabel": r.SourceLabel,
				"snippet":     r.Snippet,
			},
			Vector: r.Vector,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch upsert vectors: %w", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch upsert returned no results")
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert rejected object: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Query performs vector similarity search in the namespace's class.
func (w *SDK) Query(ctx context.Context, namespace string, vector []float32, topK int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	class := className(namespace)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "seq"},
		{Name: "sourceLabel"},
		{Name: "snippet"},
		{Name: "_additional { id certainty }"},
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	query := w.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if filter != nil && filter.DocumentID != 0 {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueText(strconv.FormatInt(filter.DocumentID, 10)))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", result.Errors[0].Message)
	}

	var hits []vectorstore.Hit
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return hits, nil
	}
	objects, ok := data[class].([]interface{})
	if !ok {
		return hits, nil
	}

	for _, obj := range objects {
		props, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		hit := vectorstore.Hit{Namespace: namespace}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				hit.Score = certainty
			}
		}
		if v, ok := props["chunkId"].(string); ok {
			hit.ChunkID, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := props["documentId"].(string); ok {
			hit.DocumentID, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := props["seq"].(float64); ok {
			hit.Seq = int(v)
		}
		if v, ok := props["sourceLabel"].(string); ok {
			hit.SourceLabel = v
		}
		if v, ok := props["snippet"].(string); ok {
			hit.Snippet = v
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Delete removes the given chunk records from the namespace's class.
func (w *SDK) Delete(ctx context.Context, namespace string, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(className(namespace)).
		WithWhere(filters.Where().
			WithPath([]string{"chunkId"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids...)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// DeleteDocument removes every record of documentID from the namespace's
// class.
func (w *SDK) DeleteDocument(ctx context.Context, namespace string, documentID int64) error {
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(className(namespace)).
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueText(strconv.FormatInt(documentID, 10))).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// DeleteNamespace drops the namespace's whole class.
func (w *SDK) DeleteNamespace(ctx context.Context, namespace string) error {
	err := w.client.Schema().ClassDeleter().WithClassName(className(namespace)).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete class: %w", err)
	}
	return nil
}
