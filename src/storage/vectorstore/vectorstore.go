// Package vectorstore defines the vector record model and wraps a concrete
// store behind per-operation retry and circuit breaker policies, so an
// unreliable vector database degrades to fast failures instead of
// cascading stalls.
package vectorstore

import "context"

// Record is one chunk's vector in one namespace. Identity is derived from
// (DocumentID, Seq) so upserting the same pair twice overwrites rather
// than duplicates.
type Record struct {
	ChunkID     int64
	DocumentID  int64
	Seq         int
	Vector      []float32
	OwnerScope  string
	SourceLabel string
	Snippet     string
}

// Hit is one query match with its relevance score.
type Hit struct {
	ChunkID     int64
	DocumentID  int64
	Seq         int
	Score       float64
	Namespace   string
	Snippet     string
	SourceLabel string
}

// Filter narrows a query. Zero values mean no restriction.
type Filter struct {
	DocumentID int64
}

// Store is the raw vector database contract the resilience layer wraps.
type Store interface {
	EnsureNamespace(ctx context.Context, namespace string) error
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter *Filter) ([]Hit, error)
	Delete(ctx context.Context, namespace string, chunkIDs []int64) error
	DeleteDocument(ctx context.Context, namespace string, documentID int64) error
}
