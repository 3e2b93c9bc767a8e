// Package ingest drives a document from registered content to indexed
// vectors: chunking, embedding and vector store upserts, with durable
// status tracking so interrupted runs resume instead of restarting.
package ingest

import (
	"context"

	"knowgo/src/core/knowledge"
	"knowgo/src/storage/vectorstore"
)

// DocumentRepository persists document rows. TransitionStatus must be a
// compare-and-set on the current status so two concurrent workers cannot
// both claim the same document.
type DocumentRepository interface {
	Get(ctx context.Context, id int64) (*knowledge.Document, error)
	TransitionStatus(ctx context.Context, id int64, from, to knowledge.DocumentStatus) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
	SetChunkCount(ctx context.Context, id int64, count int) error
	SetLastBatch(ctx context.Context, id int64, batch int) error
	Delete(ctx context.Context, id int64) error
}

// ChunkRepository persists the chunk rows of a document. Replace swaps the
// whole set atomically; chunks are never mutated in place.
type ChunkRepository interface {
	Replace(ctx context.Context, documentID int64, chunks []knowledge.Chunk) error
	ListByDocument(ctx context.Context, documentID int64) ([]knowledge.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID int64) error
}

// ContentReader resolves a document's content reference to its text.
type ContentReader interface {
	Read(ctx context.Context, ref string) (string, error)
}

// VectorIndex is the slice of the vector store the pipeline writes to.
type VectorIndex interface {
	EnsureNamespace(ctx context.Context, namespace string) error
	Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error
	DeleteDocument(ctx context.Context, namespace string, documentID int64) error
}

// StatusNotifier receives every document status change. Implementations
// must not block; failures to notify never fail the ingestion.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, doc *knowledge.Document)
}
