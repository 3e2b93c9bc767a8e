package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"knowgo/src/core/chunk"
	"knowgo/src/core/embedding"
	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
	"knowgo/src/storage/vectorstore"
)

const (
	DefaultUpsertBatchSize = 64
	DefaultUpsertInterval  = 200 * time.Millisecond
)

// Config tunes one Pipeline. Zero values fall back to defaults.
type Config struct {
	ChunkSize       int
	ChunkOverlap    int
	EmbedBatchSize  int
	EmbedWorkers    int
	ChunkRetryLimit int
	UpsertBatchSize int
	UpsertInterval  time.Duration
}

// Pipeline is the ingestion coordinator. One instance serves many
// documents; all per-document state lives in the repositories.
type Pipeline struct {
	documents DocumentRepository
	chunks    ChunkRepository
	content   ContentReader
	index     VectorIndex
	splitter  *chunk.Splitter
	batcher   *embedding.Batcher
	notifier  StatusNotifier
	node      *snowflake.Node
	limiter   *rate.Limiter
	batchSize int
	log       logr.Logger
}

// NewPipeline wires the collaborators together. A missing embedding
// provider is a startup error, not a per-document one.
func NewPipeline(
	documents DocumentRepository,
	chunks ChunkRepository,
	content ContentReader,
	index VectorIndex,
	provider embedding.Provider,
	notifier StatusNotifier,
	node *snowflake.Node,
	cfg Config,
	log logr.Logger,
) (*Pipeline, error) {
	const op = "ingest.NewPipeline"

	if documents == nil || chunks == nil || content == nil || index == nil {
		return nil, kerr.New(kerr.KindValidation, op, "all storage collaborators are required")
	}
	if provider == nil {
		return nil, kerr.New(kerr.KindValidation, op, "no embedding provider configured")
	}
	if node == nil {
		return nil, kerr.New(kerr.KindValidation, op, "id node is required")
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultMaxChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = chunk.DefaultOverlap
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.UpsertInterval <= 0 {
		cfg.UpsertInterval = DefaultUpsertInterval
	}

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	batcher, err := embedding.NewBatcher(provider, embedding.BatcherConfig{
		BatchSize:    cfg.EmbedBatchSize,
		Workers:      cfg.EmbedWorkers,
		ChunkRetries: cfg.ChunkRetryLimit,
	}, log)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		documents: documents,
		chunks:    chunks,
		content:   content,
		index:     index,
		splitter:  splitter,
		batcher:   batcher,
		notifier:  notifier,
		node:      node,
		limiter:   rate.NewLimiter(rate.Every(cfg.UpsertInterval), 1),
		batchSize: cfg.UpsertBatchSize,
		log:       log,
	}, nil
}

// Ingest runs one document through chunking, embedding and indexing. The
// document must be pending; the status compare-and-set is the claim that
// keeps concurrent workers off the same document. A document that failed
// mid-run resumes from its last completed upsert batch once it is reset
// to pending.
func (p *Pipeline) Ingest(ctx context.Context, documentID int64) error {
	const op = "ingest.Pipeline.Ingest"

	doc, err := p.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}

	ok, err := p.documents.TransitionStatus(ctx, documentID, knowledge.StatusPending, knowledge.StatusChunking)
	if err != nil {
		return err
	}
	if !ok {
		return kerr.Newf(kerr.KindValidation, op,
			"document %d is not pending (status %s)", documentID, doc.Status)
	}
	doc.Status = knowledge.StatusChunking
	p.notify(ctx, doc)

	chunks, err := p.prepareChunks(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("chunking: %w", err))
	}
	if len(chunks) == 0 {
		return p.fail(ctx, doc, kerr.Newf(kerr.KindValidation, op,
			"document %d has no indexable content", documentID))
	}

	ok, err = p.documents.TransitionStatus(ctx, documentID, knowledge.StatusChunking, knowledge.StatusEmbedding)
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("claiming embedding stage: %w", err))
	}
	if !ok {
		return p.fail(ctx, doc, kerr.Newf(kerr.KindValidation, op,
			"document %d left chunking concurrently", documentID))
	}
	doc.Status = knowledge.StatusEmbedding
	p.notify(ctx, doc)

	namespace := doc.OwnerScope.Namespace()
	if err := p.index.EnsureNamespace(ctx, namespace); err != nil {
		return p.fail(ctx, doc, err)
	}

	if err := p.indexChunks(ctx, doc, namespace, chunks); err != nil {
		return p.fail(ctx, doc, err)
	}

	ok, err = p.documents.TransitionStatus(ctx, documentID, knowledge.StatusEmbedding, knowledge.StatusIndexed)
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("finishing: %w", err))
	}
	if !ok {
		return p.fail(ctx, doc, kerr.Newf(kerr.KindValidation, op,
			"document %d left embedding concurrently", documentID))
	}
	doc.Status = knowledge.StatusIndexed
	p.notify(ctx, doc)

	p.log.Info("document indexed",
		"document", documentID, "namespace", namespace, "chunks", len(chunks))
	return nil
}

// prepareChunks returns the chunk set for doc, reusing stored chunks when
// resuming a partially indexed document.
func (p *Pipeline) prepareChunks(ctx context.Context, doc *knowledge.Document) ([]knowledge.Chunk, error) {
	if doc.LastBatch > 0 {
		stored, err := p.chunks.ListByDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			p.log.Info("resuming from stored chunks",
				"document", doc.ID, "chunks", len(stored), "lastBatch", doc.LastBatch)
			return stored, nil
		}
		// chunk rows are gone; fall through and start over
		doc.LastBatch = 0
		if err := p.documents.SetLastBatch(ctx, doc.ID, 0); err != nil {
			return nil, err
		}
	}

	text, err := p.content.Read(ctx, doc.ContentRef)
	if err != nil {
		return nil, err
	}

	chunks := p.splitter.Split(doc.ID, text)
	for i := range chunks {
		chunks[i].ID = p.node.Generate().Int64()
	}
	if err := p.chunks.Replace(ctx, doc.ID, chunks); err != nil {
		return nil, err
	}
	doc.ChunkCount = len(chunks)
	if err := p.documents.SetChunkCount(ctx, doc.ID, len(chunks)); err != nil {
		return nil, err
	}
	return chunks, nil
}

// indexChunks embeds and upserts the chunk set batch by batch, recording
// progress after each batch so a crash resumes rather than restarts.
func (p *Pipeline) indexChunks(ctx context.Context, doc *knowledge.Document, namespace string, chunks []knowledge.Chunk) error {
	const op = "ingest.Pipeline.indexChunks"

	totalBatches := (len(chunks) + p.batchSize - 1) / p.batchSize
	for batch := doc.LastBatch; batch < totalBatches; batch++ {
		start := batch * p.batchSize
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		members := chunks[start:end]

		texts := make([]string, len(members))
		for i, c := range members {
			texts[i] = c.Text
		}

		results := p.batcher.EmbedAll(ctx, texts)
		records := make([]vectorstore.Record, len(members))
		for i, r := range results {
			if r.Err != nil {
				return kerr.Wrap(kerr.KindProvider, op,
					fmt.Errorf("batch %d chunk %d: %w", batch, members[i].Seq, r.Err))
			}
			records[i] = vectorstore.Record{
				ChunkID:     members[i].ID,
				DocumentID:  doc.ID,
				Seq:         members[i].Seq,
				Vector:      r.Vector,
				OwnerScope:  string(doc.OwnerScope),
				SourceLabel: doc.SourceLabel,
				Snippet:     snippet(members[i].Text),
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.index.Upsert(ctx, namespace, records); err != nil {
			return fmt.Errorf("batch %d: %w", batch, err)
		}
		doc.LastBatch = batch + 1
		if err := p.documents.SetLastBatch(ctx, doc.ID, batch+1); err != nil {
			return err
		}
	}
	return nil
}

// Reingest resets an indexed or failed document back to pending. An
// indexed document is wiped first so the next run starts fresh; a failed
// one keeps its chunks and progress so the next run resumes.
func (p *Pipeline) Reingest(ctx context.Context, documentID int64) error {
	const op = "ingest.Pipeline.Reingest"

	doc, err := p.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}

	switch doc.Status {
	case knowledge.StatusFailed:
		ok, err := p.documents.TransitionStatus(ctx, documentID, knowledge.StatusFailed, knowledge.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return kerr.Newf(kerr.KindValidation, op, "document %d changed status concurrently", documentID)
		}
	case knowledge.StatusIndexed:
		if err := p.index.DeleteDocument(ctx, doc.OwnerScope.Namespace(), documentID); err != nil {
			return err
		}
		if err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		if err := p.documents.SetLastBatch(ctx, documentID, 0); err != nil {
			return err
		}
		ok, err := p.documents.TransitionStatus(ctx, documentID, knowledge.StatusIndexed, knowledge.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return kerr.Newf(kerr.KindValidation, op, "document %d changed status concurrently", documentID)
		}
	default:
		return kerr.Newf(kerr.KindValidation, op,
			"document %d cannot be re-ingested from status %s", documentID, doc.Status)
	}

	doc.Status = knowledge.StatusPending
	p.notify(ctx, doc)
	return nil
}

// Remove deletes a document everywhere: vectors, chunk rows, then the
// document row itself.
func (p *Pipeline) Remove(ctx context.Context, documentID int64) error {
	doc, err := p.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.index.DeleteDocument(ctx, doc.OwnerScope.Namespace(), documentID); err != nil {
		return err
	}
	if err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	return p.documents.Delete(ctx, documentID)
}

// fail records the failure reason on the document and returns the cause.
// Already written chunks and vectors stay in place for the resume path.
func (p *Pipeline) fail(ctx context.Context, doc *knowledge.Document, cause error) error {
	if err := p.documents.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		p.log.Error(err, "failed to record ingestion failure", "document", doc.ID)
	}
	doc.Status = knowledge.StatusFailed
	doc.LastError = cause.Error()
	p.notify(ctx, doc)

	p.log.Error(cause, "ingestion failed", "document", doc.ID)
	return cause
}

func (p *Pipeline) notify(ctx context.Context, doc *knowledge.Document) {
	if p.notifier != nil {
		p.notifier.NotifyStatus(ctx, doc)
	}
}

func snippet(text string) string {
	const max = 280
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
