package embedding

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"knowgo/src/core/kerr"
)

const (
	DefaultBatchSize    = 16
	DefaultWorkers      = 4
	DefaultChunkRetries = 2

	retryBaseDelay = 200 * time.Millisecond
)

// BatcherConfig bounds how texts are grouped and how hard a failed chunk is
// retried before being given up on.
type BatcherConfig struct {
	BatchSize    int
	Workers      int
	ChunkRetries int
}

// Batcher groups texts into batches to amortize provider call overhead.
// Batches run concurrently on a bounded pool; a failed batch falls back to
// embedding its members individually so one bad text cannot sink its
// siblings.
type Batcher struct {
	provider Provider
	cfg      BatcherConfig
	log      logr.Logger
}

// NewBatcher validates the configuration and fills in defaults.
func NewBatcher(provider Provider, cfg BatcherConfig, log logr.Logger) (*Batcher, error) {
	const op = "embedding.NewBatcher"

	if provider == nil {
		return nil, kerr.New(kerr.KindValidation, op, "no embedding provider configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ChunkRetries < 0 {
		cfg.ChunkRetries = DefaultChunkRetries
	}

	return &Batcher{provider: provider, cfg: cfg, log: log}, nil
}

// Result is the outcome for one input text. Exactly one of Vector or Err is
// set.
type Result struct {
	Index  int
	Vector []float32
	Err    error
}

// EmbedAll embeds every text and always returns one result per input, in
// input order. Failures are recorded per text rather than aborting the
// whole call.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	for i := range results {
		results[i].Index = i
	}

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		start := start
		end := min(start+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			b.embedBatch(ctx, texts, results, start, end)
			return nil
		})
	}
	g.Wait()

	return results
}

// embedBatch writes into the disjoint results[start:end] window, so the
// concurrent batches share no state.
func (b *Batcher) embedBatch(ctx context.Context, texts []string, results []Result, start, end int) {
	vecs, err := b.provider.Embed(ctx, texts[start:end])
	if err == nil && len(vecs) == end-start {
		for i, vec := range vecs {
			results[start+i].Vector = vec
		}
		return
	}

	b.log.V(1).Info("batch embedding failed, retrying chunks individually",
		"start", start, "end", end, "error", err)

	for i := start; i < end; i++ {
		vec, err := b.embedOne(ctx, texts[i])
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Vector = vec
	}
}

func (b *Batcher) embedOne(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.Batcher.embedOne"

	var lastErr error
	for attempt := 0; attempt <= b.cfg.ChunkRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, kerr.Wrap(kerr.KindProvider, op, ctx.Err())
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}

		vecs, err := b.provider.Embed(ctx, []string{text})
		if err == nil && len(vecs) == 1 {
			return vecs[0], nil
		}
		if err == nil {
			err = kerr.Newf(kerr.KindProvider, op, "got %d embeddings for one input", len(vecs))
		}
		lastErr = err
	}
	return nil, kerr.Wrap(kerr.KindProvider, op, lastErr)
}
