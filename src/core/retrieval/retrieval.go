// Package retrieval answers queries across namespaces: it embeds the query
// once, fans out to every resolved namespace in parallel, then merges,
// ranks and dedupes the hits into a single ordered result list.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"knowgo/src/core/embedding"
	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
	"knowgo/src/storage/vectorstore"
)

// ErrNoContext signals that the query matched nothing in any queried
// namespace. Callers surface this distinctly so the answer-composition
// side can say "I don't know" instead of fabricating an answer.
var ErrNoContext = errors.New("no relevant context found")

const (
	DefaultTopK    = 5
	DefaultTimeout = 10 * time.Second

	// overfetchFactor widens each per-namespace query so that dedupe and
	// cross-namespace merging still leave topK results to return.
	overfetchFactor = 3
	overfetchCap    = 50
)

// Querier is the slice of the vector store the engine needs.
type Querier interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter *vectorstore.Filter) ([]vectorstore.Hit, error)
}

// Options tune a single retrieval call. Zero values fall back to the
// engine defaults.
type Options struct {
	Mode       knowledge.SearchMode
	TopK       int
	DocumentID int64
}

// Engine coordinates one retrieval: namespace resolution, query
// embedding, parallel fan-out and result merging.
type Engine struct {
	provider embedding.Provider
	store    Querier
	timeout  time.Duration
	log      logr.Logger
}

// NewEngine builds an Engine. Both collaborators are required.
func NewEngine(provider embedding.Provider, store Querier, timeout time.Duration, log logr.Logger) (*Engine, error) {
	const op = "retrieval.NewEngine"

	if provider == nil {
		return nil, kerr.New(kerr.KindValidation, op, "embedding provider is required")
	}
	if store == nil {
		return nil, kerr.New(kerr.KindValidation, op, "vector store is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{provider: provider, store: store, timeout: timeout, log: log}, nil
}

// Retrieve runs the query against every namespace the principal resolves
// to and returns at most topK results ordered by relevance. A namespace
// whose query fails is logged and dropped; partial results beat a failed
// request. ErrNoContext is returned when nothing matched at all.
func (e *Engine) Retrieve(ctx context.Context, p knowledge.Principal, query string, opts Options) ([]knowledge.RetrievalResult, error) {
	const op = "retrieval.Engine.Retrieve"

	if query == "" {
		return nil, kerr.New(kerr.KindValidation, op, "query must not be empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	mode := opts.Mode
	if mode == "" {
		mode = knowledge.ModeHybrid
	}

	namespaces, err := ResolveNamespaces(p, mode)
	if err != nil {
		return nil, err
	}

	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, kerr.Wrap(kerr.KindProvider, op, err)
	}
	if len(vectors) != 1 {
		return nil, kerr.Newf(kerr.KindProvider, op, "expected 1 query vector, got %d", len(vectors))
	}
	vector := vectors[0]

	fetch := topK * overfetchFactor
	if fetch > overfetchCap {
		fetch = overfetchCap
	}
	if fetch < topK {
		fetch = topK
	}

	var filter *vectorstore.Filter
	if opts.DocumentID != 0 {
		filter = &vectorstore.Filter{DocumentID: opts.DocumentID}
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		hits   []vectorstore.Hit
		failed int
	)
	g, gctx := errgroup.WithContext(queryCtx)
	for _, ns := range namespaces {
		g.Go(func() error {
			nsHits, err := e.store.Query(gctx, ns, vector, fetch, filter)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.log.Error(err, "namespace query failed", "namespace", ns)
				return nil
			}
			hits = append(hits, nsHits...)
			return nil
		})
	}
	_ = g.Wait()

	if len(hits) == 0 {
		if failed == len(namespaces) {
			return nil, kerr.Newf(kerr.KindUnavailable, op,
				"all %d namespace queries failed", failed)
		}
		return nil, ErrNoContext
	}

	results := merge(hits, topK)
	if len(results) == 0 {
		return nil, ErrNoContext
	}
	return results, nil
}

// merge ranks hits by score, breaking ties by namespace priority and then
// chunk id, dedupes, and truncates to topK.
func merge(hits []vectorstore.Hit, topK int) []knowledge.RetrievalResult {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		pi, pj := namespacePriority(hits[i].Namespace), namespacePriority(hits[j].Namespace)
		if pi != pj {
			return pi < pj
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	seen := make(map[int64]struct{}, len(hits))
	kept := make([]vectorstore.Hit, 0, topK)

	for _, h := range hits {
		if _, ok := seen[h.ChunkID]; ok {
			continue
		}
		if overlapsKept(kept, h) {
			continue
		}
		seen[h.ChunkID] = struct{}{}
		kept = append(kept, h)
		if len(kept) == topK {
			break
		}
	}

	results := make([]knowledge.RetrievalResult, len(kept))
	for i, h := range kept {
		results[i] = knowledge.RetrievalResult{
			ChunkID:     h.ChunkID,
			Score:       h.Score,
			Namespace:   h.Namespace,
			DocumentID:  h.DocumentID,
			Snippet:     h.Snippet,
			SourceLabel: h.SourceLabel,
		}
	}
	return results
}

// overlapsKept reports whether h covers nearly the same span as an already
// kept hit. Adjacent chunks of one document overlap by construction, so a
// seq distance of one carries mostly duplicated text.
func overlapsKept(kept []vectorstore.Hit, h vectorstore.Hit) bool {
	for _, k := range kept {
		if k.DocumentID == h.DocumentID && k.Namespace == h.Namespace {
			d := k.Seq - h.Seq
			if d >= -1 && d <= 1 {
				return true
			}
		}
	}
	return false
}
