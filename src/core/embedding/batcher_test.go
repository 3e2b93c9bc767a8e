package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"

	"knowgo/src/core/kerr"
)

// fakeProvider embeds deterministically and fails any text containing
// "poison". failBatches makes every multi-text call fail so the batcher has
// to fall back to individual embedding.
type fakeProvider struct {
	mu          sync.Mutex
	dim         int
	failBatches bool
	calls       int
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failBatches && len(texts) > 1 {
		return nil, errors.New("batch rejected")
	}
	vecs := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, fmt.Errorf("cannot embed %q", t)
		}
		vec := make([]float32, f.dim)
		vec[0] = float32(len(t))
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

func (f *fakeProvider) Dimensionality() int { return f.dim }

func (f *fakeProvider) Describe(ctx context.Context) Info {
	return Info{Name: "fake", Device: "test", Available: true}
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewBatcherRequiresProvider(t *testing.T) {
	_, err := NewBatcher(nil, BatcherConfig{}, logr.Discard())
	if err == nil {
		t.Fatal("NewBatcher(nil) did not return an error")
	}
	if kerr.KindOf(err) != kerr.KindValidation {
		t.Errorf("error kind = %v, want validation", kerr.KindOf(err))
	}
}

func TestEmbedAllHappyPath(t *testing.T) {
	p := &fakeProvider{dim: 4}
	b, err := NewBatcher(p, BatcherConfig{BatchSize: 3, Workers: 2}, logr.Discard())
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results := b.EmbedAll(context.Background(), texts)

	if len(results) != len(texts) {
		t.Fatalf("got %d results, want %d", len(results), len(texts))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result %d failed: %v", i, r.Err)
		}
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
		if len(r.Vector) != 4 {
			t.Errorf("result %d has %d dimensions, want 4", i, len(r.Vector))
		}
		if r.Vector[0] != float32(len(texts[i])) {
			t.Errorf("result %d embedded the wrong text", i)
		}
	}
}

func TestEmbedAllPartialFailure(t *testing.T) {
	// One poisoned text fails its whole batch; siblings must still come
	// back embedded through the individual fallback.
	p := &fakeProvider{dim: 2}
	b, err := NewBatcher(p, BatcherConfig{BatchSize: 4, Workers: 1, ChunkRetries: 1}, logr.Discard())
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}

	texts := []string{"good one", "poison pill", "good two", "good three"}
	results := b.EmbedAll(context.Background(), texts)

	for i, r := range results {
		poisoned := strings.Contains(texts[i], "poison")
		if poisoned {
			if r.Err == nil {
				t.Errorf("result %d should have failed", i)
			}
			if kerr.KindOf(r.Err) != kerr.KindProvider {
				t.Errorf("result %d error kind = %v, want provider", i, kerr.KindOf(r.Err))
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("sibling %d failed: %v", i, r.Err)
		}
		if len(r.Vector) != 2 {
			t.Errorf("sibling %d has no vector", i)
		}
	}
}

func TestEmbedAllRetriesIndividually(t *testing.T) {
	// With batches forced to fail, every text must be retried alone:
	// one batch call plus one individual call per text.
	p := &fakeProvider{dim: 2, failBatches: true}
	b, err := NewBatcher(p, BatcherConfig{BatchSize: 3, Workers: 1, ChunkRetries: 2}, logr.Discard())
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}

	texts := []string{"one", "two", "three"}
	results := b.EmbedAll(context.Background(), texts)

	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result %d failed: %v", i, r.Err)
		}
	}
	if got := p.callCount(); got != 4 {
		t.Errorf("provider saw %d calls, want 4 (1 batch + 3 individual)", got)
	}
}
