package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"knowgo/src/core/kerr"
)

// fakeStore counts calls per operation and fails while failing is set.
type fakeStore struct {
	mu      sync.Mutex
	failing bool
	upserts int
	queries int
	deletes int
}

func (f *fakeStore) EnsureNamespace(ctx context.Context, ns string) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, ns string, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failing {
		return errors.New("store down")
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, ns string, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.failing {
		return nil, errors.New("store down")
	}
	return []Hit{{ChunkID: 1, Score: 0.9, Namespace: ns}}, nil
}

func (f *fakeStore) Delete(ctx context.Context, ns string, chunkIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.failing {
		return errors.New("store down")
	}
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, ns string, documentID int64) error {
	return f.Delete(ctx, ns, nil)
}

func (f *fakeStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeStore) upsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

// fastPolicy keeps retries out of the way so tests exercise the breaker.
func fastPolicy(cooldown time.Duration) OpPolicy {
	return OpPolicy{
		MaxAttempts:      1,
		MinDelay:         time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		Multiplier:       2,
		BreakerThreshold: 3,
		BreakerCooldown:  cooldown,
	}
}

func newTestClient(t *testing.T, store Store, cooldown time.Duration) *Client {
	t.Helper()
	c, err := NewClient(store, Config{
		Dimensionality: 3,
		Query:          fastPolicy(cooldown),
		Upsert:         fastPolicy(cooldown),
		Delete:         fastPolicy(cooldown),
	}, logr.Discard())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func record(seq int) Record {
	return Record{ChunkID: int64(seq), DocumentID: 1, Seq: seq, Vector: []float32{1, 2, 3}}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil, Config{Dimensionality: 3}, logr.Discard()); err == nil {
		t.Error("NewClient(nil store) did not return an error")
	}
	if _, err := NewClient(&fakeStore{}, Config{}, logr.Discard()); err == nil {
		t.Error("NewClient with zero dimensionality did not return an error")
	}
}

func TestUpsertRejectsWrongDimensionality(t *testing.T) {
	store := &fakeStore{}
	c := newTestClient(t, store, time.Minute)

	err := c.Upsert(context.Background(), "system", []Record{
		{ChunkID: 1, Vector: []float32{1, 2}},
	})
	if kerr.KindOf(err) != kerr.KindValidation {
		t.Fatalf("error kind = %v, want validation", kerr.KindOf(err))
	}
	if store.upsertCalls() != 0 {
		t.Error("store was called despite invalid record")
	}
}

func TestBreakerTripsAndFailsFast(t *testing.T) {
	store := &fakeStore{failing: true}
	c := newTestClient(t, store, time.Minute)
	ctx := context.Background()

	// three consecutive failures reach the threshold
	for i := 0; i < 3; i++ {
		if err := c.Upsert(ctx, "system", []Record{record(i)}); kerr.KindOf(err) != kerr.KindVectorStore {
			t.Fatalf("attempt %d: error kind = %v, want vector_store", i, kerr.KindOf(err))
		}
	}
	if got := store.upsertCalls(); got != 3 {
		t.Fatalf("store saw %d upserts, want 3", got)
	}

	// breaker is open: fail fast, no network attempt
	err := c.Upsert(ctx, "system", []Record{record(9)})
	if kerr.KindOf(err) != kerr.KindUnavailable {
		t.Fatalf("error kind = %v, want unavailable", kerr.KindOf(err))
	}
	if got := store.upsertCalls(); got != 3 {
		t.Errorf("store saw %d upserts after breaker opened, want 3", got)
	}
}

func TestBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	store := &fakeStore{failing: true}
	cooldown := 50 * time.Millisecond
	c := newTestClient(t, store, cooldown)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = c.Upsert(ctx, "system", []Record{record(i)})
	}
	if got := store.upsertCalls(); got != 3 {
		t.Fatalf("store saw %d upserts, want 3", got)
	}

	time.Sleep(cooldown + 20*time.Millisecond)

	// probe fails: exactly one network attempt, then open again
	if err := c.Upsert(ctx, "system", []Record{record(4)}); err == nil {
		t.Fatal("probe upsert should have failed")
	}
	if got := store.upsertCalls(); got != 4 {
		t.Fatalf("store saw %d upserts, want 4 (one probe)", got)
	}
	if err := c.Upsert(ctx, "system", []Record{record(5)}); kerr.KindOf(err) != kerr.KindUnavailable {
		t.Fatalf("error kind = %v, want unavailable after failed probe", kerr.KindOf(err))
	}
	if got := store.upsertCalls(); got != 4 {
		t.Errorf("store saw %d upserts, want still 4", got)
	}

	// a successful probe closes the breaker again
	time.Sleep(cooldown + 20*time.Millisecond)
	store.setFailing(false)
	if err := c.Upsert(ctx, "system", []Record{record(6)}); err != nil {
		t.Fatalf("probe upsert failed: %v", err)
	}
	if err := c.Upsert(ctx, "system", []Record{record(7)}); err != nil {
		t.Fatalf("upsert after recovery failed: %v", err)
	}
}

func TestOperationClassesAreIndependent(t *testing.T) {
	store := &fakeStore{failing: true}
	c := newTestClient(t, store, time.Minute)
	ctx := context.Background()

	// trip the upsert breaker
	for i := 0; i < 3; i++ {
		_ = c.Upsert(ctx, "system", []Record{record(i)})
	}
	if err := c.Upsert(ctx, "system", []Record{record(9)}); kerr.KindOf(err) != kerr.KindUnavailable {
		t.Fatalf("upsert breaker did not open: %v", err)
	}

	// queries still reach the store with their own breaker
	store.setFailing(false)
	hits, err := c.Query(ctx, "system", []float32{1, 2, 3}, 5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("Query() returned %d hits, want 1", len(hits))
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	store := &flakyStore{failFirst: 2}
	c, err := NewClient(store, Config{
		Dimensionality: 3,
		Query: OpPolicy{
			MaxAttempts:      3,
			MinDelay:         time.Millisecond,
			MaxDelay:         4 * time.Millisecond,
			Multiplier:       2,
			BreakerThreshold: 5,
			BreakerCooldown:  time.Minute,
		},
	}, logr.Discard())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	hits, err := c.Query(context.Background(), "system", []float32{1, 2, 3}, 5, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("Query() returned %d hits, want 1", len(hits))
	}
	if store.calls != 3 {
		t.Errorf("store saw %d calls, want 3 (two failures then success)", store.calls)
	}
}

// flakyStore fails its first failFirst calls, then succeeds.
type flakyStore struct {
	fakeStore
	failFirst int
	calls     int
}

func (f *flakyStore) Query(ctx context.Context, ns string, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("flaky")
	}
	return []Hit{{ChunkID: 1, Score: 0.5, Namespace: ns}}, nil
}
