package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"knowgo/src/core/embedding"
	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
	"knowgo/src/storage/vectorstore"
)

type stubProvider struct{ dim int }

func (s stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, s.dim)
	}
	return vecs, nil
}

func (s stubProvider) Dimensionality() int { return s.dim }

func (s stubProvider) Describe(ctx context.Context) embedding.Info {
	return embedding.Info{Name: "stub", Available: true}
}

// fakeQuerier serves canned hits per namespace and can fail namespaces.
type fakeQuerier struct {
	mu      sync.Mutex
	hits    map[string][]vectorstore.Hit
	failing map[string]bool
	queried map[string]bool
}

func (f *fakeQuerier) Query(ctx context.Context, ns string, vector []float32, topK int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	f.mu.Lock()
	if f.queried == nil {
		f.queried = map[string]bool{}
	}
	f.queried[ns] = true
	f.mu.Unlock()
	if f.failing[ns] {
		return nil, errors.New("namespace down")
	}
	hits := f.hits[ns]
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func hit(ns string, chunkID, docID int64, seq int, score float64) vectorstore.Hit {
	return vectorstore.Hit{
		ChunkID:    chunkID,
		DocumentID: docID,
		Seq:        seq,
		Score:      score,
		Namespace:  ns,
		Snippet:    "snippet",
	}
}

func newTestEngine(t *testing.T, q Querier) *Engine {
	t.Helper()
	e, err := NewEngine(stubProvider{dim: 3}, q, time.Second, logr.Discard())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func entitledPrincipal(userID, tenantID string) knowledge.Principal {
	p := knowledge.Principal{UserID: userID, TenantID: tenantID}
	p.Entitlements = []string{knowledge.SystemNamespace, knowledge.UserNamespace(userID)}
	if tenantID != "" {
		p.Entitlements = append(p.Entitlements, knowledge.TenantNamespace(tenantID))
	}
	return p
}

func TestResolveNamespaces(t *testing.T) {
	alice := entitledPrincipal("alice", "acme")

	tests := []struct {
		name      string
		principal knowledge.Principal
		mode      knowledge.SearchMode
		want      []string
		wantKind  kerr.Kind
	}{
		{
			name:      "system mode",
			principal: alice,
			mode:      knowledge.ModeSystem,
			want:      []string{"system"},
		},
		{
			name:      "user mode",
			principal: alice,
			mode:      knowledge.ModeUser,
			want:      []string{"user_alice"},
		},
		{
			name:      "hybrid mode includes tenant",
			principal: alice,
			mode:      knowledge.ModeHybrid,
			want:      []string{"system", "tenant_acme", "user_alice"},
		},
		{
			name: "unentitled namespaces are skipped",
			principal: knowledge.Principal{
				UserID:       "bob",
				TenantID:     "acme",
				Entitlements: []string{"system", "user_bob"},
			},
			mode: knowledge.ModeHybrid,
			want: []string{"system", "user_bob"},
		},
		{
			name: "no entitlements is a permission error",
			principal: knowledge.Principal{
				UserID:       "mallory",
				Entitlements: []string{"user_somebody_else"},
			},
			mode:     knowledge.ModeHybrid,
			wantKind: kerr.KindPermission,
		},
		{
			name:      "user mode without user id",
			principal: knowledge.Principal{Entitlements: []string{"system"}},
			mode:      knowledge.ModeUser,
			wantKind:  kerr.KindValidation,
		},
		{
			name:      "unknown mode",
			principal: alice,
			mode:      knowledge.SearchMode("psychic"),
			wantKind:  kerr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveNamespaces(tt.principal, tt.mode)
			if tt.wantKind != "" {
				if kerr.KindOf(err) != tt.wantKind {
					t.Fatalf("error kind = %v, want %v", kerr.KindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveNamespaces() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("namespace %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRetrieveNeverTouchesUnentitledNamespaces(t *testing.T) {
	q := &fakeQuerier{
		hits: map[string][]vectorstore.Hit{
			"system":     {hit("system", 1, 10, 0, 0.8)},
			"user_alice": {hit("user_alice", 2, 20, 0, 0.7)},
			"user_bob":   {hit("user_bob", 3, 30, 0, 0.99)},
		},
	}
	e := newTestEngine(t, q)

	results, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeHybrid})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if q.queried["user_bob"] {
		t.Error("queried a namespace the principal is not entitled to")
	}
	for _, r := range results {
		if r.Namespace == "user_bob" {
			t.Errorf("leaked result from foreign namespace: %+v", r)
		}
	}
}

func TestRetrieveTieBreakPrefersSystem(t *testing.T) {
	q := &fakeQuerier{
		hits: map[string][]vectorstore.Hit{
			"system":     {hit("system", 5, 10, 0, 0.9)},
			"user_alice": {hit("user_alice", 2, 20, 0, 0.9)},
		},
	}
	e := newTestEngine(t, q)

	results, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeHybrid, TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Namespace != "system" {
		t.Errorf("tied scores ranked %q first, want system", results[0].Namespace)
	}
}

func TestRetrievePartialResultsOnNamespaceFailure(t *testing.T) {
	q := &fakeQuerier{
		hits: map[string][]vectorstore.Hit{
			"system": {hit("system", 1, 10, 0, 0.8)},
		},
		failing: map[string]bool{"tenant_acme": true, "user_alice": true},
	}
	e := newTestEngine(t, q)

	results, err := e.Retrieve(context.Background(), entitledPrincipal("alice", "acme"), "query", Options{Mode: knowledge.ModeHybrid})
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want partial results", err)
	}
	if len(results) != 1 || results[0].Namespace != "system" {
		t.Errorf("results = %+v, want the surviving system hit", results)
	}
}

func TestRetrieveAllNamespacesFailed(t *testing.T) {
	q := &fakeQuerier{
		failing: map[string]bool{"system": true, "user_alice": true},
	}
	e := newTestEngine(t, q)

	_, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeHybrid})
	if kerr.KindOf(err) != kerr.KindUnavailable {
		t.Fatalf("error kind = %v, want unavailable", kerr.KindOf(err))
	}
}

func TestRetrieveDedupesAdjacentChunks(t *testing.T) {
	// Chunks 100..102 are consecutive spans of one document; neighbors
	// share overlap text, so only non-adjacent ones should survive.
	q := &fakeQuerier{
		hits: map[string][]vectorstore.Hit{
			"system": {
				hit("system", 100, 10, 0, 0.95),
				hit("system", 101, 10, 1, 0.94),
				hit("system", 102, 10, 2, 0.93),
				hit("system", 200, 20, 0, 0.92),
			},
		},
	}
	e := newTestEngine(t, q)

	results, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeSystem, TopK: 4})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []int64{100, 102, 200}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d: %+v", len(results), len(want), results)
	}
	for i, r := range results {
		if r.ChunkID != want[i] {
			t.Errorf("result %d chunk = %d, want %d", i, r.ChunkID, want[i])
		}
	}
}

func TestRetrieveDropsDuplicateChunkIDs(t *testing.T) {
	q := &fakeQuerier{
		hits: map[string][]vectorstore.Hit{
			"system":     {hit("system", 7, 10, 0, 0.9)},
			"user_alice": {hit("user_alice", 7, 10, 0, 0.85)},
		},
	}
	e := newTestEngine(t, q)

	results, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeHybrid})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 after dedupe", len(results))
	}
	if results[0].Namespace != "system" {
		t.Errorf("kept the lower scored duplicate: %+v", results[0])
	}
}

func TestRetrieveNoContext(t *testing.T) {
	e := newTestEngine(t, &fakeQuerier{})

	_, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "query", Options{Mode: knowledge.ModeSystem})
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("error = %v, want ErrNoContext", err)
	}
}

func TestRetrieveValidation(t *testing.T) {
	e := newTestEngine(t, &fakeQuerier{})

	_, err := e.Retrieve(context.Background(), entitledPrincipal("alice", ""), "", Options{})
	if kerr.KindOf(err) != kerr.KindValidation {
		t.Fatalf("error kind = %v, want validation", kerr.KindOf(err))
	}
}
