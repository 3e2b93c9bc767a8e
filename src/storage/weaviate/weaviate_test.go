package weaviate

import "testing"

func TestRecordIDDeterministic(t *testing.T) {
	// Re-ingesting an unchanged document must produce the same identities,
	// so upserts overwrite instead of duplicating.
	a := RecordID("user_alice", 42, 0)
	b := RecordID("user_alice", 42, 0)
	if a != b {
		t.Errorf("same (namespace, document, seq) produced %q and %q", a, b)
	}

	distinct := map[string]string{
		a:                             "base",
		RecordID("user_alice", 42, 1): "different seq",
		RecordID("user_alice", 43, 0): "different document",
		RecordID("user_bob", 42, 0):   "different namespace",
		RecordID("system", 42, 0):     "system namespace",
	}
	if len(distinct) != 5 {
		t.Errorf("expected 5 distinct record ids, got %d", len(distinct))
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		namespace string
		want      string
	}{
		{"system", "Knowledge_system"},
		{"tenant_acme", "Knowledge_tenant_acme"},
		{"user_alice", "Knowledge_user_alice"},
	}
	for _, tt := range tests {
		if got := className(tt.namespace); got != tt.want {
			t.Errorf("className(%q) = %q, want %q", tt.namespace, got, tt.want)
		}
	}
}
