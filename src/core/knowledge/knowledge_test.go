package knowledge

import "testing"

func TestScopeNamespace(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"system", SystemScope, "system"},
		{"tenant", TenantScope("acme"), "tenant_acme"},
		{"user", UserScope("alice"), "user_alice"},
		{"tenant with unsafe characters", TenantScope("acme-corp.io"), "tenant_acme_corp_io"},
		{"user with unicode", UserScope("alícia"), "user_al_cia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Namespace(); got != tt.want {
				t.Errorf("Namespace() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScopeValid(t *testing.T) {
	valid := []Scope{SystemScope, TenantScope("t1"), UserScope("u1")}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}

	invalid := []Scope{"", "tenant:", "user:", "global", "admin:root"}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to DocumentStatus }{
		{StatusPending, StatusChunking},
		{StatusChunking, StatusEmbedding},
		{StatusEmbedding, StatusIndexed},
		{StatusPending, StatusFailed},
		{StatusChunking, StatusFailed},
		{StatusEmbedding, StatusFailed},
		{StatusFailed, StatusPending},
		{StatusIndexed, StatusPending},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransition(tt.to) {
			t.Errorf("CanTransition(%s -> %s) = false, want true", tt.from, tt.to)
		}
	}

	forbidden := []struct{ from, to DocumentStatus }{
		{StatusPending, StatusEmbedding},
		{StatusPending, StatusIndexed},
		{StatusChunking, StatusIndexed},
		{StatusIndexed, StatusFailed},
		{StatusIndexed, StatusEmbedding},
		{StatusFailed, StatusIndexed},
		{StatusEmbedding, StatusChunking},
	}
	for _, tt := range forbidden {
		if tt.from.CanTransition(tt.to) {
			t.Errorf("CanTransition(%s -> %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestPrincipalEntitled(t *testing.T) {
	p := Principal{
		UserID:       "alice",
		TenantID:     "acme",
		Entitlements: []string{"system", "tenant_acme", "user_alice"},
	}

	if !p.Entitled("system") || !p.Entitled("user_alice") {
		t.Error("principal should be entitled to its own namespaces")
	}
	if p.Entitled("user_bob") || p.Entitled("tenant_other") {
		t.Error("principal must not be entitled to foreign namespaces")
	}
}
