package retrieval

import (
	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
)

// ResolveNamespaces expands a search mode into the concrete namespaces the
// principal is entitled to query. The entitlement list is the hard
// boundary: a namespace the mode implies but the principal is not entitled
// to is silently skipped, and a request that resolves to nothing is a
// permission error rather than an empty search.
func ResolveNamespaces(p knowledge.Principal, mode knowledge.SearchMode) ([]string, error) {
	const op = "retrieval.ResolveNamespaces"

	var candidates []string
	switch mode {
	case knowledge.ModeSystem:
		candidates = []string{knowledge.SystemNamespace}
	case knowledge.ModeUser:
		if p.UserID == "" {
			return nil, kerr.New(kerr.KindValidation, op, "user mode requires a user id")
		}
		candidates = []string{knowledge.UserNamespace(p.UserID)}
	case knowledge.ModeHybrid:
		if p.UserID == "" {
			return nil, kerr.New(kerr.KindValidation, op, "hybrid mode requires a user id")
		}
		candidates = []string{knowledge.SystemNamespace}
		if p.TenantID != "" {
			candidates = append(candidates, knowledge.TenantNamespace(p.TenantID))
		}
		candidates = append(candidates, knowledge.UserNamespace(p.UserID))
	default:
		return nil, kerr.Newf(kerr.KindValidation, op, "unknown search mode %q", mode)
	}

	namespaces := make([]string, 0, len(candidates))
	for _, ns := range candidates {
		if p.Entitled(ns) {
			namespaces = append(namespaces, ns)
		}
	}
	if len(namespaces) == 0 {
		return nil, kerr.Newf(kerr.KindPermission, op,
			"principal %s has no entitlement for mode %q", p, mode)
	}
	return namespaces, nil
}

// namespacePriority orders namespaces for score ties: shared knowledge
// outranks tenant knowledge, which outranks personal knowledge.
func namespacePriority(ns string) int {
	switch {
	case ns == knowledge.SystemNamespace:
		return 0
	case len(ns) > 7 && ns[:7] == "tenant_":
		return 1
	case len(ns) > 5 && ns[:5] == "user_":
		return 2
	default:
		return 3
	}
}
