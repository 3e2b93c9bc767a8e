// Package knowledge holds the domain types shared by the ingestion and
// retrieval sides of the engine: documents, chunks, owner scopes and the
// namespaces they map to, principals and retrieval results.
package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// Scope identifies who owns a document: "system", "tenant:<id>" or "user:<id>".
type Scope string

const SystemScope Scope = "system"

// TenantScope returns the owner scope for a tenant.
func TenantScope(tenantID string) Scope {
	return Scope("tenant:" + tenantID)
}

// UserScope returns the owner scope for a single user.
func UserScope(userID string) Scope {
	return Scope("user:" + userID)
}

// Namespace maps the scope onto its vector store partition.
func (s Scope) Namespace() string {
	switch {
	case s == SystemScope:
		return SystemNamespace
	case strings.HasPrefix(string(s), "tenant:"):
		return TenantNamespace(strings.TrimPrefix(string(s), "tenant:"))
	case strings.HasPrefix(string(s), "user:"):
		return UserNamespace(strings.TrimPrefix(string(s), "user:"))
	default:
		return sanitize(string(s))
	}
}

// Valid reports whether the scope is one of the three recognized forms.
func (s Scope) Valid() bool {
	if s == SystemScope {
		return true
	}
	if v, ok := strings.CutPrefix(string(s), "tenant:"); ok {
		return v != ""
	}
	if v, ok := strings.CutPrefix(string(s), "user:"); ok {
		return v != ""
	}
	return false
}

// SystemNamespace is the shared knowledge partition every deployment has.
const SystemNamespace = "system"

// TenantNamespace returns the vector store partition for a tenant.
func TenantNamespace(tenantID string) string {
	return "tenant_" + sanitize(tenantID)
}

// UserNamespace returns the personal vector store partition for a user.
func UserNamespace(userID string) string {
	return "user_" + sanitize(userID)
}

// sanitize keeps namespace names inside the character set the vector store
// accepts for partition names.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusChunking  DocumentStatus = "chunking"
	StatusEmbedding DocumentStatus = "embedding"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal status
// change. Progress is forward-only; failed is terminal until an external
// re-ingest resets the document to pending.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusChunking || next == StatusFailed
	case StatusChunking:
		return next == StatusEmbedding || next == StatusFailed
	case StatusEmbedding:
		return next == StatusIndexed || next == StatusFailed
	case StatusIndexed:
		return next == StatusPending
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// Document is the unit of ingestion. The pipeline is the only writer of its
// status; creation and deletion are driven by the upload collaborator.
type Document struct {
	ID          int64          `json:"id"`
	OwnerScope  Scope          `json:"owner_scope"`
	ContentRef  string         `json:"content_ref"`
	SourceLabel string         `json:"source_label"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	LastBatch   int            `json:"last_batch"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Chunk is a bounded span of a document's text, immutable once created.
// Re-ingestion supersedes the whole set rather than mutating rows.
type Chunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Checksum   string `json:"checksum"`
}

// RetrievalResult is one ranked hit returned to the answer-composition
// collaborator, with enough metadata for citation.
type RetrievalResult struct {
	ChunkID     int64   `json:"chunk_id"`
	Score       float64 `json:"score"`
	Namespace   string  `json:"namespace"`
	DocumentID  int64   `json:"document_id"`
	Snippet     string  `json:"snippet"`
	SourceLabel string  `json:"source_label"`
}

// SearchMode selects which knowledge sources a retrieval may touch.
type SearchMode string

const (
	ModeSystem SearchMode = "system"
	ModeUser   SearchMode = "user"
	ModeHybrid SearchMode = "hybrid"
)

// Principal is the requesting identity, supplied and already authenticated
// by the authorization collaborator. Entitlements list the namespaces the
// principal may query; the engine trusts this input.
type Principal struct {
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id,omitempty"`
	Entitlements []string `json:"entitlements"`
}

// Entitled reports whether the principal may query the given namespace.
func (p Principal) Entitled(namespace string) bool {
	for _, ns := range p.Entitlements {
		if ns == namespace {
			return true
		}
	}
	return false
}

func (p Principal) String() string {
	return fmt.Sprintf("user=%s tenant=%s", p.UserID, p.TenantID)
}
