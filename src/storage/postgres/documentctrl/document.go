package documentctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"knowgo/src/core/kerr"
	"knowgo/src/core/knowledge"
)

type Document struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	OwnerScope  string    `gorm:"not null;index" json:"owner_scope"`
	ContentRef  string    `gorm:"not null" json:"content_ref"`
	SourceLabel string    `json:"source_label"`
	Status      string    `gorm:"not null;index" json:"status"`
	ChunkCount  int       `gorm:"not null;default:0" json:"chunk_count"`
	LastBatch   int       `gorm:"not null;default:0" json:"last_batch"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DocumentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	node, err := snowflake.NewNode(1) // Node number 1 for documents
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &DocumentService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *DocumentService) Create(ctx context.Context, scope knowledge.Scope, contentRef, sourceLabel string) (*knowledge.Document, error) {
	const op = "documentctrl.Create"

	if !scope.Valid() {
		return nil, kerr.Newf(kerr.KindValidation, op, "invalid owner scope %q", scope)
	}
	if contentRef == "" {
		return nil, kerr.New(kerr.KindValidation, op, "content ref is required")
	}

	doc := &Document{
		ID:          s.snowflake.Generate().Int64(),
		OwnerScope:  string(scope),
		ContentRef:  contentRef,
		SourceLabel: sourceLabel,
		Status:      string(knowledge.StatusPending),
	}

	result := s.db.WithContext(ctx).Create(doc)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create document: %v", result.Error)
	}

	return toDomain(doc), nil
}

func (s *DocumentService) Get(ctx context.Context, id int64) (*knowledge.Document, error) {
	const op = "documentctrl.Get"

	var doc Document
	result := s.db.WithContext(ctx).First(&doc, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, kerr.Newf(kerr.KindNotFound, op, "document %d not found", id)
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}
	return toDomain(&doc), nil
}

func (s *DocumentService) ListByScope(ctx context.Context, scope knowledge.Scope) ([]knowledge.Document, error) {
	var docs []Document
	result := s.db.WithContext(ctx).
		Where("owner_scope = ?", string(scope)).
		Order("created_at DESC").
		Find(&docs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %v", result.Error)
	}

	out := make([]knowledge.Document, len(docs))
	for i := range docs {
		out[i] = *toDomain(&docs[i])
	}
	return out, nil
}

// TransitionStatus is a compare-and-set: the update only lands when the
// row still carries the expected status, so concurrent workers cannot
// both claim one document.
func (s *DocumentService) TransitionStatus(ctx context.Context, id int64, from, to knowledge.DocumentStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, nil
	}

	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition document status: %v", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *DocumentService) MarkFailed(ctx context.Context, id int64, reason string) error {
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(knowledge.StatusFailed),
			"last_error": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark document failed: %v", result.Error)
	}
	return nil
}

func (s *DocumentService) SetChunkCount(ctx context.Context, id int64, count int) error {
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Update("chunk_count", count)
	if result.Error != nil {
		return fmt.Errorf("failed to set chunk count: %v", result.Error)
	}
	return nil
}

func (s *DocumentService) SetLastBatch(ctx context.Context, id int64, batch int) error {
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Update("last_batch", batch)
	if result.Error != nil {
		return fmt.Errorf("failed to set last batch: %v", result.Error)
	}
	return nil
}

func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Document{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %v", result.Error)
	}
	return nil
}

func toDomain(d *Document) *knowledge.Document {
	return &knowledge.Document{
		ID:          d.ID,
		OwnerScope:  knowledge.Scope(d.OwnerScope),
		ContentRef:  d.ContentRef,
		SourceLabel: d.SourceLabel,
		Status:      knowledge.DocumentStatus(d.Status),
		ChunkCount:  d.ChunkCount,
		LastBatch:   d.LastBatch,
		LastError:   d.LastError,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
