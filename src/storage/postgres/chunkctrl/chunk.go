package chunkctrl

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"knowgo/src/core/knowledge"
)

type Chunk struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DocumentID int64     `gorm:"not null;index" json:"document_id"`
	Seq        int       `gorm:"not null;column:chunk_seq" json:"seq"`
	Text       string    `gorm:"not null;type:text" json:"text"`
	TokenCount int       `gorm:"not null" json:"token_count"`
	Checksum   string    `gorm:"not null" json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChunkService struct {
	db *gorm.DB
}

func NewChunkService(db *gorm.DB) *ChunkService {
	return &ChunkService{db: db}
}

// Replace swaps the whole chunk set of a document in one transaction.
// Chunk rows are immutable; re-ingestion always goes through here.
func (s *ChunkService) Replace(ctx context.Context, documentID int64, chunks []knowledge.Chunk) error {
	rows := make([]Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = Chunk{
			ID:         c.ID,
			DocumentID: documentID,
			Seq:        c.Seq,
			Text:       c.Text,
			TokenCount: c.TokenCount,
			Checksum:   c.Checksum,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace chunks: %v", err)
	}
	return nil
}

func (s *ChunkService) ListByDocument(ctx context.Context, documentID int64) ([]knowledge.Chunk, error) {
	var rows []Chunk
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_seq ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", result.Error)
	}

	chunks := make([]knowledge.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = knowledge.Chunk{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			Seq:        r.Seq,
			Text:       r.Text,
			TokenCount: r.TokenCount,
			Checksum:   r.Checksum,
		}
	}
	return chunks, nil
}

func (s *ChunkService) DeleteByDocument(ctx context.Context, documentID int64) error {
	result := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&Chunk{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chunks: %v", result.Error)
	}
	return nil
}
