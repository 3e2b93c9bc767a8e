package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"knowgo/src/core/knowledge"
)

// StatusTopic carries document status change events.
const StatusTopic = "document-status"

// StatusEvent is the published form of a document status change.
type StatusEvent struct {
	DocumentID int64                    `json:"document_id"`
	OwnerScope string                   `json:"owner_scope"`
	Status     knowledge.DocumentStatus `json:"status"`
	LastError  string                   `json:"last_error,omitempty"`
	At         time.Time                `json:"at"`
}

// StatusPublisher broadcasts document status changes over the message
// queue. Publish failures are logged and swallowed; status events are
// best-effort and must never fail an ingestion.
type StatusPublisher struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
}

func NewStatusPublisher(publisher message.Publisher, logger watermill.LoggerAdapter) *StatusPublisher {
	return &StatusPublisher{publisher: publisher, logger: logger}
}

func (p *StatusPublisher) NotifyStatus(ctx context.Context, doc *knowledge.Document) {
	payload, err := json.Marshal(StatusEvent{
		DocumentID: doc.ID,
		OwnerScope: string(doc.OwnerScope),
		Status:     doc.Status,
		LastError:  doc.LastError,
		At:         time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("Failed to marshal status event", err, watermill.LogFields{
			"document_id": doc.ID,
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(StatusTopic, msg); err != nil {
		p.logger.Error("Failed to publish status event", err, watermill.LogFields{
			"document_id": doc.ID,
			"status":      string(doc.Status),
		})
	}
}
