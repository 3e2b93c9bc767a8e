// Package job is the durable background work layer: jobs are persisted in
// Postgres and dispatched over AMQP, so an ingestion survives worker
// restarts and broker hiccups.
package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// TaskTypeIngest runs a registered document through the ingestion
// pipeline. The same task serves first-time ingestion and re-ingestion;
// the document's own status decides what the pipeline does.
const TaskTypeIngest = "ingest"

// IngestPayload is the payload of a TaskTypeIngest job.
type IngestPayload struct {
	DocumentID int64 `json:"document_id"`
}

// Job represents a background job
type Job struct {
	ID        int             `json:"id"`
	TaskType  string          `json:"task_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobRepository defines the interface for job persistence
type JobRepository interface {
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error)
	Get(ctx context.Context, id int) (*Job, error)
	UpdateStatus(ctx context.Context, id int, status JobStatus, err *string) error
}
