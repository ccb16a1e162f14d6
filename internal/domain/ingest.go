package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of a corpus ingestion job
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob is a queued request to pull one source document from the
// corpus bucket, chunk it, embed the chunks and store them.
type IngestJob struct {
	ID          string
	ObjectKey   string
	Category    string
	Status      IngestJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIngestJob creates a pending IngestJob for a bucket object.
func NewIngestJob(id, objectKey, category string) *IngestJob {
	return &IngestJob{
		ID:        id,
		ObjectKey: objectKey,
		Category:  category,
		Status:    IngestJobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateIngestJob validates an IngestJob instance
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}

	if j.ObjectKey == "" {
		return fmt.Errorf("ingest job object key is required")
	}

	if !isValidIngestJobStatus(j.Status) {
		return fmt.Errorf("ingest job status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("ingest job retries cannot be negative")
	}

	return nil
}

func isValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
