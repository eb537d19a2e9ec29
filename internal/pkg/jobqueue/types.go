package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeCaptureWallet JobType = "capture_wallet"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// CaptureJobPayload contains the payload for wallet capture jobs
type CaptureJobPayload struct {
	Reference string `json:"reference"`
	// Amount in currency units as an exact decimal string.
	Amount string `json:"amount"`
}

// ParseCaptureJobPayload extracts a typed capture payload from a job.
func ParseCaptureJobPayload(job *Job) (*CaptureJobPayload, error) {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal capture payload: %w", err)
	}
	var payload CaptureJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse capture payload: %w", err)
	}
	if payload.Reference == "" {
		return nil, fmt.Errorf("capture payload has no reference")
	}
	if _, err := decimal.NewFromString(payload.Amount); err != nil {
		return nil, fmt.Errorf("capture payload has invalid amount %q: %w", payload.Amount, err)
	}
	return &payload, nil
}
