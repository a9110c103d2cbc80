package models

import (
	"fmt"
	"time"
)

// ErrorKind classifies failures seen by the ingestion pipeline.
type ErrorKind string

const (
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindUpstream        ErrorKind = "upstream"
	ErrorKindStorageConflict ErrorKind = "storage_conflict"
	ErrorKindStorageFatal    ErrorKind = "storage_fatal"
	ErrorKindCanceled        ErrorKind = "canceled"
)

// IngestionError is the normalised last-error record of a run.
type IngestionError struct {
	Message      string    `json:"message"`
	ProviderCode string    `json:"code,omitempty"`
	HTTPStatus   int       `json:"status,omitempty"`
	Kind         ErrorKind `json:"kind"`
}

func (e *IngestionError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Kind, e.HTTPStatus)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

// FetchAttempt is the per-attempt bookkeeping of one ingestion cycle. It is never persisted.
type FetchAttempt struct {
	Attempt   int             `json:"attempt"`
	APICalls  int             `json:"api_calls"`
	LastError *IngestionError `json:"last_error,omitempty"`
}

// IngestionResult is the terminal output of one ingestion run.
type IngestionResult struct {
	RunID             string          `json:"run_id"`
	Success           bool            `json:"success"`
	Error             *IngestionError `json:"error"`
	UsedFallbackCache bool            `json:"used_fallback_cache,omitempty"`
	Skipped           bool            `json:"skipped,omitempty"`
	Attempts          int             `json:"attempts"`
	APICalls          int             `json:"api_calls"`
	BatchesCommitted  int             `json:"batches_committed"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
}
