package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by the vector store backends and the retrieval core
var (
	// ErrDimensionMismatch means a vector length disagrees with the configured dimension.
	// Vectors are never truncated or padded.
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")

	// ErrStorageUnavailable means the backing store could not be reached or failed an I/O operation
	ErrStorageUnavailable = goerr.New("storage unavailable")

	// ErrRatingUnavailable means the reasoning oracle failed to produce a usable importance rating.
	// It is absorbed by the rater and only appears in logs.
	ErrRatingUnavailable = goerr.New("importance rating unavailable")

	// ErrEmbeddingUnavailable means the embedding provider failed
	ErrEmbeddingUnavailable = goerr.New("embedding unavailable")

	// ErrNotFound means the requested record does not exist
	ErrNotFound = goerr.New("record not found")

	// ErrInvalidRecord means a record failed validation before being stored
	ErrInvalidRecord = goerr.New("invalid record")

	// ErrInvalidConfidence means a confidence value is outside [0,1]
	ErrInvalidConfidence = goerr.New("confidence must be between 0 and 1")
)

// Context keys for error values
const (
	OwnerTypeKey = "owner_type"
	RecordIDKey  = "record_id"
	ExpectedKey  = "expected"
	ActualKey    = "actual"
	SessionIDKey = "session_id"
)
