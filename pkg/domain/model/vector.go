package model

import (
	"maps"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// Metadata is the open key-value map stored next to each vector.
// Well-known keys are listed below; any other key is allowed.
type Metadata map[string]string

// Well-known metadata keys
const (
	MetaSessionID  = "session_id"
	MetaKind       = "kind"
	MetaTaskType   = "task_type"
	MetaDomain     = "domain"
	MetaConfidence = "confidence"
)

// Matches reports whether every key/value pair in filter is present in m.
// A nil or empty filter matches everything.
func (m Metadata) Matches(filter Metadata) bool {
	for k, v := range filter {
		if got, ok := m[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Copy returns an independent copy of the metadata
func (m Metadata) Copy() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// VectorRecord is one stored tuple of (owner type, id, vector, metadata, payload).
// The store does not interpret Payload; each owner type encodes its own JSON there.
type VectorRecord struct {
	OwnerType types.OwnerType
	ID        string
	Vector    []float32
	Metadata  Metadata
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the record shape against the configured dimension
func (r *VectorRecord) Validate(dimension int) error {
	if !r.OwnerType.IsValid() {
		return goerr.Wrap(ErrInvalidRecord, "invalid owner type", goerr.V(OwnerTypeKey, r.OwnerType))
	}
	if r.ID == "" {
		return goerr.Wrap(ErrInvalidRecord, "record ID is required", goerr.V(OwnerTypeKey, r.OwnerType))
	}
	return CheckDimension(r.Vector, dimension)
}

// Copy returns a deep copy so callers never share slices or maps with a store
func (r *VectorRecord) Copy() *VectorRecord {
	copied := &VectorRecord{
		OwnerType: r.OwnerType,
		ID:        r.ID,
		Metadata:  r.Metadata.Copy(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Vector != nil {
		copied.Vector = make([]float32, len(r.Vector))
		copy(copied.Vector, r.Vector)
	}
	if r.Payload != nil {
		copied.Payload = make([]byte, len(r.Payload))
		copy(copied.Payload, r.Payload)
	}
	return copied
}

// SearchResult is a record paired with its cosine similarity to the query
type SearchResult struct {
	Record     *VectorRecord
	Similarity float64
}

// CheckDimension returns ErrDimensionMismatch when len(vec) != dimension
func CheckDimension(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return goerr.Wrap(ErrDimensionMismatch, "vector length does not match store dimension",
			goerr.V(ExpectedKey, dimension),
			goerr.V(ActualKey, len(vec)),
		)
	}
	return nil
}
