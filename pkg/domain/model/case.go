package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// CaseRecord is a summary of a past interaction. Records are written by an
// external learning process and only read and scored here.
type CaseRecord struct {
	ID        string
	TaskType  string          // categorical filter key
	Summary   string          // text the embedding is computed from
	Payload   json.RawMessage // opaque summary payload, passed through untouched
	Embedding []float32
	CreatedAt time.Time
}

// ScoredCase is a case paired with its similarity to the query
type ScoredCase struct {
	Case       *CaseRecord
	Similarity float64
}

type casePayload struct {
	TaskType  string          `json:"task_type"`
	Summary   string          `json:"summary"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToVectorRecord converts the case into its durable vector store form
func (c *CaseRecord) ToVectorRecord() (*VectorRecord, error) {
	payload, err := json.Marshal(casePayload{
		TaskType:  c.TaskType,
		Summary:   c.Summary,
		Payload:   c.Payload,
		CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal case payload", goerr.V(RecordIDKey, c.ID))
	}

	meta := Metadata{}
	if c.TaskType != "" {
		meta[MetaTaskType] = c.TaskType
	}

	return &VectorRecord{
		OwnerType: types.OwnerTypeCase,
		ID:        c.ID,
		Vector:    append([]float32(nil), c.Embedding...),
		Metadata:  meta,
		Payload:   payload,
		CreatedAt: c.CreatedAt,
	}, nil
}

// CaseRecordFromRecord restores a case from its vector store form
func CaseRecordFromRecord(rec *VectorRecord) (*CaseRecord, error) {
	if rec.OwnerType != types.OwnerTypeCase {
		return nil, goerr.Wrap(ErrInvalidRecord, "record is not a case",
			goerr.V(OwnerTypeKey, rec.OwnerType), goerr.V(RecordIDKey, rec.ID))
	}

	var p casePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal case payload", goerr.V(RecordIDKey, rec.ID))
	}

	return &CaseRecord{
		ID:        rec.ID,
		TaskType:  p.TaskType,
		Summary:   p.Summary,
		Payload:   p.Payload,
		Embedding: append([]float32(nil), rec.Vector...),
		CreatedAt: p.CreatedAt,
	}, nil
}
