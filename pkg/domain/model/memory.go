package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// MemoryID is a UUID-based identifier for MemoryNode
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryNode is one observation or reflection in a session's memory stream.
// Everything except LastAccessedAt is fixed at creation.
type MemoryNode struct {
	ID             MemoryID
	SessionID      string
	Kind           types.MemoryKind
	Content        string
	Embedding      []float32
	Importance     float64 // in [0,1], assigned by the importance rater
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Validate checks the node invariants against the configured dimension
func (n *MemoryNode) Validate(dimension int) error {
	if n.ID == "" {
		return goerr.Wrap(ErrInvalidRecord, "memory ID is required")
	}
	if !n.Kind.IsValid() {
		return goerr.Wrap(ErrInvalidRecord, "invalid memory kind", goerr.V("kind", n.Kind), goerr.V(RecordIDKey, n.ID))
	}
	if n.Importance < 0 || n.Importance > 1 {
		return goerr.Wrap(ErrInvalidRecord, "importance must be between 0 and 1",
			goerr.V("importance", n.Importance), goerr.V(RecordIDKey, n.ID))
	}
	if n.LastAccessedAt.Before(n.CreatedAt) {
		return goerr.Wrap(ErrInvalidRecord, "last accessed time precedes creation time", goerr.V(RecordIDKey, n.ID))
	}
	return CheckDimension(n.Embedding, dimension)
}

// Copy returns a deep copy of the node
func (n *MemoryNode) Copy() *MemoryNode {
	copied := *n
	if n.Embedding != nil {
		copied.Embedding = make([]float32, len(n.Embedding))
		copy(copied.Embedding, n.Embedding)
	}
	return &copied
}

// memoryPayload is the JSON stored in VectorRecord.Payload for memory nodes
type memoryPayload struct {
	SessionID      string           `json:"session_id"`
	Kind           types.MemoryKind `json:"kind"`
	Content        string           `json:"content"`
	Importance     float64          `json:"importance"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
}

// ToVectorRecord converts the node into its durable vector store form
func (n *MemoryNode) ToVectorRecord() (*VectorRecord, error) {
	payload, err := json.Marshal(memoryPayload{
		SessionID:      n.SessionID,
		Kind:           n.Kind,
		Content:        n.Content,
		Importance:     n.Importance,
		CreatedAt:      n.CreatedAt,
		LastAccessedAt: n.LastAccessedAt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal memory payload", goerr.V(RecordIDKey, n.ID))
	}

	rec := &VectorRecord{
		OwnerType: types.OwnerTypeMemory,
		ID:        string(n.ID),
		Metadata: Metadata{
			MetaSessionID: n.SessionID,
			MetaKind:      n.Kind.String(),
		},
		Payload:   payload,
		CreatedAt: n.CreatedAt,
	}
	if n.Embedding != nil {
		rec.Vector = make([]float32, len(n.Embedding))
		copy(rec.Vector, n.Embedding)
	}
	return rec, nil
}

// MemoryNodeFromRecord restores a node from its vector store form
func MemoryNodeFromRecord(rec *VectorRecord) (*MemoryNode, error) {
	if rec.OwnerType != types.OwnerTypeMemory {
		return nil, goerr.Wrap(ErrInvalidRecord, "record is not a memory",
			goerr.V(OwnerTypeKey, rec.OwnerType), goerr.V(RecordIDKey, rec.ID))
	}

	var p memoryPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory payload", goerr.V(RecordIDKey, rec.ID))
	}

	node := &MemoryNode{
		ID:             MemoryID(rec.ID),
		SessionID:      p.SessionID,
		Kind:           p.Kind,
		Content:        p.Content,
		Importance:     p.Importance,
		CreatedAt:      p.CreatedAt,
		LastAccessedAt: p.LastAccessedAt,
	}
	if rec.Vector != nil {
		node.Embedding = make([]float32, len(rec.Vector))
		copy(node.Embedding, rec.Vector)
	}
	return node, nil
}
