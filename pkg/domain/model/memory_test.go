package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

func TestNewMemoryID(t *testing.T) {
	id1 := model.NewMemoryID()
	id2 := model.NewMemoryID()

	gt.Value(t, string(id1)).NotEqual("")
	gt.Value(t, string(id2)).NotEqual("")
	gt.Value(t, id1).NotEqual(id2)
}

func newTestNode() *model.MemoryNode {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.MemoryNode{
		ID:             model.NewMemoryID(),
		SessionID:      "session-1",
		Kind:           types.MemoryKindObservation,
		Content:        "Customer wants to refinance before the rate change",
		Embedding:      []float32{0.1, 0.2, 0.3},
		Importance:     0.7,
		CreatedAt:      created,
		LastAccessedAt: created.Add(time.Minute),
	}
}

func TestMemoryNode_Validate(t *testing.T) {
	t.Run("valid node", func(t *testing.T) {
		gt.NoError(t, newTestNode().Validate(3))
	})

	t.Run("importance above 1 is rejected", func(t *testing.T) {
		n := newTestNode()
		n.Importance = 1.2
		gt.Error(t, n.Validate(3)).Is(model.ErrInvalidRecord)
	})

	t.Run("last access before creation is rejected", func(t *testing.T) {
		n := newTestNode()
		n.LastAccessedAt = n.CreatedAt.Add(-time.Second)
		gt.Error(t, n.Validate(3)).Is(model.ErrInvalidRecord)
	})

	t.Run("wrong embedding dimension is rejected", func(t *testing.T) {
		err := newTestNode().Validate(4)
		gt.Bool(t, errors.Is(err, model.ErrDimensionMismatch)).True()
	})

	t.Run("invalid kind is rejected", func(t *testing.T) {
		n := newTestNode()
		n.Kind = "plan"
		gt.Error(t, n.Validate(3)).Is(model.ErrInvalidRecord)
	})
}

func TestMemoryNode_VectorRecordRoundTrip(t *testing.T) {
	node := newTestNode()

	rec, err := node.ToVectorRecord()
	gt.NoError(t, err).Required()

	gt.Value(t, rec.OwnerType).Equal(types.OwnerTypeMemory)
	gt.Value(t, rec.ID).Equal(string(node.ID))
	gt.Value(t, rec.Metadata[model.MetaSessionID]).Equal("session-1")
	gt.Value(t, rec.Metadata[model.MetaKind]).Equal("observation")
	gt.Array(t, rec.Vector).Length(3)

	restored, err := model.MemoryNodeFromRecord(rec)
	gt.NoError(t, err).Required()

	gt.Value(t, restored.ID).Equal(node.ID)
	gt.Value(t, restored.SessionID).Equal(node.SessionID)
	gt.Value(t, restored.Kind).Equal(node.Kind)
	gt.Value(t, restored.Content).Equal(node.Content)
	gt.Value(t, restored.Importance).Equal(node.Importance)
	gt.Value(t, restored.Embedding).Equal(node.Embedding)
	gt.Bool(t, restored.CreatedAt.Equal(node.CreatedAt)).True()
	gt.Bool(t, restored.LastAccessedAt.Equal(node.LastAccessedAt)).True()
}

func TestMemoryNode_Copy(t *testing.T) {
	node := newTestNode()
	copied := node.Copy()
	copied.Embedding[0] = 9

	gt.Value(t, node.Embedding[0]).Equal(float32(0.1))
}

func TestMemoryNodeFromRecord_RejectsOtherOwner(t *testing.T) {
	rec := &model.VectorRecord{OwnerType: types.OwnerTypeCase, ID: "c1", Payload: []byte(`{}`)}
	_, err := model.MemoryNodeFromRecord(rec)
	gt.Error(t, err).Is(model.ErrInvalidRecord)
}
