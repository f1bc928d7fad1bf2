package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// VectorStore is the single persistence abstraction shared by the memory
// stream, the case base and the rule base. Records are partitioned by owner
// type and addressed by (owner type, id); every vector must have exactly
// Dimension() elements.
type VectorStore interface {
	// Upsert inserts or replaces the record with the same (owner type, id).
	// A record with the wrong vector length is rejected with
	// model.ErrDimensionMismatch and the store is left unchanged.
	Upsert(ctx context.Context, rec *model.VectorRecord) error

	// Get retrieves a single record. Returns model.ErrNotFound when absent.
	Get(ctx context.Context, ownerType types.OwnerType, id string) (*model.VectorRecord, error)

	// List returns every record of the owner type whose metadata matches filter,
	// ordered by CreatedAt ascending
	List(ctx context.Context, ownerType types.OwnerType, filter model.Metadata) ([]*model.VectorRecord, error)

	// Search returns at most topK records of the owner type whose metadata
	// matches filter, ordered by cosine similarity descending. Ties put the most
	// recently created record first. topK <= 0 returns an empty result.
	Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error)

	// Delete removes the record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, ownerType types.OwnerType, id string) error

	// Dimension returns the configured embedding dimension
	Dimension() int

	// Close releases underlying connections
	Close() error
}
