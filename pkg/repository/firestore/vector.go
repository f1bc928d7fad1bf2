package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// vectorDoc is the Firestore document representation of model.VectorRecord.
// Vector is stored as firestore.Vector32 so that FindNearest works.
type vectorDoc struct {
	ID        string             `firestore:"ID"`
	OwnerType string             `firestore:"OwnerType"`
	Vector    firestore.Vector32 `firestore:"Vector"`
	Metadata  map[string]string  `firestore:"Metadata"`
	Payload   []byte             `firestore:"Payload"`
	CreatedAt time.Time          `firestore:"CreatedAt"`
	UpdatedAt time.Time          `firestore:"UpdatedAt"`
}

func toVectorDoc(rec *model.VectorRecord) *vectorDoc {
	return &vectorDoc{
		ID:        rec.ID,
		OwnerType: rec.OwnerType.String(),
		Vector:    firestore.Vector32(append([]float32(nil), rec.Vector...)),
		Metadata:  rec.Metadata.Copy(),
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func fromVectorDoc(d *vectorDoc) *model.VectorRecord {
	rec := &model.VectorRecord{
		OwnerType: types.OwnerType(d.OwnerType),
		ID:        d.ID,
		Payload:   d.Payload,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if len(d.Metadata) > 0 {
		rec.Metadata = model.Metadata(d.Metadata)
	}
	if len(d.Vector) > 0 {
		rec.Vector = []float32(d.Vector)
	}
	return rec
}

// CollectionName returns the collection holding records of ownerType
func CollectionName(prefix string, ownerType types.OwnerType) string {
	return prefix + ownerType.String() + "_vectors"
}

func (f *Firestore) collection(ownerType types.OwnerType) *firestore.CollectionRef {
	return f.client.Collection(CollectionName(f.collectionPrefix, ownerType))
}

// filtered applies an equality predicate per metadata key
func (f *Firestore) filtered(ownerType types.OwnerType, filter model.Metadata) firestore.Query {
	q := f.collection(ownerType).Query
	for k, v := range filter {
		q = q.WherePath(firestore.FieldPath{"Metadata", k}, "==", v)
	}
	return q
}

func (f *Firestore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if err := rec.Validate(f.dimension); err != nil {
		return err
	}

	doc := toVectorDoc(rec)
	docRef := f.collection(rec.OwnerType).Doc(rec.ID)

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := f.now()
		doc.UpdatedAt = now
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
			snap, err := tx.Get(docRef)
			if err != nil && status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get existing vector record")
			}
			if err == nil {
				var existing vectorDoc
				if err := snap.DataTo(&existing); err != nil {
					return goerr.Wrap(err, "failed to unmarshal existing vector record")
				}
				doc.CreatedAt = existing.CreatedAt
			}
		}
		return tx.Set(docRef, doc)
	})
	if err != nil {
		return goerr.Wrap(model.ErrStorageUnavailable, "failed to upsert vector record",
			goerr.V(model.OwnerTypeKey, rec.OwnerType),
			goerr.V(model.RecordIDKey, rec.ID),
			goerr.V("error", err.Error()))
	}

	return nil
}

func (f *Firestore) Get(ctx context.Context, ownerType types.OwnerType, id string) (*model.VectorRecord, error) {
	snap, err := f.collection(ownerType).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "vector record not found",
				goerr.V(model.OwnerTypeKey, ownerType), goerr.V(model.RecordIDKey, id))
		}
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to get vector record",
			goerr.V(model.OwnerTypeKey, ownerType),
			goerr.V(model.RecordIDKey, id),
			goerr.V("error", err.Error()))
	}

	var d vectorDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal vector record", goerr.V(model.RecordIDKey, id))
	}

	return fromVectorDoc(&d), nil
}

func (f *Firestore) List(ctx context.Context, ownerType types.OwnerType, filter model.Metadata) ([]*model.VectorRecord, error) {
	iter := f.filtered(ownerType, filter).Documents(ctx)
	defer iter.Stop()

	records := make([]*model.VectorRecord, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to iterate vector records",
				goerr.V(model.OwnerTypeKey, ownerType), goerr.V("error", err.Error()))
		}

		var d vectorDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal vector record")
		}
		records = append(records, fromVectorDoc(&d))
	}

	// sorted locally so metadata filters need no composite index with CreatedAt
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (f *Firestore) Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error) {
	if err := model.CheckDimension(query, f.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.SearchResult{}, nil
	}

	limit := min(topK*f.overfetch, maxFindNearestLimit)
	limit = max(limit, min(topK, maxFindNearestLimit))

	vq := f.filtered(ownerType, filter).
		FindNearest("Vector", firestore.Vector32(query), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.SearchResult, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to iterate vector search results",
				goerr.V(model.OwnerTypeKey, ownerType), goerr.V("error", err.Error()))
		}

		var d vectorDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal vector search result")
		}
		rec := fromVectorDoc(&d)
		if !rec.Metadata.Matches(filter) {
			continue
		}

		results = append(results, &model.SearchResult{
			Record:     rec,
			Similarity: model.CosineSimilarity(query, rec.Vector),
		})
	}

	// Firestore orders by distance only; re-rank for the recency tie-break
	model.RankResults(results)
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (f *Firestore) Delete(ctx context.Context, ownerType types.OwnerType, id string) error {
	if _, err := f.collection(ownerType).Doc(id).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return goerr.Wrap(model.ErrStorageUnavailable, "failed to delete vector record",
			goerr.V(model.OwnerTypeKey, ownerType),
			goerr.V(model.RecordIDKey, id),
			goerr.V("error", err.Error()))
	}
	return nil
}
