package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// CaseBase searches summaries of past interactions
type CaseBase struct {
	store    interfaces.VectorStore
	embedder interfaces.Embedder
	now      func() time.Time
}

func NewCaseBase(store interfaces.VectorStore, embedder interfaces.Embedder) *CaseBase {
	return &CaseBase{
		store:    store,
		embedder: embedder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Retrieve returns up to topK cases most similar to queryText, optionally
// restricted to taskType
func (b *CaseBase) Retrieve(ctx context.Context, queryText string, topK int, taskType string) ([]*model.ScoredCase, error) {
	if topK <= 0 {
		return []*model.ScoredCase{}, nil
	}

	query, err := b.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed case query")
	}
	return b.RetrieveByEmbedding(ctx, query, topK, taskType)
}

func (b *CaseBase) RetrieveByEmbedding(ctx context.Context, query []float32, topK int, taskType string) ([]*model.ScoredCase, error) {
	if topK <= 0 {
		return []*model.ScoredCase{}, nil
	}

	var filter model.Metadata
	if taskType != "" {
		filter = model.Metadata{model.MetaTaskType: taskType}
	}

	results, err := b.store.Search(ctx, types.OwnerTypeCase, query, topK, filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search cases", goerr.V("task_type", taskType))
	}

	cases := make([]*model.ScoredCase, 0, len(results))
	for _, r := range results {
		c, err := model.CaseRecordFromRecord(r.Record)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode case")
		}
		cases = append(cases, &model.ScoredCase{Case: c, Similarity: r.Similarity})
	}
	return cases, nil
}

// Put stores a case, embedding its summary when no embedding is given
func (b *CaseBase) Put(ctx context.Context, c *model.CaseRecord) error {
	if c.ID == "" {
		return goerr.Wrap(model.ErrInvalidRecord, "case ID is required")
	}

	stored := *c
	if len(stored.Embedding) == 0 {
		if stored.Summary == "" {
			return goerr.Wrap(model.ErrInvalidRecord, "case needs a summary or an embedding", goerr.V(CaseIDKey, c.ID))
		}
		emb, err := b.embedder.Embed(ctx, stored.Summary)
		if err != nil {
			return goerr.Wrap(err, "failed to embed case summary", goerr.V(CaseIDKey, c.ID))
		}
		stored.Embedding = emb
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = b.now()
	}

	rec, err := stored.ToVectorRecord()
	if err != nil {
		return err
	}
	if err := b.store.Upsert(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to store case", goerr.V(CaseIDKey, c.ID))
	}
	return nil
}

// Get returns a stored case
func (b *CaseBase) Get(ctx context.Context, id string) (*model.CaseRecord, error) {
	rec, err := b.store.Get(ctx, types.OwnerTypeCase, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(CaseIDKey, id))
	}
	return model.CaseRecordFromRecord(rec)
}

// Delete removes a case; unknown IDs are ignored
func (b *CaseBase) Delete(ctx context.Context, id string) error {
	if err := b.store.Delete(ctx, types.OwnerTypeCase, id); err != nil {
		return goerr.Wrap(err, "failed to delete case", goerr.V(CaseIDKey, id))
	}
	return nil
}
