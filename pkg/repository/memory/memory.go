package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// Memory is an in-process VectorStore. Search is a linear cosine scan, which
// is fine for the few thousand records a single advisory deployment holds.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	records   map[types.OwnerType]map[string]*model.VectorRecord
	now       func() time.Time
}

var _ interfaces.VectorStore = &Memory{}

type Option func(*Memory)

// WithClock replaces the clock used to stamp UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

func New(dimension int, opts ...Option) *Memory {
	m := &Memory{
		dimension: dimension,
		records:   make(map[types.OwnerType]map[string]*model.VectorRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Dimension() int {
	return m.dimension
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if err := rec.Validate(m.dimension); err != nil {
		return err
	}

	stored := rec.Copy()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.records[stored.OwnerType]
	if !ok {
		bucket = make(map[string]*model.VectorRecord)
		m.records[stored.OwnerType] = bucket
	}

	now := m.now()
	if stored.CreatedAt.IsZero() {
		if existing, ok := bucket[stored.ID]; ok {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
	}
	stored.UpdatedAt = now

	bucket[stored.ID] = stored
	return nil
}

func (m *Memory) Get(ctx context.Context, ownerType types.OwnerType, id string) (*model.VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[ownerType][id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "vector record not found",
			goerr.V(model.OwnerTypeKey, ownerType), goerr.V(model.RecordIDKey, id))
	}
	return rec.Copy(), nil
}

func (m *Memory) List(ctx context.Context, ownerType types.OwnerType, filter model.Metadata) ([]*model.VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.records[ownerType]
	result := make([]*model.VectorRecord, 0, len(bucket))
	for _, rec := range bucket {
		if !rec.Metadata.Matches(filter) {
			continue
		}
		result = append(result, rec.Copy())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (m *Memory) Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error) {
	if err := model.CheckDimension(query, m.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.SearchResult{}, nil
	}

	m.mu.RLock()
	bucket := m.records[ownerType]
	candidates := make([]*model.SearchResult, 0, len(bucket))
	for _, rec := range bucket {
		if !rec.Metadata.Matches(filter) {
			continue
		}
		candidates = append(candidates, &model.SearchResult{
			Record:     rec.Copy(),
			Similarity: model.CosineSimilarity(query, rec.Vector),
		})
	}
	m.mu.RUnlock()

	model.RankResults(candidates)

	if topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

func (m *Memory) Delete(ctx context.Context, ownerType types.OwnerType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records[ownerType], id)
	return nil
}

// Len returns the number of records held for the owner type
func (m *Memory) Len(ownerType types.OwnerType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[ownerType])
}
