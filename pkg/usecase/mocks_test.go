package usecase_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
)

const testDim = 4

// vec builds a testDim vector from leading weights
func vec(weights ...float32) []float32 {
	v := make([]float32, testDim)
	copy(v, weights)
	return v
}

// atAngle returns a unit vector whose cosine with vec(1) is cos
func atAngle(cos float64) []float32 {
	return vec(float32(cos), float32(math.Sqrt(1-cos*cos)))
}

// mockEmbedder returns a registered vector per text, vec(1) otherwise
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
}

var _ interfaces.Embedder = &mockEmbedder{}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: map[string][]float32{}}
}

func (m *mockEmbedder) set(text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = v
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return vec(1), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (m *mockEmbedder) Dimension() int {
	return testDim
}

// mockRater returns queued importances in order, then 0.5
type mockRater struct {
	mu     sync.Mutex
	values []float64
	calls  int
}

var _ interfaces.ImportanceRater = &mockRater{}

func (m *mockRater) Rate(ctx context.Context, content string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.values) == 0 {
		return 0.5
	}
	v := m.values[0]
	m.values = m.values[1:]
	return v
}

// hookStore is an in-memory store whose operations can be intercepted
type hookStore struct {
	*memory.Memory
	upsertFn func(ctx context.Context, rec *model.VectorRecord) error
	searchFn func(ctx context.Context, ownerType types.OwnerType) error
	deleteFn func(ctx context.Context, ownerType types.OwnerType, id string) error
}

var _ interfaces.VectorStore = &hookStore{}

func newHookStore() *hookStore {
	return &hookStore{Memory: memory.New(testDim)}
}

func (s *hookStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if s.upsertFn != nil {
		if err := s.upsertFn(ctx, rec); err != nil {
			return err
		}
	}
	return s.Memory.Upsert(ctx, rec)
}

func (s *hookStore) Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error) {
	if s.searchFn != nil {
		if err := s.searchFn(ctx, ownerType); err != nil {
			return nil, err
		}
	}
	return s.Memory.Search(ctx, ownerType, query, topK, filter)
}

func (s *hookStore) Delete(ctx context.Context, ownerType types.OwnerType, id string) error {
	if s.deleteFn != nil {
		if err := s.deleteFn(ctx, ownerType, id); err != nil {
			return err
		}
	}
	return s.Memory.Delete(ctx, ownerType, id)
}

// fixedClock is a settable clock
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
