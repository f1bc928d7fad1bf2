package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// MemoryStream is the ordered memory of one session. Nodes live in process
// memory and, when a VectorStore is configured, are mirrored into it so the
// stream survives restarts. Without a store the stream is ephemeral.
type MemoryStream struct {
	mu sync.Mutex
	// persistMu orders store writes against Delete and Clear; it is taken
	// before mu when both are held
	persistMu sync.Mutex
	sessionID string
	nodes     []*model.MemoryNode // creation order

	embedder interfaces.Embedder
	rater    interfaces.ImportanceRater
	store    interfaces.VectorStore
	scoring  model.ScoringConfig
	now      func() time.Time

	tolerateStorageFailure bool
}

type MemoryStreamOption func(*MemoryStream)

// WithStore makes the stream durable
func WithStore(store interfaces.VectorStore) MemoryStreamOption {
	return func(s *MemoryStream) {
		s.store = store
	}
}

func WithScoring(cfg model.ScoringConfig) MemoryStreamOption {
	return func(s *MemoryStream) {
		s.scoring = cfg
	}
}

func WithStreamClock(now func() time.Time) MemoryStreamOption {
	return func(s *MemoryStream) {
		s.now = now
	}
}

// WithTolerateStorageFailure keeps the stream working in ephemeral mode when
// the store reports ErrStorageUnavailable
func WithTolerateStorageFailure(tolerate bool) MemoryStreamOption {
	return func(s *MemoryStream) {
		s.tolerateStorageFailure = tolerate
	}
}

func NewMemoryStream(sessionID string, embedder interfaces.Embedder, rater interfaces.ImportanceRater, opts ...MemoryStreamOption) (*MemoryStream, error) {
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	if rater == nil {
		return nil, goerr.New("importance rater is required")
	}

	s := &MemoryStream{
		sessionID: sessionID,
		embedder:  embedder,
		rater:     rater,
		scoring:   model.DefaultScoringConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.scoring.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid scoring configuration")
	}
	if s.store != nil && s.store.Dimension() != embedder.Dimension() {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "store and embedder dimensions differ",
			goerr.V(model.ExpectedKey, s.store.Dimension()),
			goerr.V(model.ActualKey, embedder.Dimension()))
	}

	return s, nil
}

func (s *MemoryStream) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Len returns the number of nodes in the stream
func (s *MemoryStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Nodes returns a snapshot of the nodes in creation order
func (s *MemoryStream) Nodes() []*model.MemoryNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*model.MemoryNode, len(s.nodes))
	for i, n := range s.nodes {
		result[i] = n.Copy()
	}
	return result
}

// Durable reports whether a store is configured
func (s *MemoryStream) Durable() bool {
	return s.store != nil
}

// persistFailed decides whether a store error is fatal to the operation
func (s *MemoryStream) persistFailed(ctx context.Context, err error, msg string) error {
	if s.tolerateStorageFailure && errors.Is(err, model.ErrStorageUnavailable) {
		logging.From(ctx).Warn(msg+", continuing without persistence",
			"error", err,
			"session_id", s.sessionID,
		)
		return nil
	}
	return goerr.Wrap(err, msg, goerr.V(model.SessionIDKey, s.sessionID))
}

// Add embeds and rates content, then appends the new node. The stream is only
// changed after embedding, rating and (when durable) persisting succeeded.
func (s *MemoryStream) Add(ctx context.Context, kind types.MemoryKind, content string) (*model.MemoryNode, error) {
	if !kind.IsValid() {
		return nil, goerr.Wrap(model.ErrInvalidRecord, "invalid memory kind", goerr.V("kind", kind))
	}
	if strings.TrimSpace(content) == "" {
		return nil, goerr.Wrap(model.ErrInvalidRecord, "memory content is empty")
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory content", goerr.V(model.SessionIDKey, s.sessionID))
	}

	importance := s.rater.Rate(ctx, content)

	now := s.now()
	node := &model.MemoryNode{
		ID:             model.NewMemoryID(),
		SessionID:      s.SessionID(),
		Kind:           kind,
		Content:        content,
		Embedding:      embedding,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := node.Validate(s.embedder.Dimension()); err != nil {
		return nil, goerr.Wrap(err, "invalid memory node", goerr.V(model.SessionIDKey, s.sessionID))
	}

	s.persistMu.Lock()
	if s.store != nil {
		if err := s.persist(ctx, node); err != nil {
			if err := s.persistFailed(ctx, err, "failed to persist memory"); err != nil {
				s.persistMu.Unlock()
				return nil, err
			}
		}
	}

	s.mu.Lock()
	s.nodes = append(s.nodes, node)
	s.mu.Unlock()
	s.persistMu.Unlock()

	logging.From(ctx).Debug("memory added",
		"session_id", node.SessionID,
		"memory_id", node.ID,
		"kind", node.Kind,
		"importance", node.Importance,
	)

	return node.Copy(), nil
}

func (s *MemoryStream) persist(ctx context.Context, node *model.MemoryNode) error {
	rec, err := node.ToVectorRecord()
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, rec)
}

// Load replaces the in-process nodes with the persisted nodes of sessionID
func (s *MemoryStream) Load(ctx context.Context, sessionID string) error {
	if s.store == nil {
		return goerr.Wrap(ErrStoreNotConfigured, "cannot load memory stream", goerr.V(model.SessionIDKey, sessionID))
	}

	records, err := s.store.List(ctx, types.OwnerTypeMemory, model.Metadata{model.MetaSessionID: sessionID})
	if err != nil {
		return goerr.Wrap(err, "failed to list persisted memories", goerr.V(model.SessionIDKey, sessionID))
	}

	nodes := make([]*model.MemoryNode, 0, len(records))
	for _, rec := range records {
		node, err := model.MemoryNodeFromRecord(rec)
		if err != nil {
			return goerr.Wrap(err, "failed to restore memory", goerr.V(model.SessionIDKey, sessionID))
		}
		nodes = append(nodes, node)
	}

	slices.SortStableFunc(nodes, func(a, b *model.MemoryNode) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})

	s.mu.Lock()
	s.sessionID = sessionID
	s.nodes = nodes
	s.mu.Unlock()

	logging.From(ctx).Debug("memory stream loaded", "session_id", sessionID, "count", len(nodes))
	return nil
}

// Retrieve embeds queryText and returns the topK nodes by blended score
func (s *MemoryStream) Retrieve(ctx context.Context, queryText string, topK int) ([]*model.MemoryNode, error) {
	if topK <= 0 {
		return []*model.MemoryNode{}, nil
	}

	query, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory query", goerr.V(model.SessionIDKey, s.sessionID))
	}
	return s.RetrieveByEmbedding(ctx, query, topK)
}

type scoredNode struct {
	node  *model.MemoryNode
	score float64
}

// RetrieveByEmbedding ranks nodes against an already computed query embedding.
// Every returned node gets LastAccessedAt = now, written back when durable.
func (s *MemoryStream) RetrieveByEmbedding(ctx context.Context, query []float32, topK int) ([]*model.MemoryNode, error) {
	if err := model.CheckDimension(query, s.embedder.Dimension()); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.MemoryNode{}, nil
	}

	s.mu.Lock()
	now := s.now()
	scored := make([]scoredNode, len(s.nodes))
	for i, n := range s.nodes {
		scored[i] = scoredNode{node: n, score: s.scoring.Score(n, query, now)}
	}

	slices.SortStableFunc(scored, func(a, b scoredNode) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		if c := b.node.CreatedAt.Compare(a.node.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.node.ID), string(b.node.ID))
	})

	if topK > len(scored) {
		topK = len(scored)
	}

	result := make([]*model.MemoryNode, 0, topK)
	for _, sn := range scored[:topK] {
		accessed := now
		if accessed.Before(sn.node.CreatedAt) {
			accessed = sn.node.CreatedAt
		}
		sn.node.LastAccessedAt = accessed
		result = append(result, sn.node.Copy())
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.writeBack(ctx, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// writeBack persists access times of nodes still in the stream. Nodes removed
// since ranking are skipped so a concurrent Delete or Clear stays final.
func (s *MemoryStream) writeBack(ctx context.Context, nodes []*model.MemoryNode) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	for _, node := range nodes {
		if !s.contains(node.ID) {
			continue
		}
		if err := s.persist(ctx, node); err != nil {
			return s.persistFailed(ctx, err, "failed to write back memory access time")
		}
	}
	return nil
}

func (s *MemoryStream) contains(id model.MemoryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.nodes, func(n *model.MemoryNode) bool {
		return n.ID == id
	})
}

// Delete removes one node from the stream and the store. Unknown IDs are ignored.
func (s *MemoryStream) Delete(ctx context.Context, id model.MemoryID) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, types.OwnerTypeMemory, string(id)); err != nil {
			if err := s.persistFailed(ctx, err, "failed to delete persisted memory"); err != nil {
				return goerr.Wrap(err, "delete memory", goerr.V(model.RecordIDKey, id))
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = slices.DeleteFunc(s.nodes, func(n *model.MemoryNode) bool {
		return n.ID == id
	})
	return nil
}

// Clear removes every node of the session from the stream and the store,
// including persisted nodes that were never loaded into this stream
func (s *MemoryStream) Clear(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	ids := make([]model.MemoryID, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	if s.store != nil {
		persisted, err := s.store.List(ctx, types.OwnerTypeMemory, model.Metadata{model.MetaSessionID: sessionID})
		if err != nil {
			if err := s.persistFailed(ctx, err, "failed to list persisted memories"); err != nil {
				return err
			}
		}
		for _, rec := range persisted {
			id := model.MemoryID(rec.ID)
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}

		for _, id := range ids {
			if err := s.store.Delete(ctx, types.OwnerTypeMemory, string(id)); err != nil {
				if err := s.persistFailed(ctx, err, "failed to clear persisted memories"); err != nil {
					return err
				}
				break
			}
		}
	}

	cleared := make(map[model.MemoryID]struct{}, len(ids))
	for _, id := range ids {
		cleared[id] = struct{}{}
	}

	s.mu.Lock()
	s.nodes = slices.DeleteFunc(s.nodes, func(n *model.MemoryNode) bool {
		_, ok := cleared[n.ID]
		return ok
	})
	s.mu.Unlock()

	logging.From(ctx).Debug("memory stream cleared", "session_id", s.SessionID(), "count", len(ids))
	return nil
}
