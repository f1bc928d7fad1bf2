package chromem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// Store is a VectorStore on top of chromem-go, an embedded vector database.
// Each owner type gets its own collection. chromem normalizes embeddings on
// insert, so the raw vector and the opaque payload travel in the document
// content as a JSON envelope and similarity is recomputed from it.
type Store struct {
	db        *chromem.DB
	dimension int
	prefix    string
	now       func() time.Time

	// upserts read the existing CreatedAt before writing
	writeMu sync.Mutex
}

var _ interfaces.VectorStore = &Store{}

type Option func(*Store)

// WithCollectionPrefix sets the prefix of the per-owner-type collection names
func WithCollectionPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock replaces the clock used to stamp UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens a persistent store under path. An empty path keeps everything in memory.
func New(path string, dimension int, opts ...Option) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to open chromem database",
				goerr.V("path", path), goerr.V("error", err.Error()))
		}
	}

	s := &Store{
		db:        db,
		dimension: dimension,
		prefix:    "mnemosyne",
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// envelope is stored as chromem.Document.Content
type envelope struct {
	Vector    []float32 `json:"vector"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) collection(ownerType types.OwnerType) (*chromem.Collection, error) {
	name := s.prefix + "_" + ownerType.String()
	col, err := s.db.GetOrCreateCollection(name, map[string]string{"owner_type": ownerType.String()}, nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to open chromem collection",
			goerr.V("collection", name), goerr.V("error", err.Error()))
	}
	return col, nil
}

func (s *Store) Dimension() int {
	return s.dimension
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	if err := rec.Validate(s.dimension); err != nil {
		return err
	}

	col, err := s.collection(rec.OwnerType)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	env := envelope{
		Vector:    append([]float32(nil), rec.Vector...),
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: now,
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = now
		if existing, err := s.get(ctx, col, rec.ID); err == nil {
			env.CreatedAt = existing.CreatedAt
		}
	}

	content, err := json.Marshal(env)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal chromem envelope", goerr.V(model.RecordIDKey, rec.ID))
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Metadata:  rec.Metadata.Copy(),
		Embedding: append([]float32(nil), rec.Vector...),
		Content:   string(content),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(model.ErrStorageUnavailable, "failed to add chromem document",
			goerr.V(model.OwnerTypeKey, rec.OwnerType),
			goerr.V(model.RecordIDKey, rec.ID),
			goerr.V("error", err.Error()))
	}

	return nil
}

// get returns ErrNotFound for any lookup failure; chromem only fails GetByID
// for unknown IDs.
func (s *Store) get(ctx context.Context, col *chromem.Collection, id string) (*model.VectorRecord, error) {
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(model.ErrNotFound, "vector record not found", goerr.V(model.RecordIDKey, id))
	}
	return decode(doc.ID, doc.Metadata, doc.Content)
}

func (s *Store) Get(ctx context.Context, ownerType types.OwnerType, id string) (*model.VectorRecord, error) {
	col, err := s.collection(ownerType)
	if err != nil {
		return nil, err
	}

	rec, err := s.get(ctx, col, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get chromem document", goerr.V(model.OwnerTypeKey, ownerType))
	}
	rec.OwnerType = ownerType
	return rec, nil
}

func (s *Store) List(ctx context.Context, ownerType types.OwnerType, filter model.Metadata) ([]*model.VectorRecord, error) {
	results, err := s.scan(ctx, ownerType, nil, filter)
	if err != nil {
		return nil, err
	}

	records := make([]*model.VectorRecord, 0, len(results))
	for _, r := range results {
		records = append(records, r.Record)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *Store) Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error) {
	if err := model.CheckDimension(query, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.SearchResult{}, nil
	}

	results, err := s.scan(ctx, ownerType, query, filter)
	if err != nil {
		return nil, err
	}

	model.RankResults(results)
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// scan fetches every document matching filter. chromem rejects nResults above
// the collection size, so the whole collection is requested and the
// similarity is recomputed from the raw vectors for a stable order.
func (s *Store) scan(ctx context.Context, ownerType types.OwnerType, query []float32, filter model.Metadata) ([]*model.SearchResult, error) {
	col, err := s.collection(ownerType)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 {
		return []*model.SearchResult{}, nil
	}

	lookup := query
	if isZero(lookup) {
		// chromem cannot normalize a zero vector; any unit vector enumerates the same set
		lookup = make([]float32, s.dimension)
		lookup[0] = 1
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter.Copy()
	}

	docs, err := col.QueryEmbedding(ctx, lookup, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to query chromem collection",
			goerr.V(model.OwnerTypeKey, ownerType), goerr.V("error", err.Error()))
	}

	results := make([]*model.SearchResult, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(doc.ID, doc.Metadata, doc.Content)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode chromem document", goerr.V(model.OwnerTypeKey, ownerType))
		}
		rec.OwnerType = ownerType

		sr := &model.SearchResult{Record: rec}
		if query != nil {
			sr.Similarity = model.CosineSimilarity(query, rec.Vector)
		}
		results = append(results, sr)
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, ownerType types.OwnerType, id string) error {
	col, err := s.collection(ownerType)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := col.GetByID(ctx, id); err != nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return goerr.Wrap(model.ErrStorageUnavailable, "failed to delete chromem document",
			goerr.V(model.OwnerTypeKey, ownerType),
			goerr.V(model.RecordIDKey, id),
			goerr.V("error", err.Error()))
	}
	return nil
}

func decode(id string, meta map[string]string, content string) (*model.VectorRecord, error) {
	var env envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal chromem envelope", goerr.V(model.RecordIDKey, id))
	}

	var metadata model.Metadata
	if len(meta) > 0 {
		metadata = model.Metadata(meta).Copy()
	}

	return &model.VectorRecord{
		ID:        id,
		Vector:    env.Vector,
		Metadata:  metadata,
		Payload:   env.Payload,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
	}, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
