package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// maxFindNearestLimit is the upper bound Firestore accepts for FindNearest
const maxFindNearestLimit = 1000

// Firestore is a VectorStore backed by Cloud Firestore vector search.
// Each owner type is stored in its own collection.
type Firestore struct {
	client           *firestore.Client
	dimension        int
	collectionPrefix string
	overfetch        int
	now              func() time.Time
}

var _ interfaces.VectorStore = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

// WithSearchOverfetch sets how many times topK candidates FindNearest returns
// before the local re-ranking
func WithSearchOverfetch(factor int) Option {
	return func(f *Firestore) {
		if factor > 0 {
			f.overfetch = factor
		}
	}
}

// WithClock replaces the clock used to stamp UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(f *Firestore) {
		f.now = now
	}
}

func New(ctx context.Context, projectID, databaseID string, dimension int, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageUnavailable, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
			goerr.V("error", err.Error()))
	}

	f := &Firestore{
		client:    client,
		dimension: dimension,
		overfetch: 2,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Dimension() int {
	return f.dimension
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
