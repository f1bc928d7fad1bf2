package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

type UseCases struct {
	store    interfaces.VectorStore
	embedder interfaces.Embedder
	rater    interfaces.ImportanceRater

	scoring             model.ScoringConfig
	retrievalTimeout    time.Duration
	ruleCandidateFactor int
	tolerateStorage     bool
	clock               func() time.Time

	Cases     *CaseBase
	Rules     *RuleBase
	Retriever *Retriever
}

type Option func(*UseCases)

func WithScoringConfig(cfg model.ScoringConfig) Option {
	return func(uc *UseCases) {
		uc.scoring = cfg
	}
}

func WithRetrievalTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.retrievalTimeout = d
	}
}

func WithRuleCandidateFactor(factor int) Option {
	return func(uc *UseCases) {
		uc.ruleCandidateFactor = factor
	}
}

// WithStorageFailureTolerance lets memory streams fall back to ephemeral mode
func WithStorageFailureTolerance(tolerate bool) Option {
	return func(uc *UseCases) {
		uc.tolerateStorage = tolerate
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.clock = now
	}
}

func New(store interfaces.VectorStore, embedder interfaces.Embedder, rater interfaces.ImportanceRater, opts ...Option) (*UseCases, error) {
	if store == nil {
		return nil, goerr.Wrap(ErrStoreNotConfigured, "use cases need a vector store")
	}
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	if store.Dimension() != embedder.Dimension() {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "store and embedder dimensions differ",
			goerr.V(model.ExpectedKey, store.Dimension()),
			goerr.V(model.ActualKey, embedder.Dimension()))
	}

	uc := &UseCases{
		store:               store,
		embedder:            embedder,
		rater:               rater,
		scoring:             model.DefaultScoringConfig(),
		retrievalTimeout:    DefaultRetrievalTimeout,
		ruleCandidateFactor: DefaultRuleCandidateFactor,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if err := uc.scoring.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid scoring configuration")
	}

	uc.Cases = NewCaseBase(store, embedder)
	uc.Rules = NewRuleBase(store, embedder, uc.ruleCandidateFactor)
	if uc.clock != nil {
		uc.Cases.now = uc.clock
		uc.Rules.now = uc.clock
	}
	uc.Retriever = NewRetriever(embedder, uc.Cases, uc.Rules, uc.retrievalTimeout)

	return uc, nil
}

// NewMemoryStream creates a durable, empty stream for sessionID
func (uc *UseCases) NewMemoryStream(sessionID string) (*MemoryStream, error) {
	opts := []MemoryStreamOption{
		WithStore(uc.store),
		WithScoring(uc.scoring),
		WithTolerateStorageFailure(uc.tolerateStorage),
	}
	if uc.clock != nil {
		opts = append(opts, WithStreamClock(uc.clock))
	}
	return NewMemoryStream(sessionID, uc.embedder, uc.rater, opts...)
}

// OpenMemoryStream creates a stream for sessionID and loads its persisted nodes
func (uc *UseCases) OpenMemoryStream(ctx context.Context, sessionID string) (*MemoryStream, error) {
	stream, err := uc.NewMemoryStream(sessionID)
	if err != nil {
		return nil, err
	}
	if err := stream.Load(ctx, sessionID); err != nil {
		return nil, err
	}
	return stream, nil
}
