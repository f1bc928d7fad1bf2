package usecase

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// DefaultRuleCandidateFactor is how many times topK rules are fetched by raw
// similarity for the first round of the confidence gate and the weighted
// re-rank
const DefaultRuleCandidateFactor = 4

// RuleBase searches learned guidance principles. Results are gated by
// confidence and ranked by similarity * confidence.
type RuleBase struct {
	store           interfaces.VectorStore
	embedder        interfaces.Embedder
	candidateFactor int
	now             func() time.Time
}

func NewRuleBase(store interfaces.VectorStore, embedder interfaces.Embedder, candidateFactor int) *RuleBase {
	if candidateFactor < 1 {
		candidateFactor = DefaultRuleCandidateFactor
	}
	return &RuleBase{
		store:           store,
		embedder:        embedder,
		candidateFactor: candidateFactor,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (b *RuleBase) Retrieve(ctx context.Context, queryText string, topK int, domain string, minConfidence float64) ([]*model.ScoredRule, error) {
	if err := model.ValidateConfidence(minConfidence); err != nil {
		return nil, goerr.Wrap(err, "invalid minimum confidence")
	}
	if topK <= 0 {
		return []*model.ScoredRule{}, nil
	}

	query, err := b.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed rule query")
	}
	return b.RetrieveByEmbedding(ctx, query, topK, domain, minConfidence)
}

func (b *RuleBase) RetrieveByEmbedding(ctx context.Context, query []float32, topK int, domain string, minConfidence float64) ([]*model.ScoredRule, error) {
	if err := model.ValidateConfidence(minConfidence); err != nil {
		return nil, goerr.Wrap(err, "invalid minimum confidence")
	}
	if topK <= 0 {
		return []*model.ScoredRule{}, nil
	}

	var filter model.Metadata
	if domain != "" {
		filter = model.Metadata{model.MetaDomain: domain}
	}

	// A rule outside the pool has similarity at most the pool's lowest and
	// confidence at most 1, so the pool grows until the k-th weighted score
	// beats that bound or the partition is exhausted.
	pool := topK * b.candidateFactor
	for {
		results, err := b.store.Search(ctx, types.OwnerTypeRule, query, pool, filter)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search rules", goerr.V("domain", domain))
		}

		rules, err := weightRules(results, minConfidence)
		if err != nil {
			return nil, err
		}

		if len(results) < pool || (len(rules) >= topK && rules[topK-1].WeightedScore > outsideBound(results)) {
			if topK < len(rules) {
				rules = rules[:topK]
			}
			return rules, nil
		}
		pool *= 2
	}
}

// outsideBound is the highest weighted score a rule ranked after results
// could reach
func outsideBound(results []*model.SearchResult) float64 {
	lowest := results[0].Similarity
	for _, r := range results[1:] {
		lowest = min(lowest, r.Similarity)
	}
	return max(lowest, 0)
}

// weightRules drops rules below minConfidence and orders the rest by
// similarity * confidence
func weightRules(results []*model.SearchResult, minConfidence float64) ([]*model.ScoredRule, error) {
	rules := make([]*model.ScoredRule, 0, len(results))
	for _, r := range results {
		rule, err := model.RuleRecordFromRecord(r.Record)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode rule")
		}
		if rule.Confidence < minConfidence {
			continue
		}
		rules = append(rules, &model.ScoredRule{
			Rule:          rule,
			Similarity:    r.Similarity,
			WeightedScore: r.Similarity * rule.Confidence,
		})
	}

	slices.SortStableFunc(rules, func(a, b *model.ScoredRule) int {
		switch {
		case a.WeightedScore > b.WeightedScore:
			return -1
		case a.WeightedScore < b.WeightedScore:
			return 1
		}
		if c := b.Rule.CreatedAt.Compare(a.Rule.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Rule.ID, b.Rule.ID)
	})
	return rules, nil
}

// Put stores a rule, embedding its text when no embedding is given
func (b *RuleBase) Put(ctx context.Context, rule *model.RuleRecord) error {
	if rule.ID == "" {
		return goerr.Wrap(model.ErrInvalidRecord, "rule ID is required")
	}
	if err := model.ValidateConfidence(rule.Confidence); err != nil {
		return goerr.Wrap(err, "invalid rule", goerr.V(RuleIDKey, rule.ID))
	}

	stored := *rule
	if len(stored.Embedding) == 0 {
		if stored.Text == "" {
			return goerr.Wrap(model.ErrInvalidRecord, "rule needs a text or an embedding", goerr.V(RuleIDKey, rule.ID))
		}
		emb, err := b.embedder.Embed(ctx, stored.Text)
		if err != nil {
			return goerr.Wrap(err, "failed to embed rule text", goerr.V(RuleIDKey, rule.ID))
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
		return goerr.Wrap(err, "failed to store rule", goerr.V(RuleIDKey, rule.ID))
	}
	return nil
}

// Get returns a stored rule
func (b *RuleBase) Get(ctx context.Context, id string) (*model.RuleRecord, error) {
	rec, err := b.store.Get(ctx, types.OwnerTypeRule, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get rule", goerr.V(RuleIDKey, id))
	}
	return model.RuleRecordFromRecord(rec)
}

// Delete removes a rule; unknown IDs are ignored
func (b *RuleBase) Delete(ctx context.Context, id string) error {
	if err := b.store.Delete(ctx, types.OwnerTypeRule, id); err != nil {
		return goerr.Wrap(err, "failed to delete rule", goerr.V(RuleIDKey, id))
	}
	return nil
}
