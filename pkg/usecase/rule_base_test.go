package usecase_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
)

func TestRuleBase_WeightsSimilarityByConfidence(t *testing.T) {
	ctx := context.Background()
	rules := usecase.NewRuleBase(memory.New(testDim), newMockEmbedder(), usecase.DefaultRuleCandidateFactor)

	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
		ID: "similar-but-shaky", Text: "offer a discount", Confidence: 0.3, Embedding: atAngle(0.9),
	})).Required()
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
		ID: "reliable", Text: "confirm the order number first", Confidence: 0.9, Embedding: atAngle(0.7),
	})).Required()

	got, err := rules.RetrieveByEmbedding(ctx, vec(1), 2, "", 0)
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(2)

	gt.V(t, got[0].Rule.ID).Equal("reliable")
	gt.B(t, got[0].WeightedScore > 0.62 && got[0].WeightedScore < 0.64).True()
	gt.B(t, got[0].Similarity > 0.69 && got[0].Similarity < 0.71).True()

	gt.V(t, got[1].Rule.ID).Equal("similar-but-shaky")
	gt.B(t, got[1].WeightedScore > 0.26 && got[1].WeightedScore < 0.28).True()
}

func TestRuleBase_ConfidenceGate(t *testing.T) {
	ctx := context.Background()
	rules := usecase.NewRuleBase(memory.New(testDim), newMockEmbedder(), usecase.DefaultRuleCandidateFactor)

	confidences := []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1}
	for i, c := range confidences {
		gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
			ID:         fmt.Sprintf("r%d", i),
			Text:       "rule",
			Confidence: c,
			Embedding:  atAngle(0.5 + float64(i)*0.05),
		})).Required()
	}

	for _, minConfidence := range []float64{0, 0.3, 0.5, 0.95, 1} {
		t.Run(fmt.Sprintf("min %.2f", minConfidence), func(t *testing.T) {
			got, err := rules.RetrieveByEmbedding(ctx, vec(1), len(confidences), "", minConfidence)
			gt.NoError(t, err).Required()

			want := 0
			for _, c := range confidences {
				if c >= minConfidence {
					want++
				}
			}
			gt.A(t, got).Length(want)

			for i, r := range got {
				gt.B(t, r.Rule.Confidence >= minConfidence).True()
				if i > 0 {
					gt.B(t, got[i-1].WeightedScore >= r.WeightedScore).True()
				}
			}
		})
	}

	t.Run("out of range minimum is rejected", func(t *testing.T) {
		_, err := rules.RetrieveByEmbedding(ctx, vec(1), 3, "", 1.5)
		gt.Error(t, err).Is(model.ErrInvalidConfidence)

		_, err = rules.Retrieve(ctx, "query", 3, "", -0.1)
		gt.Error(t, err).Is(model.ErrInvalidConfidence)
	})
}

func TestRuleBase_CandidatePoolSurvivesGate(t *testing.T) {
	ctx := context.Background()
	rules := usecase.NewRuleBase(memory.New(testDim), newMockEmbedder(), 4)

	// the two most similar rules are below the gate, the third is not
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{ID: "a", Text: "a", Confidence: 0.1, Embedding: vec(1)})).Required()
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{ID: "b", Text: "b", Confidence: 0.2, Embedding: atAngle(0.95)})).Required()
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{ID: "c", Text: "c", Confidence: 0.8, Embedding: atAngle(0.5)})).Required()

	got, err := rules.RetrieveByEmbedding(ctx, vec(1), 1, "", 0.5)
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(1)
	gt.V(t, got[0].Rule.ID).Equal("c")
}

func TestRuleBase_ConfidentRuleOutsideFirstPool(t *testing.T) {
	ctx := context.Background()
	store := newHookStore()
	var pools []int
	rules := usecase.NewRuleBase(&poolRecorder{hookStore: store, pools: &pools}, newMockEmbedder(), 4)

	// four highly similar shaky rules fill the first pool of topK*4
	for i := range 4 {
		gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
			ID: fmt.Sprintf("shaky%d", i), Text: "shaky", Confidence: 0.5, Embedding: atAngle(0.95),
		})).Required()
	}
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
		ID: "reliable", Text: "reliable", Confidence: 1, Embedding: atAngle(0.7),
	})).Required()

	got, err := rules.RetrieveByEmbedding(ctx, vec(1), 1, "", 0)
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(1)
	gt.V(t, got[0].Rule.ID).Equal("reliable")
	gt.B(t, got[0].WeightedScore > 0.69 && got[0].WeightedScore < 0.71).True()
	gt.V(t, pools).Equal([]int{4, 8})

	t.Run("pool stops growing once nothing outside can win", func(t *testing.T) {
		pools = nil
		gt.NoError(t, rules.Put(ctx, &model.RuleRecord{
			ID: "exact", Text: "exact", Confidence: 1, Embedding: vec(1),
		})).Required()

		got, err := rules.RetrieveByEmbedding(ctx, vec(1), 1, "", 0)
		gt.NoError(t, err).Required()
		gt.V(t, got[0].Rule.ID).Equal("exact")
		gt.V(t, pools).Equal([]int{4})
	})
}

// poolRecorder records the topK of every rule search
type poolRecorder struct {
	*hookStore
	pools *[]int
}

func (s *poolRecorder) Search(ctx context.Context, ownerType types.OwnerType, query []float32, topK int, filter model.Metadata) ([]*model.SearchResult, error) {
	if ownerType == types.OwnerTypeRule {
		*s.pools = append(*s.pools, topK)
	}
	return s.hookStore.Search(ctx, ownerType, query, topK, filter)
}

func TestRuleBase_DomainFilterAndCRUD(t *testing.T) {
	ctx := context.Background()
	store := memory.New(testDim)
	emb := newMockEmbedder()
	rules := usecase.NewRuleBase(store, emb, 0)

	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{ID: "billing-1", Domain: "billing", Text: "quote the invoice id", Confidence: 0.8})).Required()
	gt.NoError(t, rules.Put(ctx, &model.RuleRecord{ID: "shipping-1", Domain: "shipping", Text: "share the tracking link", Confidence: 0.8})).Required()

	got, err := rules.Retrieve(ctx, "invoice question", 5, "billing", 0.5)
	gt.NoError(t, err).Required()
	gt.A(t, got).Length(1)
	gt.V(t, got[0].Rule.ID).Equal("billing-1")

	rec, err := store.Get(ctx, types.OwnerTypeRule, "billing-1")
	gt.NoError(t, err).Required()
	gt.V(t, rec.Metadata[model.MetaDomain]).Equal("billing")
	gt.V(t, rec.Metadata[model.MetaConfidence]).Equal("0.8")

	t.Run("invalid confidence is rejected on put", func(t *testing.T) {
		err := rules.Put(ctx, &model.RuleRecord{ID: "bad", Text: "x", Confidence: 1.2})
		gt.Error(t, err).Is(model.ErrInvalidConfidence)
	})

	t.Run("get and delete", func(t *testing.T) {
		r, err := rules.Get(ctx, "shipping-1")
		gt.NoError(t, err).Required()
		gt.V(t, r.Text).Equal("share the tracking link")

		gt.NoError(t, rules.Delete(ctx, "shipping-1")).Required()
		_, err = rules.Get(ctx, "shipping-1")
		gt.Error(t, err).Is(model.ErrNotFound)
	})
}
