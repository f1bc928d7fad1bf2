package model_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

func TestValidateConfidence(t *testing.T) {
	gt.NoError(t, model.ValidateConfidence(0))
	gt.NoError(t, model.ValidateConfidence(1))
	gt.NoError(t, model.ValidateConfidence(0.42))
	gt.Error(t, model.ValidateConfidence(-0.01)).Is(model.ErrInvalidConfidence)
	gt.Error(t, model.ValidateConfidence(1.01)).Is(model.ErrInvalidConfidence)
	gt.Error(t, model.ValidateConfidence(math.NaN())).Is(model.ErrInvalidConfidence)
}

func TestRuleRecord_VectorRecordRoundTrip(t *testing.T) {
	rule := &model.RuleRecord{
		ID:         "rule-1",
		Domain:     "lending",
		Text:       "Always disclose the APR before discussing monthly payments",
		Confidence: 0.85,
		Embedding:  []float32{0.3, 0.4},
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	rec, err := rule.ToVectorRecord()
	gt.NoError(t, err).Required()
	gt.Value(t, rec.OwnerType).Equal(types.OwnerTypeRule)
	gt.Value(t, rec.Metadata[model.MetaDomain]).Equal("lending")
	gt.Value(t, rec.Metadata[model.MetaConfidence]).Equal("0.85")

	restored, err := model.RuleRecordFromRecord(rec)
	gt.NoError(t, err).Required()
	gt.Value(t, restored.ID).Equal(rule.ID)
	gt.Value(t, restored.Domain).Equal(rule.Domain)
	gt.Value(t, restored.Text).Equal(rule.Text)
	gt.Value(t, restored.Confidence).Equal(rule.Confidence)
	gt.Value(t, restored.Embedding).Equal(rule.Embedding)
}

func TestRuleRecord_ToVectorRecordRejectsBadConfidence(t *testing.T) {
	rule := &model.RuleRecord{ID: "r", Confidence: 1.5, Embedding: []float32{1}}
	_, err := rule.ToVectorRecord()
	gt.Error(t, err).Is(model.ErrInvalidConfidence)
}

func TestCaseRecord_VectorRecordRoundTrip(t *testing.T) {
	c := &model.CaseRecord{
		ID:        "case-1",
		TaskType:  "mortgage",
		Summary:   "Client consolidated two loans after a rate hike",
		Payload:   json.RawMessage(`{"outcome":"approved"}`),
		Embedding: []float32{0.1, 0.9},
		CreatedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}

	rec, err := c.ToVectorRecord()
	gt.NoError(t, err).Required()
	gt.Value(t, rec.Metadata[model.MetaTaskType]).Equal("mortgage")

	restored, err := model.CaseRecordFromRecord(rec)
	gt.NoError(t, err).Required()
	gt.Value(t, restored.ID).Equal(c.ID)
	gt.Value(t, restored.TaskType).Equal(c.TaskType)
	gt.Value(t, restored.Summary).Equal(c.Summary)
	gt.Value(t, string(restored.Payload)).Equal(`{"outcome":"approved"}`)
	gt.Value(t, restored.Embedding).Equal(c.Embedding)
}
