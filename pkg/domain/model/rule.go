package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// RuleRecord is a learned guidance principle with a reliability score.
// Confidence updates belong to the external learning process.
type RuleRecord struct {
	ID         string
	Domain     string // categorical filter key
	Text       string
	Confidence float64 // in [0,1]
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRule is a rule paired with its raw similarity and the
// confidence-weighted score it was ranked by
type ScoredRule struct {
	Rule          *RuleRecord
	Similarity    float64
	WeightedScore float64
}

// ValidateConfidence returns ErrInvalidConfidence unless 0 <= c <= 1
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return goerr.Wrap(ErrInvalidConfidence, "confidence out of range", goerr.V("confidence", c))
	}
	return nil
}

type rulePayload struct {
	Domain     string    `json:"domain"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToVectorRecord converts the rule into its durable vector store form
func (r *RuleRecord) ToVectorRecord() (*VectorRecord, error) {
	if err := ValidateConfidence(r.Confidence); err != nil {
		return nil, goerr.Wrap(err, "invalid rule", goerr.V(RecordIDKey, r.ID))
	}

	payload, err := json.Marshal(rulePayload{
		Domain:     r.Domain,
		Text:       r.Text,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal rule payload", goerr.V(RecordIDKey, r.ID))
	}

	meta := Metadata{
		MetaConfidence: strconv.FormatFloat(r.Confidence, 'f', -1, 64),
	}
	if r.Domain != "" {
		meta[MetaDomain] = r.Domain
	}

	return &VectorRecord{
		OwnerType: types.OwnerTypeRule,
		ID:        r.ID,
		Vector:    append([]float32(nil), r.Embedding...),
		Metadata:  meta,
		Payload:   payload,
		CreatedAt: r.CreatedAt,
	}, nil
}

// RuleRecordFromRecord restores a rule from its vector store form
func RuleRecordFromRecord(rec *VectorRecord) (*RuleRecord, error) {
	if rec.OwnerType != types.OwnerTypeRule {
		return nil, goerr.Wrap(ErrInvalidRecord, "record is not a rule",
			goerr.V(OwnerTypeKey, rec.OwnerType), goerr.V(RecordIDKey, rec.ID))
	}

	var p rulePayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal rule payload", goerr.V(RecordIDKey, rec.ID))
	}

	return &RuleRecord{
		ID:         rec.ID,
		Domain:     p.Domain,
		Text:       p.Text,
		Confidence: p.Confidence,
		Embedding:  append([]float32(nil), rec.Vector...),
		CreatedAt:  p.CreatedAt,
	}, nil
}
