package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "magnitude is ignored", a: []float32{1, 0}, b: []float32{10, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.CosineSimilarity(tt.a, tt.b)
			gt.Bool(t, math.Abs(got-tt.want) < 1e-9).True()
		})
	}
}

func TestRecencyDecay(t *testing.T) {
	halfLife := time.Hour

	gt.Value(t, model.RecencyDecay(0, halfLife)).Equal(1.0)
	gt.Value(t, model.RecencyDecay(-time.Minute, halfLife)).Equal(1.0)
	gt.Bool(t, math.Abs(model.RecencyDecay(time.Hour, halfLife)-0.5) < 1e-9).True()
	gt.Bool(t, math.Abs(model.RecencyDecay(2*time.Hour, halfLife)-0.25) < 1e-9).True()
	gt.Value(t, model.RecencyDecay(time.Hour, 0)).Equal(0.0)
}
