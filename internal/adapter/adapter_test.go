package adapter

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ragforge/ragcore/internal/vecmath"
)

func TestIdentityBeforeTraining(t *testing.T) {
	a := New(8)
	q := randomUnitVector(8)
	out, err := a.Transform(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range q {
		if math.Abs(float64(out[i]-q[i])) > 1e-5 {
			t.Fatalf("expected identity transform, diverged at %d: %f vs %f", i, out[i], q[i])
		}
	}
}

func TestTransformIsUnitNorm(t *testing.T) {
	a := New(4)
	q := []float32{1, 2, 3, 4}
	out, err := a.Transform(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	if math.Abs(sumSq-1) > 1e-5 {
		t.Fatalf("expected unit-norm output, got magnitude^2=%f", sumSq)
	}
}

func TestTransformDimensionMismatch(t *testing.T) {
	a := New(4)
	_, err := a.Transform([]float32{1, 2})
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestTrainingImprovesCosineToTarget(t *testing.T) {
	dim := 16
	a := New(dim)
	q := randomUnitVector(dim)
	c := randomUnitVector(dim)

	before := vecmath.Cosine(q, c)

	for i := 0; i < 50; i++ {
		if err := a.Train([][]float32{q}, [][]float32{c}, 3); err != nil {
			t.Fatalf("train failed: %v", err)
		}
	}

	transformed, err := a.Transform(q)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	after := vecmath.Cosine(transformed, c)

	if after < before {
		t.Fatalf("expected training to improve similarity to target: before=%f after=%f", before, after)
	}
	if a.TrainingCount() != 50 {
		t.Fatalf("expected trainingCount=50, got %d", a.TrainingCount())
	}
}

func randomUnitVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rand.Float64()*2 - 1)
	}
	return vecmath.L2Normalize(v)
}
