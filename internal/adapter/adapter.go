// Package adapter implements the per-collection online-trained linear
// projection that morphs query vectors toward upvoted chunk vectors.
package adapter

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/vecmath"
)

const (
	learningRate = 1e-4
	adamBeta1    = 0.9
	adamBeta2    = 0.999
	adamEps      = 1e-8
	defaultEpochs = 3
	maxBatchSize  = 32
)

// Adapter is a D x D linear projection W plus bias b, identity-initialized
// so transform(q) == q before any training has happened.
type Adapter struct {
	mu            sync.RWMutex
	dim           int
	w             *mat.Dense
	b             []float64
	trainingCount int

	// Adam first/second moment estimates: D x D matrices for W, D-length
	// slices for b.
	mW, vW *mat.Dense
	mB, vB []float64
	step   int
}

// New builds an identity-initialized adapter for dimension dim.
func New(dim int) *Adapter {
	w := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		w.Set(i, i, 1)
	}
	return &Adapter{
		dim: dim,
		w:   w,
		b:   make([]float64, dim),
		mW:  mat.NewDense(dim, dim, nil),
		vW:  mat.NewDense(dim, dim, nil),
		mB:  make([]float64, dim),
		vB:  make([]float64, dim),
	}
}

// FromRecord restores a Trained adapter from its persisted form.
func FromRecord(rec domain.AdapterRecord) (*Adapter, error) {
	if rec.InputDim != rec.OutputDim {
		return nil, fmt.Errorf("%w: adapter record has inputDim=%d outputDim=%d", domain.ErrDimensionMismatch, rec.InputDim, rec.OutputDim)
	}
	a := New(rec.InputDim)
	for i := 0; i < rec.InputDim; i++ {
		for j := 0; j < rec.InputDim; j++ {
			a.w.Set(i, j, rec.Weights[i][j])
		}
	}
	copy(a.b, rec.Bias)
	a.trainingCount = rec.TrainingCount
	return a, nil
}

// ToRecord snapshots the adapter for persistence.
func (a *Adapter) ToRecord(collectionID string) domain.AdapterRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	weights := make([][]float64, a.dim)
	for i := 0; i < a.dim; i++ {
		weights[i] = make([]float64, a.dim)
		for j := 0; j < a.dim; j++ {
			weights[i][j] = a.w.At(i, j)
		}
	}
	bias := make([]float64, a.dim)
	copy(bias, a.b)
	return domain.AdapterRecord{
		CollectionID:  collectionID,
		Weights:       weights,
		Bias:          bias,
		InputDim:      a.dim,
		OutputDim:     a.dim,
		TrainingCount: a.trainingCount,
	}
}

// TrainingCount reports how many train() calls this adapter has absorbed.
func (a *Adapter) TrainingCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trainingCount
}

// Transform runs the forward pass and L2-normalizes the output. It fails
// with DimensionMismatch if the input isn't D-dimensional.
func (a *Adapter) Transform(q []float32) ([]float32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(q) != a.dim {
		return nil, &domain.DimensionMismatchError{Expected: a.dim, Got: len(q)}
	}
	out := a.forward(q)
	return vecmath.L2Normalize(out), nil
}

// forward computes W*q + b without normalizing. Caller holds at least a read lock.
func (a *Adapter) forward(q []float32) []float32 {
	qv := mat.NewVecDense(a.dim, float64SliceFrom(q))
	var res mat.VecDense
	res.MulVec(a.w, qv)
	out := make([]float32, a.dim)
	for i := 0; i < a.dim; i++ {
		out[i] = float32(res.AtVec(i) + a.b[i])
	}
	return out
}

func float64SliceFrom(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// IsSafe is the optional diagnostic comparing an original and transformed
// vector; it never gates the query engine's own ranking.
func IsSafe(original, transformed []float32) (cos float64, isSafe bool) {
	cos = vecmath.Cosine(vecmath.L2Normalize(original), vecmath.L2Normalize(transformed))
	return cos, cos >= 0.75
}
