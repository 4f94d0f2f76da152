package adapter

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ragforge/ragcore/internal/domain"
)

// Train fits W and b to pull each row of Q toward the corresponding row of C
// using Adam(lr=1e-4) against a negative-cosine-similarity loss. Both Q and
// C are L2-normalized row-wise before fitting. trainingCount advances by one
// per call, regardless of how many epochs or batches it took internally.
func (a *Adapter) Train(q, c [][]float32, epochs int) error {
	if len(q) != len(c) {
		return fmt.Errorf("train: query/chunk batch size mismatch: %d vs %d", len(q), len(c))
	}
	if len(q) == 0 {
		return nil
	}
	if epochs <= 0 {
		epochs = defaultEpochs
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(q)
	for i := 0; i < n; i++ {
		if len(q[i]) != a.dim || len(c[i]) != a.dim {
			return &domain.DimensionMismatchError{Expected: a.dim, Got: len(q[i])}
		}
	}

	normQ := make([][]float32, n)
	normC := make([][]float32, n)
	for i := range q {
		normQ[i] = l2normalize64(q[i])
		normC[i] = l2normalize64(c[i])
	}

	batchSize := n
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	for epoch := 0; epoch < epochs; epoch++ {
		order := rand.Perm(n)
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			a.adamStep(normQ, normC, order[start:end])
		}
	}

	a.trainingCount++
	return nil
}

func l2normalize64(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// adamStep accumulates the batch gradient for negative cosine similarity
// loss and applies one Adam update to W and b.
func (a *Adapter) adamStep(q, c [][]float32, idx []int) {
	dim := a.dim
	gradW := make([][]float64, dim)
	for i := range gradW {
		gradW[i] = make([]float64, dim)
	}
	gradB := make([]float64, dim)

	for _, i := range idx {
		u := a.forwardRaw(q[i]) // pre-normalization W*q+b
		norm := vecNorm(u)
		if norm == 0 {
			continue
		}
		y := make([]float64, dim)
		for k := range u {
			y[k] = u[k] / norm
		}
		yc := dot64(y, c[i])

		// d(-cos)/du = -(1/||u||) * (c - (y.c) y)
		du := make([]float64, dim)
		for k := range du {
			du[k] = -(float64(c[i][k]) - yc*y[k]) / norm
		}
		for row := 0; row < dim; row++ {
			for col := 0; col < dim; col++ {
				gradW[row][col] += du[row] * float64(q[i][col])
			}
			gradB[row] += du[row]
		}
	}

	n := float64(len(idx))
	if n == 0 {
		return
	}
	a.step++
	biasCorr1 := 1 - math.Pow(adamBeta1, float64(a.step))
	biasCorr2 := 1 - math.Pow(adamBeta2, float64(a.step))

	for row := 0; row < dim; row++ {
		for col := 0; col < dim; col++ {
			g := gradW[row][col] / n
			m := adamBeta1*a.mW.At(row, col) + (1-adamBeta1)*g
			v := adamBeta2*a.vW.At(row, col) + (1-adamBeta2)*g*g
			a.mW.Set(row, col, m)
			a.vW.Set(row, col, v)
			mHat := m / biasCorr1
			vHat := v / biasCorr2
			a.w.Set(row, col, a.w.At(row, col)-learningRate*mHat/(math.Sqrt(vHat)+adamEps))
		}
		g := gradB[row] / n
		m := adamBeta1*a.mB[row] + (1-adamBeta1)*g
		v := adamBeta2*a.vB[row] + (1-adamBeta2)*g*g
		a.mB[row] = m
		a.vB[row] = v
		mHat := m / biasCorr1
		vHat := v / biasCorr2
		a.b[row] -= learningRate * mHat / (math.Sqrt(vHat) + adamEps)
	}
}

func (a *Adapter) forwardRaw(q []float32) []float64 {
	out := make([]float64, a.dim)
	for i := 0; i < a.dim; i++ {
		sum := a.b[i]
		for j := 0; j < a.dim; j++ {
			sum += a.w.At(i, j) * float64(q[j])
		}
		out[i] = sum
	}
	return out
}

func vecNorm(v []float64) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	return math.Sqrt(sumSq)
}

func dot64(a []float64, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * float64(b[i])
	}
	return sum
}
