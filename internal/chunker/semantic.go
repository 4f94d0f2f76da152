package chunker

import (
	"context"
	"fmt"
	"sort"

	"github.com/ragforge/ragcore/internal/vecmath"
)

// DenseEncoder is the subset of the embedding client the semantic chunker
// needs: turning sentences into dense vectors to measure topical drift.
type DenseEncoder interface {
	EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// breakpointPercentile and the clamp bounds are binding exactly as specified.
const (
	breakpointPercentile = 0.20
	minBreakpointTau     = 0.40
	maxBreakpointTau     = 0.90
)

// semanticChunk splits text by sentence-embedding similarity breakpoints: a
// breakpoint is any consecutive-sentence-pair whose cosine similarity falls
// at or below a 20th-percentile threshold, clamped into [0.40, 0.90].
func semanticChunk(ctx context.Context, enc DenseEncoder, denseModel string, sentences []string, minChunkSize, maxChunkSize int) ([]string, error) {
	if len(sentences) <= 1 {
		return sentences, nil
	}

	embeddings, err := enc.EncodeDense(ctx, sentences, denseModel)
	if err != nil {
		return nil, fmt.Errorf("embed sentences for semantic chunking: %w", err)
	}

	sims := make([]float64, len(embeddings)-1)
	for i := 0; i < len(embeddings)-1; i++ {
		sims[i] = vecmath.Cosine(embeddings[i], embeddings[i+1])
	}

	tau := percentileClamped(sims, breakpointPercentile, minBreakpointTau, maxBreakpointTau)

	return groupBySimilarity(sentences, sims, tau, minChunkSize, maxChunkSize), nil
}

// percentileClamped returns the value at the given percentile (0..1) of a
// sorted copy of values, clamped into [lo, hi].
func percentileClamped(values []float64, percentile, lo, hi float64) float64 {
	if len(values) == 0 {
		return lo
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(percentile * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	v := sorted[idx]
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// groupBySimilarity walks sentences, flushing the current chunk whenever
// adding the next sentence would overflow maxChunkSize, or at a similarity
// breakpoint once the chunk has reached minChunkSize. A too-small trailing
// chunk is merged back into the previous one when that stays within bounds.
func groupBySimilarity(sentences []string, sims []float64, tau float64, minChunkSize, maxChunkSize int) []string {
	var chunks []string
	var cur string

	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}

	for i, s := range sentences {
		candidate := s
		if cur != "" {
			candidate = cur + " " + s
		}
		if len(candidate) > maxChunkSize && cur != "" {
			flush()
			candidate = s
		}
		cur = candidate

		if i < len(sims) && sims[i] <= tau && len(cur) >= minChunkSize {
			flush()
		}
	}
	flush()

	if len(chunks) >= 2 && len(chunks[len(chunks)-1]) < minChunkSize {
		last := chunks[len(chunks)-1]
		merged := chunks[len(chunks)-2] + " " + last
		if len(merged) <= maxChunkSize {
			chunks = chunks[:len(chunks)-2]
			chunks = append(chunks, merged)
		}
	}

	return chunks
}
