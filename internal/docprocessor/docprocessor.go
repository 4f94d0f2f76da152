// Package docprocessor is the per-resource chunk→encode→store→delete
// pipeline. It is deliberately a small fluent builder, in the vein of the
// ingestion pipeline it replaces: Chunk and Encode each mutate and return
// the *Pipeline, short-circuiting once an error has been recorded, and Store
// then returns the persist batches, so a caller reads top to bottom as
// "chunk, then encode, then store".
package docprocessor

import (
	"context"
	"fmt"

	"github.com/ragforge/ragcore/internal/chunker"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/fn"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

// ModelSet names which models to encode a resource's chunks with. Sparse and
// reranker are optional; an empty name skips that vector entirely.
type ModelSet struct {
	DenseModel    string
	SparseModel   string
	RerankerModel string
}

// Deps are the external collaborators a Pipeline drives.
type Deps struct {
	Chunker *chunker.Chunker
	Embed   *embedclient.Client
	Vectors *vectorstore.Store
}

// Pipeline carries one resource's chunks through chunk, encode and store.
type Pipeline struct {
	deps     Deps
	resource domain.Resource
	settings domain.CollectionSettings

	pieces []chunker.ChunkPiece
	chunks []domain.Chunk

	err error
}

// New starts a pipeline for resource, under its collection's settings.
func New(deps Deps, resource domain.Resource, settings domain.CollectionSettings) *Pipeline {
	return &Pipeline{deps: deps, resource: resource, settings: settings}
}

// Err returns the first error recorded by any step, if any.
func (p *Pipeline) Err() error { return p.err }

// Chunks returns the pipeline's chunks once Store has assigned ids.
func (p *Pipeline) Chunks() []domain.Chunk { return p.chunks }

// resolveParams applies a resource-level chunking override over the
// collection's settings, matching the precedence rule: resource override
// beats collection default.
func resolveParams(resource domain.Resource, settings domain.CollectionSettings) chunker.Params {
	p := chunker.Params{
		MaxChunkSize: settings.ChunkSize,
		Overlap:      settings.ChunkOverlap,
		Strategy:     settings.Strategy,
		ChunkingURL:  settings.ChunkingURL,
		DenseModel:   settings.DenseModel,
	}
	if resource.Chunking != nil {
		if resource.Chunking.ChunkSize > 0 {
			p.MaxChunkSize = resource.Chunking.ChunkSize
		}
		if resource.Chunking.ChunkOverlap > 0 {
			p.Overlap = resource.Chunking.ChunkOverlap
		}
		if resource.Chunking.Strategy != "" {
			p.Strategy = resource.Chunking.Strategy
		}
	}
	return p
}

// Chunk splits the resource's content into pieces.
func (p *Pipeline) Chunk(ctx context.Context) *Pipeline {
	if p.err != nil {
		return p
	}
	params := resolveParams(p.resource, p.settings)
	pieces, err := p.deps.Chunker.Chunk(ctx, p.resource.Content, params)
	if err != nil {
		p.err = fmt.Errorf("chunk resource %s: %w", p.resource.ID, err)
		return p
	}
	p.pieces = pieces
	return p
}

// Encode computes the configured vector set for every chunk concurrently:
// dense always, sparse and late-interaction only when models.SparseModel /
// RerankerModel are set.
func (p *Pipeline) Encode(ctx context.Context, models ModelSet) *Pipeline {
	if p.err != nil {
		return p
	}
	if len(p.pieces) == 0 {
		return p
	}

	texts := make([]string, len(p.pieces))
	for i, piece := range p.pieces {
		if piece.VectorSource != "" {
			texts[i] = piece.VectorSource
		} else {
			texts[i] = piece.Text
		}
	}

	type encodeOutcome struct {
		dense  [][]float32
		sparse []domain.SparseVector
		rerank [][][]float32
	}
	fns := []func() fn.Result[encodeOutcome]{
		func() fn.Result[encodeOutcome] {
			dense, err := p.deps.Embed.EncodeDense(ctx, texts, models.DenseModel)
			if err != nil {
				return fn.Err[encodeOutcome](err)
			}
			return fn.Ok(encodeOutcome{dense: dense})
		},
	}
	if models.SparseModel != "" {
		fns = append(fns, func() fn.Result[encodeOutcome] {
			sparse, err := p.deps.Embed.EncodeSparse(ctx, texts, models.SparseModel)
			if err != nil {
				return fn.Err[encodeOutcome](err)
			}
			return fn.Ok(encodeOutcome{sparse: sparse})
		})
	}
	if models.RerankerModel != "" {
		fns = append(fns, func() fn.Result[encodeOutcome] {
			rerank, err := p.deps.Embed.EncodeLateInteraction(ctx, texts, models.RerankerModel)
			if err != nil {
				return fn.Err[encodeOutcome](err)
			}
			return fn.Ok(encodeOutcome{rerank: rerank})
		})
	}

	outcomes, err := fn.FanOutResult(fns...).Unwrap()
	if err != nil {
		p.err = fmt.Errorf("encode resource %s: %w", p.resource.ID, err)
		return p
	}

	var dense [][]float32
	var sparse []domain.SparseVector
	var rerank [][][]float32
	for _, o := range outcomes {
		switch {
		case o.dense != nil:
			dense = o.dense
		case o.sparse != nil:
			sparse = o.sparse
		case o.rerank != nil:
			rerank = o.rerank
		}
	}

	chunks := make([]domain.Chunk, len(p.pieces))
	for i, piece := range p.pieces {
		c := domain.Chunk{
			Data:         piece.Text,
			VectorSource: texts[i],
			ResourceID:   p.resource.ID,
			CollectionID: p.resource.CollectionID,
			OwnerID:      p.resource.OwnerID,
			Index:        i,
			Metadata:     piece.Metadata,
			Vector:       dense[i],
		}
		if sparse != nil {
			c.SparseVector = &sparse[i]
		}
		if rerank != nil {
			c.RerankVector = rerank[i]
		}
		chunks[i] = c
	}
	p.chunks = chunks
	return p
}
