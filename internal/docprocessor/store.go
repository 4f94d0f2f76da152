package docprocessor

import (
	"context"
	"fmt"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

// PersistBatch is one unit of work handed to a persist consumer: either a
// batch of chunks sharing a message (the common case) or, when a reranker
// vector is present, exactly one chunk per message — Qdrant's multivector
// payload makes batching those uneconomical and the spec calls for
// one-chunk-per-message in that case.
type PersistBatch struct {
	CollectionID string
	Chunks       []domain.Chunk
}

// Store assigns each chunk a stable, content-addressed id (or a random one
// when keepDuplicate is set) and partitions the chunks into the batches a
// persist consumer will write. It does not itself call the vector store;
// that happens in the persist consumer, one backend at a time, so a single
// resource's chunks can fan out to multiple storage regions independently.
func (p *Pipeline) Store(keepDuplicate bool) []PersistBatch {
	if p.err != nil || len(p.chunks) == 0 {
		return nil
	}

	hasRerank := false
	for i := range p.chunks {
		c := &p.chunks[i]
		c.ID = domain.ChunkID(c.CollectionID, c.OwnerID, c.Data, c.VectorSource, keepDuplicate)
		if len(c.RerankVector) > 0 {
			hasRerank = true
		}
	}

	if hasRerank {
		batches := make([]PersistBatch, len(p.chunks))
		for i, c := range p.chunks {
			batches[i] = PersistBatch{CollectionID: p.resource.CollectionID, Chunks: []domain.Chunk{c}}
		}
		return batches
	}

	const maxBatch = 64
	var batches []PersistBatch
	for i := 0; i < len(p.chunks); i += maxBatch {
		end := i + maxBatch
		if end > len(p.chunks) {
			end = len(p.chunks)
		}
		batches = append(batches, PersistBatch{CollectionID: p.resource.CollectionID, Chunks: p.chunks[i:end]})
	}
	return batches
}

// WriteVectors upserts a persist batch's chunks into the vector store,
// called by the vector-store persist consumer(s).
func WriteVectors(ctx context.Context, store *vectorstore.Store, batch PersistBatch) error {
	points := make([]vectorstore.Point, len(batch.Chunks))
	for i, c := range batch.Chunks {
		points[i] = vectorstore.Point{
			ID:           c.ID,
			Dense:        c.Vector,
			Sparse:       c.SparseVector,
			Rerank:       c.RerankVector,
			ResourceID:   c.ResourceID,
			CollectionID: c.CollectionID,
			OwnerID:      c.OwnerID,
			Content:      c.Data,
			Metadata:     c.Metadata,
		}
	}
	if err := store.Upsert(ctx, batch.CollectionID, points); err != nil {
		return fmt.Errorf("write vectors for collection %s: %w", batch.CollectionID, err)
	}
	return nil
}

// Delete purges every vector-store point belonging to resourceID from
// collectionID's vector collection. Document-store records are not touched.
func Delete(ctx context.Context, store *vectorstore.Store, collectionID, resourceID string) error {
	if err := store.DeleteByResource(ctx, collectionID, resourceID); err != nil {
		return fmt.Errorf("delete resource %s: %w", resourceID, err)
	}
	return nil
}
