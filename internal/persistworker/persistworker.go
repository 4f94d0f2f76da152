// Package persistworker implements the two interchangeable persist
// consumers: one writes chunk documents to the document store, the other
// writes chunk vectors to a vector store region. Both consume the same
// PersistEvent shape published by the ingestion worker, each from its own
// isolated subject.
package persistworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ragforge/ragcore/internal/docprocessor"
	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/ingestworker"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

const chunkKind = "chunk"

// DocStoreConsumer persists chunk documents (the "mongo-sync" role).
type DocStoreConsumer struct {
	store docstore.Store
}

func NewDocStoreConsumer(store docstore.Store) *DocStoreConsumer {
	return &DocStoreConsumer{store: store}
}

// Handle implements broker.Handler.
func (c *DocStoreConsumer) Handle(ctx context.Context, payload json.RawMessage) error {
	var ev ingestworker.PersistEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode persist event: %w", err)
	}
	switch ev.Kind {
	case ingestworker.PersistUpsert:
		for _, chunk := range ev.Chunks {
			indexed := map[string]string{
				"resourceId":   chunk.ResourceID,
				"collectionId": chunk.CollectionID,
				"ownerId":      chunk.OwnerID,
			}
			if err := c.store.Put(ctx, chunkKind, chunk.ID, chunk, indexed); err != nil {
				return fmt.Errorf("persist chunk %s: %w", chunk.ID, err)
			}
		}
		return nil
	case ingestworker.PersistDelete:
		raws, err := c.store.List(ctx, chunkKind, map[string]string{"resourceId": ev.ResourceID})
		if err != nil {
			return fmt.Errorf("list chunks for resource %s: %w", ev.ResourceID, err)
		}
		for _, raw := range raws {
			var chunk domain.Chunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				continue
			}
			if err := c.store.Delete(ctx, chunkKind, chunk.ID); err != nil {
				return fmt.Errorf("delete chunk %s: %w", chunk.ID, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown persist event kind %q", domain.ErrPoisonMessage, ev.Kind)
	}
}

// VectorConsumer persists chunk vectors into one vector store region
// ("qdrant-usa-sync" / "qdrant-india-sync").
type VectorConsumer struct {
	store *vectorstore.Store
}

func NewVectorConsumer(store *vectorstore.Store) *VectorConsumer {
	return &VectorConsumer{store: store}
}

// Handle implements broker.Handler.
func (c *VectorConsumer) Handle(ctx context.Context, payload json.RawMessage) error {
	var ev ingestworker.PersistEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode persist event: %w", err)
	}
	switch ev.Kind {
	case ingestworker.PersistUpsert:
		return docprocessor.WriteVectors(ctx, c.store, docprocessor.PersistBatch{CollectionID: ev.CollectionID, Chunks: ev.Chunks})
	case ingestworker.PersistDelete:
		return docprocessor.Delete(ctx, c.store, ev.CollectionID, ev.ResourceID)
	default:
		return fmt.Errorf("%w: unknown persist event kind %q", domain.ErrPoisonMessage, ev.Kind)
	}
}
