package persistworker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/ingestworker"
)

type memDocStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func newMemDocStore() *memDocStore { return &memDocStore{docs: make(map[string]json.RawMessage)} }

func (m *memDocStore) key(kind, id string) string { return kind + "/" + id }

func (m *memDocStore) Get(_ context.Context, kind, id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[m.key(kind, id)]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return v, nil
}

func (m *memDocStore) Put(_ context.Context, kind, id string, value any, _ map[string]string) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[m.key(kind, id)] = body
	return nil
}

func (m *memDocStore) Delete(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, m.key(kind, id))
	return nil
}

func (m *memDocStore) List(_ context.Context, kind string, _ map[string]string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []json.RawMessage
	for k, v := range m.docs {
		if len(k) > len(kind) && k[:len(kind)] == kind {
			out = append(out, v)
		}
	}
	return out, nil
}

func marshalPersistEvent(t *testing.T, ev ingestworker.PersistEvent) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal persist event: %v", err)
	}
	return raw
}

func TestDocStoreConsumerUpsertWritesEachChunk(t *testing.T) {
	docs := newMemDocStore()
	consumer := NewDocStoreConsumer(docs)

	ev := ingestworker.PersistEvent{
		Kind:         ingestworker.PersistUpsert,
		CollectionID: "col-1",
		ResourceID:   "res-1",
		Chunks: []domain.Chunk{
			{ID: "c1", Data: "first", ResourceID: "res-1", CollectionID: "col-1", OwnerID: "owner-1"},
			{ID: "c2", Data: "second", ResourceID: "res-1", CollectionID: "col-1", OwnerID: "owner-1"},
		},
	}

	if err := consumer.Handle(context.Background(), marshalPersistEvent(t, ev)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	raw, err := docs.Get(context.Background(), chunkKind, "c1")
	if err != nil {
		t.Fatalf("get c1: %v", err)
	}
	var stored domain.Chunk
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("unmarshal stored chunk: %v", err)
	}
	if stored.Data != "first" {
		t.Fatalf("expected data %q, got %q", "first", stored.Data)
	}

	if _, err := docs.Get(context.Background(), chunkKind, "c2"); err != nil {
		t.Fatalf("get c2: %v", err)
	}
}

func TestDocStoreConsumerDeleteRemovesChunksForResource(t *testing.T) {
	docs := newMemDocStore()
	consumer := NewDocStoreConsumer(docs)

	upsert := ingestworker.PersistEvent{
		Kind:         ingestworker.PersistUpsert,
		CollectionID: "col-1",
		ResourceID:   "res-1",
		Chunks: []domain.Chunk{
			{ID: "c1", Data: "first", ResourceID: "res-1", CollectionID: "col-1"},
		},
	}
	if err := consumer.Handle(context.Background(), marshalPersistEvent(t, upsert)); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	del := ingestworker.PersistEvent{Kind: ingestworker.PersistDelete, CollectionID: "col-1", ResourceID: "res-1"}
	if err := consumer.Handle(context.Background(), marshalPersistEvent(t, del)); err != nil {
		t.Fatalf("handle delete: %v", err)
	}

	if _, err := docs.Get(context.Background(), chunkKind, "c1"); err != docstore.ErrNotFound {
		t.Fatalf("expected chunk to be deleted, got err=%v", err)
	}
}

func TestDocStoreConsumerUnknownKindErrors(t *testing.T) {
	consumer := NewDocStoreConsumer(newMemDocStore())
	ev := ingestworker.PersistEvent{Kind: "bogus", CollectionID: "col-1"}
	if err := consumer.Handle(context.Background(), marshalPersistEvent(t, ev)); err == nil {
		t.Fatalf("expected error for unknown persist event kind")
	}
}

func TestVectorConsumerUnknownKindErrors(t *testing.T) {
	consumer := NewVectorConsumer(nil)
	ev := ingestworker.PersistEvent{Kind: "bogus", CollectionID: "col-1"}
	if err := consumer.Handle(context.Background(), marshalPersistEvent(t, ev)); err == nil {
		t.Fatalf("expected error for unknown persist event kind")
	}
}
