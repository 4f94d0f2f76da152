package collections

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
)

type memDocStore struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	indexed map[string]map[string]string
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[string]json.RawMessage), indexed: make(map[string]map[string]string)}
}

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

func (m *memDocStore) Put(_ context.Context, kind, id string, value any, indexed map[string]string) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[m.key(kind, id)] = body
	m.indexed[m.key(kind, id)] = indexed
	return nil
}

func (m *memDocStore) Delete(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, m.key(kind, id))
	return nil
}

func (m *memDocStore) List(_ context.Context, kind string, filter map[string]string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []json.RawMessage
next:
	for k, v := range m.docs {
		if len(k) > len(kind) && k[:len(kind)] == kind {
			for fk, fv := range filter {
				if m.indexed[k][fk] != fv {
					continue next
				}
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func validSettings() domain.CollectionSettings {
	return domain.CollectionSettings{
		ChunkSize:    500,
		ChunkOverlap: 50,
		DenseModel:   "text-embedding-3-small",
	}
}

func TestPutCollectionRejectsInvalidSettings(t *testing.T) {
	repo := New(newMemDocStore())
	err := repo.PutCollection(context.Background(), domain.Collection{
		ID:       "col-1",
		Settings: domain.CollectionSettings{ChunkSize: 0},
	})
	if err == nil {
		t.Fatalf("expected validation error for zero chunk size")
	}
}

func TestGetCollectionNotFoundMapsToDomainError(t *testing.T) {
	repo := New(newMemDocStore())
	_, err := repo.GetCollection(context.Background(), "missing")
	if err != domain.ErrNotFound {
		t.Fatalf("expected domain.ErrNotFound, got %v", err)
	}
}

func TestListCollectionsReturnsAllRegistered(t *testing.T) {
	repo := New(newMemDocStore())
	for _, id := range []string{"col-a", "col-b", "col-c"} {
		if err := repo.PutCollection(context.Background(), domain.Collection{ID: id, Settings: validSettings()}); err != nil {
			t.Fatalf("put collection %s: %v", id, err)
		}
	}

	cols, err := repo.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("list collections: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("expected 3 collections, got %d", len(cols))
	}
}

func TestListResourcesByCollectionFiltersByCollectionID(t *testing.T) {
	repo := New(newMemDocStore())
	resources := []domain.Resource{
		{ID: "res-1", CollectionID: "col-1"},
		{ID: "res-2", CollectionID: "col-1"},
		{ID: "res-3", CollectionID: "col-2"},
	}
	for _, r := range resources {
		if err := repo.PutResource(context.Background(), r); err != nil {
			t.Fatalf("put resource %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListResourcesByCollection(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resources for col-1, got %d", len(got))
	}
}

func TestDeleteResourceRemovesIt(t *testing.T) {
	repo := New(newMemDocStore())
	if err := repo.PutResource(context.Background(), domain.Resource{ID: "res-1", CollectionID: "col-1"}); err != nil {
		t.Fatalf("put resource: %v", err)
	}
	if err := repo.DeleteResource(context.Background(), "res-1"); err != nil {
		t.Fatalf("delete resource: %v", err)
	}
	if _, err := repo.GetResource(context.Background(), "res-1"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSettingsCacheServesFromCacheUntilInvalidated(t *testing.T) {
	store := newMemDocStore()
	repo := New(store)
	settings := validSettings()
	if err := repo.PutCollection(context.Background(), domain.Collection{ID: "col-1", Settings: settings}); err != nil {
		t.Fatalf("put collection: %v", err)
	}

	cache := NewSettingsCache(repo, time.Minute)
	got, err := cache.Get(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChunkSize != settings.ChunkSize {
		t.Fatalf("expected chunk size %d, got %d", settings.ChunkSize, got.ChunkSize)
	}

	updated := settings
	updated.ChunkSize = 999
	if err := repo.PutCollection(context.Background(), domain.Collection{ID: "col-1", Settings: updated}); err != nil {
		t.Fatalf("put updated collection: %v", err)
	}

	stale, err := cache.Get(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if stale.ChunkSize != settings.ChunkSize {
		t.Fatalf("expected cached stale value %d, got %d", settings.ChunkSize, stale.ChunkSize)
	}

	cache.Invalidate("col-1")
	fresh, err := cache.Get(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if fresh.ChunkSize != updated.ChunkSize {
		t.Fatalf("expected fresh chunk size %d, got %d", updated.ChunkSize, fresh.ChunkSize)
	}
}
