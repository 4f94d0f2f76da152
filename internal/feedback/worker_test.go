package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ragforge/ragcore/internal/adapter"
	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/vectorstore"
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

type fakeVectorIndex struct {
	mu     sync.Mutex
	points map[string][]vectorstore.Point // collection -> points
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{points: make(map[string][]vectorstore.Point)}
}

func (f *fakeVectorIndex) Upsert(_ context.Context, collectionName string, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		replaced := false
		existing := f.points[collectionName]
		for i, e := range existing {
			if e.ID == p.ID {
				existing[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			f.points[collectionName] = append(f.points[collectionName], p)
		}
	}
	return nil
}

func (f *fakeVectorIndex) DenseQuery(_ context.Context, collectionName string, vector []float32, limit uint64, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vectorstore.ScoredPoint
	for _, p := range f.points[collectionName] {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, vectorstore.ScoredPoint{ID: p.ID, Score: cosine(vector, p.Dense)})
	}
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVectorIndex) GetDense(_ context.Context, collectionName, id string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.points[collectionName] {
		if p.ID == id {
			return p.Dense, nil
		}
	}
	return nil, domain.ErrNotFound
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

type fakeSettings struct{}

func (fakeSettings) Get(_ context.Context, _ string) (domain.CollectionSettings, error) {
	return domain.CollectionSettings{DenseModel: "bge-small"}, nil
}

func newTestEmbedServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		embeddings := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			// Deterministic pseudo-embedding so identical text queries land
			// at the same point: the first three byte values, zero-padded.
			v := []float32{0, 0, 0}
			for j := 0; j < len(text) && j < 3; j++ {
				v[j] = float32(text[j])
			}
			embeddings[i] = v
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
}

func TestWorkerUpvoteCreatesFeedbackDocAndTrainsAdapter(t *testing.T) {
	server := newTestEmbedServer()
	defer server.Close()

	docs := newMemDocStore()
	vectors := newFakeVectorIndex()
	store := NewStore(docs, vectors)
	embed := embedclient.New(server.URL)
	fileStore := adapter.NewFileStore(t.TempDir())
	adapters := adapter.NewService(fileStore, nil)

	// Seed the upvoted chunk's vector directly into the chunk collection.
	_ = vectors.Upsert(context.Background(), "col-1", []vectorstore.Point{
		{ID: "chunk-1", Dense: []float32{1, 2, 3}, CollectionID: "col-1", OwnerID: "owner-1"},
	})

	w := NewWorker(store, fakeSettings{}, embed, vectors, adapters, nil)
	ev := Event{CollectionID: "col-1", OwnerID: "owner-1", Query: "cats", ChunkID: "chunk-1", ResourceID: "res-1", Action: ActionUpvote}

	for i := 0; i < 3; i++ {
		if err := w.Process(context.Background(), ev); err != nil {
			t.Fatalf("process upvote %d: %v", i, err)
		}
	}

	feedbackID := domain.FeedbackID("col-1", "owner-1", "cats")
	doc, err := store.Load(context.Background(), feedbackID)
	if err != nil {
		t.Fatalf("load feedback doc: %v", err)
	}
	if doc.Hits["chunk-1"].Count != 3 {
		t.Fatalf("expected 3 upvotes, got %d", doc.Hits["chunk-1"].Count)
	}
	rec, err := fileStore.Load(context.Background(), "col-1")
	if err != nil {
		t.Fatalf("load adapter record: %v", err)
	}
	if rec.TrainingCount != 3 {
		t.Fatalf("expected adapter trained 3 times, got %d", rec.TrainingCount)
	}
}

func TestWorkerDownvoteDecrementsCount(t *testing.T) {
	server := newTestEmbedServer()
	defer server.Close()

	docs := newMemDocStore()
	vectors := newFakeVectorIndex()
	store := NewStore(docs, vectors)
	embed := embedclient.New(server.URL)
	adapters := adapter.NewService(adapter.NewFileStore(t.TempDir()), nil)

	w := NewWorker(store, fakeSettings{}, embed, vectors, adapters, nil)
	ev := Event{CollectionID: "col-1", OwnerID: "owner-1", Query: "dogs", ChunkID: "chunk-2", ResourceID: "res-2", Action: ActionDownvote}
	if err := w.Process(context.Background(), ev); err != nil {
		t.Fatalf("process downvote: %v", err)
	}

	feedbackID := domain.FeedbackID("col-1", "owner-1", "dogs")
	doc, err := store.Load(context.Background(), feedbackID)
	if err != nil {
		t.Fatalf("load feedback doc: %v", err)
	}
	if doc.Hits["chunk-2"].Count != -1 {
		t.Fatalf("expected -1 count, got %d", doc.Hits["chunk-2"].Count)
	}
}
