package ingestworker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/ragforge/ragcore/internal/chunker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docprocessor"
	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
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

type fakeLoader struct{ content string }

func (f fakeLoader) Load(_ context.Context, _ domain.Resource) (string, error) { return f.content, nil }

type fakeDenseEncoder struct{}

func (fakeDenseEncoder) EncodeDense(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func startTestNATS(t *testing.T) (*nats.Conn, func()) {
	t.Helper()
	opts := &server.Options{Port: -1, NoLog: true, NoSigs: true}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(2 * time.Second) {
		t.Fatalf("nats server not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	return nc, func() { nc.Close(); ns.Shutdown() }
}

func newTestEmbedServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		embeddings := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			embeddings[i] = []float32{1, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
}

func TestHandleLoadThenChunkPublishesPersistEvents(t *testing.T) {
	nc, cleanup := startTestNATS(t)
	defer cleanup()

	embedServer := newTestEmbedServer()
	defer embedServer.Close()

	docs := newMemDocStore()
	repo := collections.New(docs)
	settingsCache := collections.NewSettingsCache(repo, time.Minute)

	col := domain.Collection{ID: "col-1", Settings: domain.CollectionSettings{
		DenseModel: "bge-small", ChunkSize: 200, Strategy: domain.StrategyRecursive,
	}}
	if err := repo.PutCollection(context.Background(), col); err != nil {
		t.Fatalf("put collection: %v", err)
	}
	res := domain.Resource{ID: "res-1", CollectionID: "col-1", OwnerID: "owner-1", URL: "https://example.com/a"}
	if err := repo.PutResource(context.Background(), res); err != nil {
		t.Fatalf("put resource: %v", err)
	}

	processor := docprocessor.Deps{
		Chunker: chunker.New(fakeDenseEncoder{}),
		Embed:   embedclient.New(embedServer.URL),
	}
	worker := NewWorker(repo, settingsCache, fakeLoader{content: "Cats are great pets. Dogs are loyal."}, processor, nc, nil)

	received := make(chan PersistEvent, 8)
	sub, err := nc.Subscribe("chunk_exchange.mongo-sync", func(msg *nats.Msg) {
		var ev PersistEvent
		_ = json.Unmarshal(msg.Data, &ev)
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// handleLoad only republishes a "chunk" event to the ingest subject; the
	// worker must be subscribed to its own subject to pick that event back up
	// and run the chunk step, same as in production.
	ingestSub, err := worker.Subscribe()
	if err != nil {
		t.Fatalf("subscribe worker: %v", err)
	}
	defer ingestSub.Unsubscribe()

	worker.Handle(context.Background(), marshalEnvelope(t, EventLoad, LoadData{ResourceID: "res-1"}))

	select {
	case ev := <-received:
		if ev.Kind != PersistUpsert {
			t.Fatalf("expected upsert persist event, got %s", ev.Kind)
		}
		if len(ev.Chunks) == 0 {
			t.Fatalf("expected at least one chunk in persist event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for persist event")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		updated, err := repo.GetResource(context.Background(), "res-1")
		if err != nil {
			t.Fatalf("get resource: %v", err)
		}
		if updated.Status == domain.StatusChunked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected status chunked, got %s", updated.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func marshalEnvelope(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	env := Envelope{Version: 1, Event: event, Data: raw}
	out, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}
