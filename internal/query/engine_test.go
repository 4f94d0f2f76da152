package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragforge/ragcore/internal/adapter"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

type fakeSettings struct{ s domain.CollectionSettings }

func (f fakeSettings) Get(_ context.Context, _ string) (domain.CollectionSettings, error) {
	return f.s, nil
}

type fakeVectors struct {
	dense []vectorstore.ScoredPoint
}

func (f fakeVectors) DenseQuery(_ context.Context, _ string, _ []float32, _ uint64, _ vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	return f.dense, nil
}
func (f fakeVectors) HybridQuery(_ context.Context, _ string, _ []float32, _ *domain.SparseVector, _ uint64, _ vectorstore.Filter) ([]vectorstore.ScoredPoint, error) {
	return f.dense, nil
}
func (f fakeVectors) RerankQuery(_ context.Context, _ string, _ [][]float32, ids []string, _ uint64) ([]vectorstore.ScoredPoint, error) {
	return f.dense, nil
}

type fakeFeedback struct {
	similar []vectorstore.ScoredPoint
	docs    map[string]domain.FeedbackDoc
}

func (f fakeFeedback) SimilarQueries(_ context.Context, _, _ string, _ []float32, _ int, _ float64) ([]vectorstore.ScoredPoint, error) {
	return f.similar, nil
}
func (f fakeFeedback) Load(_ context.Context, id string) (domain.FeedbackDoc, error) {
	doc, ok := f.docs[id]
	if !ok {
		return domain.FeedbackDoc{}, domain.ErrNotFound
	}
	return doc, nil
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

func TestQueryReturnsTopKResults(t *testing.T) {
	server := newTestEmbedServer()
	defer server.Close()

	vectors := fakeVectors{dense: []vectorstore.ScoredPoint{
		{ID: "c1", Score: 0.9, Payload: map[string]any{"content": "cats are great"}},
		{ID: "c2", Score: 0.8, Payload: map[string]any{"content": "dogs are loyal"}},
		{ID: "c3", Score: 0.7, Payload: map[string]any{"content": "birds sing"}},
	}}

	settings := fakeSettings{s: domain.CollectionSettings{DenseModel: "bge-small"}}
	adapters := adapter.NewService(adapter.NewFileStore(t.TempDir()), nil)
	engine := New(settings, embedclient.New(server.URL), vectors, adapters, fakeFeedback{}, nil, nil)

	results, err := engine.Query(context.Background(), Request{CollectionID: "col-1", OwnerID: "owner-1", Query: "cats", TopK: 2})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c1" {
		t.Fatalf("expected c1 first, got %s", results[0].ID)
	}
}

func TestQueryFeedbackFusionPromotesUpvotedChunk(t *testing.T) {
	server := newTestEmbedServer()
	defer server.Close()

	vectors := fakeVectors{dense: []vectorstore.ScoredPoint{
		{ID: "c1", Score: 0.9, Payload: map[string]any{"content": "dogs are loyal"}},
		{ID: "c2", Score: 0.5, Payload: map[string]any{"content": "cats are great"}},
	}}
	fb := fakeFeedback{
		similar: []vectorstore.ScoredPoint{{ID: "fb-1", Score: 0.95}},
		docs: map[string]domain.FeedbackDoc{
			"fb-1": {ID: "fb-1", Hits: map[string]domain.FeedbackHit{"c2": {ResourceID: "res-2", Count: 3}}},
		},
	}

	settings := fakeSettings{s: domain.CollectionSettings{DenseModel: "bge-small"}}
	adapters := adapter.NewService(adapter.NewFileStore(t.TempDir()), nil)
	engine := New(settings, embedclient.New(server.URL), vectors, adapters, fb, nil, nil)

	results, err := engine.Query(context.Background(), Request{CollectionID: "col-1", OwnerID: "owner-1", Query: "cats", TopK: 2, UseFeedback: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if results[0].ID != "c2" {
		t.Fatalf("expected feedback fusion to promote c2 to rank 1, got %s", results[0].ID)
	}
}
