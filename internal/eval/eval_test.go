package eval

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/query"
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

// fakeEngine returns a hit for every even-indexed query and a miss for every
// odd-indexed one, so a 10-case run produces a predictable 5/10 split.
type fakeEngine struct {
	calls int
}

func (f *fakeEngine) Query(_ context.Context, req query.Request) ([]query.Result, error) {
	f.calls++
	if f.calls%2 == 1 {
		return []query.Result{{ID: "expected-" + req.Query, Score: 1}}, nil
	}
	return []query.Result{{ID: "other-chunk", Score: 1}}, nil
}

func TestRunAggregatesHitRecallAndMRR(t *testing.T) {
	docs := newMemDocStore()
	repo := NewRepo(docs)
	evaluator := New(repo, &fakeEngine{})

	const total = 10
	for i := 0; i < total; i++ {
		q := "query-" + string(rune('a'+i))
		_, err := repo.CreateTestCase(context.Background(), domain.EvalTestCase{
			CollectionID:     "col-1",
			OwnerID:          "owner-1",
			Query:            q,
			ExpectedChunkIDs: []string{"expected-" + q},
		})
		if err != nil {
			t.Fatalf("create test case %d: %v", i, err)
		}
	}

	run, err := evaluator.Run(context.Background(), "col-1", "owner-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.TotalCases != total {
		t.Fatalf("expected %d total cases, got %d", total, run.TotalCases)
	}
	if run.HitCount != 5 {
		t.Fatalf("expected 5 hits, got %d", run.HitCount)
	}
	if len(run.FailedCases) != run.TotalCases-run.HitCount {
		t.Fatalf("failedCases length %d does not equal totalCases-hitCount %d", len(run.FailedCases), run.TotalCases-run.HitCount)
	}
	if run.OverallAccuracy != 0.5 {
		t.Fatalf("expected overall accuracy 0.5, got %v", run.OverallAccuracy)
	}
}

func TestRunWithNoTestCasesReturnsErrNoTestCases(t *testing.T) {
	repo := NewRepo(newMemDocStore())
	evaluator := New(repo, &fakeEngine{})

	_, err := evaluator.Run(context.Background(), "col-empty", "owner-1")
	if err != ErrNoTestCases {
		t.Fatalf("expected ErrNoTestCases, got %v", err)
	}
}

func TestScoreCaseComputesRecallAndReciprocalRank(t *testing.T) {
	tc := domain.EvalTestCase{ID: "tc-1", Query: "q", ExpectedChunkIDs: []string{"a", "b"}}
	result := scoreCase(tc, []string{"x", "a", "b"})

	if !result.Hit {
		t.Fatalf("expected hit")
	}
	if result.Recall != 1.0 {
		t.Fatalf("expected recall 1.0, got %v", result.Recall)
	}
	if result.ReciprocalRank != 0.5 {
		t.Fatalf("expected reciprocal rank 0.5 (first hit at position 2), got %v", result.ReciprocalRank)
	}
}
