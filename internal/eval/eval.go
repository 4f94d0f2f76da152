// Package eval runs stored test cases back through the query engine and
// scores the results: Hit, Recall@K and ReciprocalRank per case, rolled up
// into an EvalRun.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/query"
)

const (
	testCaseKind = "evalcase"
	runKind      = "evalrun"
	runTopK      = 5
)

// QueryEngine is the narrow slice of query.Engine the evaluator needs,
// letting tests substitute a fake instead of a live embedding/vector stack.
type QueryEngine interface {
	Query(ctx context.Context, req query.Request) ([]query.Result, error)
}

// Repo stores EvalTestCase and EvalRun documents.
type Repo struct {
	store docstore.Store
}

func NewRepo(store docstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) CreateTestCase(ctx context.Context, tc domain.EvalTestCase) (domain.EvalTestCase, error) {
	if tc.CollectionID == "" || tc.OwnerID == "" || tc.Query == "" {
		return domain.EvalTestCase{}, fmt.Errorf("%w: collectionId, ownerId and query are required", domain.ErrInvalidQuery)
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	tc.CreatedAt = time.Now().UTC()
	indexed := map[string]string{"collectionId": tc.CollectionID, "ownerId": tc.OwnerID}
	if err := r.store.Put(ctx, testCaseKind, tc.ID, tc, indexed); err != nil {
		return domain.EvalTestCase{}, fmt.Errorf("create test case: %w", err)
	}
	return tc, nil
}

func (r *Repo) ListTestCases(ctx context.Context, collectionID, ownerID string) ([]domain.EvalTestCase, error) {
	raws, err := r.store.List(ctx, testCaseKind, map[string]string{"collectionId": collectionID, "ownerId": ownerID})
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	out := make([]domain.EvalTestCase, 0, len(raws))
	for _, raw := range raws {
		var tc domain.EvalTestCase
		if err := json.Unmarshal(raw, &tc); err != nil {
			continue
		}
		out = append(out, tc)
	}
	return out, nil
}

func (r *Repo) SaveRun(ctx context.Context, run domain.EvalRun) error {
	indexed := map[string]string{"collectionId": run.CollectionID, "ownerId": run.OwnerID}
	if err := r.store.Put(ctx, runKind, run.ID, run, indexed); err != nil {
		return fmt.Errorf("save eval run: %w", err)
	}
	return nil
}

// ErrNoTestCases is returned by Run when the collection/owner pair has no
// test cases registered.
var ErrNoTestCases = errors.New("no test cases for collection/owner")

// Evaluator runs test cases through the query engine and scores them.
type Evaluator struct {
	cases  *Repo
	engine QueryEngine
}

func New(cases *Repo, engine QueryEngine) *Evaluator {
	return &Evaluator{cases: cases, engine: engine}
}

// Run executes every test case for (collectionID, ownerID), scores the
// retrieved chunk ids against each case's expected ids, persists the
// resulting EvalRun and returns it.
func (e *Evaluator) Run(ctx context.Context, collectionID, ownerID string) (domain.EvalRun, error) {
	cases, err := e.cases.ListTestCases(ctx, collectionID, ownerID)
	if err != nil {
		return domain.EvalRun{}, err
	}
	if len(cases) == 0 {
		return domain.EvalRun{}, ErrNoTestCases
	}

	run := domain.EvalRun{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		OwnerID:      ownerID,
		TotalCases:   len(cases),
		RanAt:        time.Now().UTC(),
	}

	var totalRecall, totalRR float64
	for _, tc := range cases {
		results, err := e.engine.Query(ctx, query.Request{
			CollectionID: collectionID,
			OwnerID:      ownerID,
			Query:        tc.Query,
			TopK:         runTopK,
		})
		if err != nil {
			return domain.EvalRun{}, fmt.Errorf("query test case %s: %w", tc.ID, err)
		}

		retrieved := make([]string, len(results))
		for i, r := range results {
			retrieved[i] = r.ID
		}
		result := scoreCase(tc, retrieved)

		totalRecall += result.Recall
		totalRR += result.ReciprocalRank
		if result.Hit {
			run.HitCount++
		} else {
			run.FailedCases = append(run.FailedCases, result)
		}
		run.Results = append(run.Results, result)
	}

	run.OverallAccuracy = float64(run.HitCount) / float64(run.TotalCases)
	run.AverageRecall = totalRecall / float64(run.TotalCases)
	run.MRR = totalRR / float64(run.TotalCases)

	if err := e.cases.SaveRun(ctx, run); err != nil {
		return domain.EvalRun{}, err
	}
	return run, nil
}

func scoreCase(tc domain.EvalTestCase, retrieved []string) domain.EvalCaseResult {
	expected := make(map[string]struct{}, len(tc.ExpectedChunkIDs))
	for _, id := range tc.ExpectedChunkIDs {
		expected[id] = struct{}{}
	}

	matched := 0
	reciprocalRank := 0.0
	for i, id := range retrieved {
		if _, ok := expected[id]; !ok {
			continue
		}
		matched++
		if reciprocalRank == 0 {
			reciprocalRank = 1 / float64(i+1)
		}
	}

	recall := 0.0
	if len(expected) > 0 {
		recall = float64(matched) / float64(len(expected))
	}

	return domain.EvalCaseResult{
		TestCaseID:     tc.ID,
		Query:          tc.Query,
		RetrievedIDs:   retrieved,
		Hit:            reciprocalRank > 0,
		Recall:         recall,
		ReciprocalRank: reciprocalRank,
	}
}
