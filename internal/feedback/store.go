// Package feedback turns upvote/downvote events into two things: a
// content-addressed FeedbackDoc of per-chunk hit counts, and online training
// of the collection's adapter.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

const feedbackDocKind = "feedbackdoc"

// CollectionName is the feedback vector collection's name for collectionID,
// separate from the chunk collection so similar-query lookup stays a plain
// vector search.
func CollectionName(collectionID string) string {
	return "feedback_" + collectionID
}

// VectorIndex is the slice of vectorstore.Store that the feedback package
// needs, narrowed to an interface so it can be faked in tests without a real
// Qdrant connection.
type VectorIndex interface {
	DenseQuery(ctx context.Context, collectionName string, vector []float32, limit uint64, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error)
	Upsert(ctx context.Context, collectionName string, points []vectorstore.Point) error
	GetDense(ctx context.Context, collectionName, id string) ([]float32, error)
}

// Store persists FeedbackDocs (document store) and their query-embedding
// points (vector store, in the feedback_<collectionId> collection).
type Store struct {
	docs    docstore.Store
	vectors VectorIndex
}

func NewStore(docs docstore.Store, vectors VectorIndex) *Store {
	return &Store{docs: docs, vectors: vectors}
}

func (s *Store) Load(ctx context.Context, feedbackID string) (domain.FeedbackDoc, error) {
	raw, err := s.docs.Get(ctx, feedbackDocKind, feedbackID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.FeedbackDoc{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FeedbackDoc{}, fmt.Errorf("load feedback doc %s: %w", feedbackID, err)
	}
	var doc domain.FeedbackDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.FeedbackDoc{}, fmt.Errorf("decode feedback doc %s: %w", feedbackID, err)
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, doc domain.FeedbackDoc) error {
	return s.docs.Put(ctx, feedbackDocKind, doc.ID, doc, map[string]string{
		"collectionId": doc.CollectionID,
		"ownerId":      doc.OwnerID,
	})
}

// Nearest finds the closest prior feedback query for collectionID owned by
// ownerID, using plain dense similarity over the feedback vector collection.
func (s *Store) Nearest(ctx context.Context, collectionID, ownerID string, dense []float32) (id string, score float64, found bool, err error) {
	results, err := s.vectors.DenseQuery(ctx, CollectionName(collectionID), dense, 1, vectorstore.Filter{OwnerID: ownerID})
	if err != nil {
		return "", 0, false, fmt.Errorf("nearest feedback query: %w", err)
	}
	if len(results) == 0 {
		return "", 0, false, nil
	}
	return results[0].ID, results[0].Score, true, nil
}

// SimilarQueries returns up to limit prior feedback queries for collectionID
// with dense similarity strictly above minScore, used by the query engine's
// feedback-fusion step.
func (s *Store) SimilarQueries(ctx context.Context, collectionID, ownerID string, dense []float32, limit int, minScore float64) ([]vectorstore.ScoredPoint, error) {
	results, err := s.vectors.DenseQuery(ctx, CollectionName(collectionID), dense, uint64(limit), vectorstore.Filter{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("similar feedback queries: %w", err)
	}
	out := results[:0]
	for _, r := range results {
		if r.Score > minScore {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpsertQueryPoint writes (or overwrites) the feedback query embedding point
// for feedbackID in collectionID's feedback vector collection.
func (s *Store) UpsertQueryPoint(ctx context.Context, collectionID, feedbackID, ownerID string, dense []float32, sparse *domain.SparseVector) error {
	point := vectorstore.Point{
		ID:           feedbackID,
		Dense:        dense,
		Sparse:       sparse,
		CollectionID: collectionID,
		OwnerID:      ownerID,
	}
	if err := s.vectors.Upsert(ctx, CollectionName(collectionID), []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("upsert feedback query point: %w", err)
	}
	return nil
}
