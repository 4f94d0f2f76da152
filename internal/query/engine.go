// Package query implements the retrieval path: embed the query, fetch
// hybrid candidates, optionally rerank and adapter-transform, then fuse in
// historical feedback before truncating to topK.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ragforge/ragcore/internal/adapter"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/fn"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

const (
	candidatePoolSize = 50
	defaultTopK       = 5
	feedbackPoolSize  = 5
	feedbackMinScore  = 0.85
)

// SettingsSource resolves a collection's retrieval configuration.
type SettingsSource interface {
	Get(ctx context.Context, collectionID string) (domain.CollectionSettings, error)
}

// VectorIndex is the slice of vectorstore.Store the query engine needs,
// narrowed to an interface for testability.
type VectorIndex interface {
	DenseQuery(ctx context.Context, collectionName string, vector []float32, limit uint64, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error)
	HybridQuery(ctx context.Context, collectionName string, dense []float32, sparse *domain.SparseVector, limit uint64, filter vectorstore.Filter) ([]vectorstore.ScoredPoint, error)
	RerankQuery(ctx context.Context, collectionName string, rerankVector [][]float32, candidateIDs []string, limit uint64) ([]vectorstore.ScoredPoint, error)
}

// FeedbackIndex is the slice of feedback.Store the query engine needs for
// feedback fusion.
type FeedbackIndex interface {
	SimilarQueries(ctx context.Context, collectionID, ownerID string, dense []float32, limit int, minScore float64) ([]vectorstore.ScoredPoint, error)
	Load(ctx context.Context, feedbackID string) (domain.FeedbackDoc, error)
}

// AnalyticsEvent is fired and forgotten after a search when requested.
type AnalyticsEvent struct {
	CollectionID string `json:"collectionId"`
	OwnerID      string `json:"ownerId"`
	Query        string `json:"query"`
	ResultCount  int    `json:"resultCount"`
}

// Request is one query engine invocation.
type Request struct {
	CollectionID string
	OwnerID      string
	ResourceID   string
	Query        string
	TopK         int
	UseFeedback  bool
	Analytics    bool
}

// Result is one ranked chunk.
type Result struct {
	ID         string
	Score      float64
	Content    string
	ResourceID string
	Metadata   map[string]any
}

// Engine composes embedding, retrieval, rerank, adapter transform and
// feedback fusion into one search call.
type Engine struct {
	settings  SettingsSource
	embed     *embedclient.Client
	vectors   VectorIndex
	adapters  *adapter.Service
	feedback  FeedbackIndex
	analytics func(ctx context.Context, ev AnalyticsEvent)
	log       *slog.Logger
}

// New builds an Engine. analytics may be nil, in which case Analytics
// requests are silently dropped.
func New(settings SettingsSource, embed *embedclient.Client, vectors VectorIndex, adapters *adapter.Service, fb FeedbackIndex, analytics func(context.Context, AnalyticsEvent), log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{settings: settings, embed: embed, vectors: vectors, adapters: adapters, feedback: fb, analytics: analytics, log: log}
}

// Query runs the full retrieval path for req.
func (e *Engine) Query(ctx context.Context, req Request) ([]Result, error) {
	if err := domain.ValidateQuery(req.Query, req.CollectionID); err != nil {
		return nil, err
	}
	ownerID := domain.OwnerOrDefault(req.OwnerID)
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	settings, err := e.settings.Get(ctx, req.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("load collection settings: %w", err)
	}

	dense, sparse, lateInteraction, err := e.embedQuery(ctx, req.Query, settings)
	if err != nil {
		return nil, err
	}

	transformedDense := e.adapters.Transform(ctx, req.CollectionID, dense)

	filter := vectorstore.Filter{
		OwnerIDs:   []string{ownerID, domain.DefaultOwnerID},
		ResourceID: req.ResourceID,
	}

	var candidates []vectorstore.ScoredPoint
	if sparse != nil {
		candidates, err = e.vectors.HybridQuery(ctx, req.CollectionID, transformedDense, sparse, candidatePoolSize, filter)
	} else {
		candidates, err = e.vectors.DenseQuery(ctx, req.CollectionID, transformedDense, candidatePoolSize, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	if settings.RerankerModel != "" && lateInteraction != nil {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		if len(ids) > 0 {
			reranked, err := e.vectors.RerankQuery(ctx, req.CollectionID, lateInteraction, ids, candidatePoolSize)
			if err != nil {
				e.log.Warn("rerank failed, keeping hybrid order", "collection", req.CollectionID, "error", err)
			} else {
				candidates = reranked
			}
		}
	}

	results := toResults(candidates)

	if req.UseFeedback {
		results = e.applyFeedback(ctx, req.CollectionID, ownerID, dense, results)
	}

	if len(results) > topK {
		results = results[:topK]
	}

	if req.Analytics && e.analytics != nil {
		go e.analytics(context.WithoutCancel(ctx), AnalyticsEvent{
			CollectionID: req.CollectionID,
			OwnerID:      ownerID,
			Query:        req.Query,
			ResultCount:  len(results),
		})
	}

	return results, nil
}

// embedQuery computes the dense embedding always, plus sparse and
// late-interaction embeddings concurrently when the collection configures
// those models.
func (e *Engine) embedQuery(ctx context.Context, query string, settings domain.CollectionSettings) (dense []float32, sparse *domain.SparseVector, lateInteraction [][]float32, err error) {
	type part struct {
		dense  []float32
		sparse *domain.SparseVector
		late   [][]float32
	}
	fns := []func() fn.Result[part]{
		func() fn.Result[part] {
			vecs, err := e.embed.EncodeDense(ctx, []string{query}, settings.DenseModel)
			if err != nil {
				return fn.Err[part](err)
			}
			return fn.Ok(part{dense: vecs[0]})
		},
	}
	if settings.SparseModel != "" {
		fns = append(fns, func() fn.Result[part] {
			vecs, err := e.embed.EncodeSparse(ctx, []string{query}, settings.SparseModel)
			if err != nil {
				return fn.Err[part](err)
			}
			return fn.Ok(part{sparse: &vecs[0]})
		})
	}
	if settings.RerankerModel != "" {
		fns = append(fns, func() fn.Result[part] {
			vecs, err := e.embed.EncodeLateInteraction(ctx, []string{query}, settings.RerankerModel)
			if err != nil {
				return fn.Err[part](err)
			}
			return fn.Ok(part{late: vecs[0]})
		})
	}

	parts, collectErr := fn.FanOutResult(fns...).Unwrap()
	if collectErr != nil {
		return nil, nil, nil, fmt.Errorf("embed query: %w", collectErr)
	}
	for _, p := range parts {
		switch {
		case p.dense != nil:
			dense = p.dense
		case p.sparse != nil:
			sparse = p.sparse
		case p.late != nil:
			lateInteraction = p.late
		}
	}
	return dense, sparse, lateInteraction, nil
}

// applyFeedback adds ln(count) * similarity to every result chunk a
// sufficiently similar prior query upvoted, then re-sorts by score.
func (e *Engine) applyFeedback(ctx context.Context, collectionID, ownerID string, dense []float32, results []Result) []Result {
	similar, err := e.feedback.SimilarQueries(ctx, collectionID, ownerID, dense, feedbackPoolSize, feedbackMinScore)
	if err != nil {
		e.log.Warn("feedback fusion lookup failed, skipping", "collection", collectionID, "error", err)
		return results
	}
	if len(similar) == 0 {
		return results
	}

	byID := make(map[string]int, len(results))
	for i, r := range results {
		byID[r.ID] = i
	}

	for _, s := range similar {
		doc, err := e.feedback.Load(ctx, s.ID)
		if err != nil {
			continue
		}
		for chunkID, hit := range doc.Hits {
			if hit.Count <= 0 {
				continue
			}
			idx, ok := byID[chunkID]
			if !ok {
				continue
			}
			results[idx].Score += math.Log(float64(hit.Count)) * s.Score
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func toResults(points []vectorstore.ScoredPoint) []Result {
	out := make([]Result, len(points))
	for i, p := range points {
		content, _ := p.Payload["content"].(string)
		resourceID, _ := p.Payload["resourceId"].(string)
		meta := make(map[string]any)
		for k, v := range p.Payload {
			if strings.HasPrefix(k, "metadata.") {
				meta[strings.TrimPrefix(k, "metadata.")] = v
			}
		}
		out[i] = Result{ID: p.ID, Score: p.Score, Content: content, ResourceID: resourceID, Metadata: meta}
	}
	return out
}
