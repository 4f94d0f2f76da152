package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragforge/ragcore/internal/adapter"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

// matchThreshold is the dense similarity above which a new feedback event is
// merged into an existing FeedbackDoc rather than starting a new one.
const matchThreshold = 0.9

// SettingsSource resolves a collection's dense/sparse model names, the only
// settings the worker needs.
type SettingsSource interface {
	Get(ctx context.Context, collectionID string) (domain.CollectionSettings, error)
}

// Event is the {query, chunkId, resourceId, action, collectionId, ownerId}
// payload published to the feedback subject.
type Event struct {
	CollectionID string `json:"collectionId"`
	OwnerID      string `json:"ownerId"`
	Query        string `json:"query"`
	ChunkID      string `json:"chunkId"`
	ResourceID   string `json:"resourceId"`
	Action       string `json:"action"` // "upvote" | "downvote"
}

const (
	ActionUpvote   = "upvote"
	ActionDownvote = "downvote"
)

// Worker processes feedback events end to end.
type Worker struct {
	store    *Store
	settings SettingsSource
	embed    *embedclient.Client
	vectors  VectorIndex
	adapters *adapter.Service
	log      *slog.Logger
}

func NewWorker(store *Store, settings SettingsSource, embed *embedclient.Client, vectors VectorIndex, adapters *adapter.Service, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: store, settings: settings, embed: embed, vectors: vectors, adapters: adapters, log: log}
}

// Process runs the full feedback sequence for one event.
func (w *Worker) Process(ctx context.Context, ev Event) error {
	if ev.Action != ActionUpvote && ev.Action != ActionDownvote {
		return fmt.Errorf("%w: unknown feedback action %q", domain.ErrInvalidQuery, ev.Action)
	}
	ownerID := domain.OwnerOrDefault(ev.OwnerID)

	settings, err := w.settings.Get(ctx, ev.CollectionID)
	if err != nil {
		return fmt.Errorf("load collection settings: %w", err)
	}

	denseVecs, err := w.embed.EncodeDense(ctx, []string{ev.Query}, settings.DenseModel)
	if err != nil {
		return fmt.Errorf("embed feedback query: %w", err)
	}
	queryVec := denseVecs[0]

	var sparseVec *domain.SparseVector
	if settings.SparseModel != "" {
		sparse, err := w.embed.EncodeSparse(ctx, []string{ev.Query}, settings.SparseModel)
		if err != nil {
			return fmt.Errorf("embed feedback query sparse: %w", err)
		}
		sparseVec = &sparse[0]
	}

	feedbackID, nearestScore, matched, err := w.store.Nearest(ctx, ev.CollectionID, ownerID, queryVec)
	if err != nil {
		return err
	}
	if !matched || nearestScore <= matchThreshold {
		feedbackID = domain.FeedbackID(ev.CollectionID, ownerID, ev.Query)
	}

	doc, err := w.store.Load(ctx, feedbackID)
	if err != nil {
		if err != domain.ErrNotFound {
			return err
		}
		doc = domain.FeedbackDoc{
			ID:           feedbackID,
			Query:        ev.Query,
			CollectionID: ev.CollectionID,
			OwnerID:      ownerID,
			Hits:         make(map[string]domain.FeedbackHit),
		}
	}
	if doc.Hits == nil {
		doc.Hits = make(map[string]domain.FeedbackHit)
	}

	hit := doc.Hits[ev.ChunkID]
	hit.ResourceID = ev.ResourceID
	if ev.Action == ActionUpvote {
		hit.Count++
	} else {
		hit.Count--
	}
	doc.Hits[ev.ChunkID] = hit

	if err := w.store.UpsertQueryPoint(ctx, ev.CollectionID, feedbackID, ownerID, queryVec, sparseVec); err != nil {
		return err
	}
	if err := w.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save feedback doc: %w", err)
	}

	if ev.Action == ActionUpvote {
		chunkVec, err := w.vectors.GetDense(ctx, ev.CollectionID, ev.ChunkID)
		if err != nil {
			// Adapter training is best-effort; a missing chunk vector must
			// not fail feedback processing.
			w.log.Warn("feedback: upvoted chunk vector unavailable, skipping adapter training", "chunk", ev.ChunkID, "error", err)
			return nil
		}
		if err := w.adapters.TrainWithFeedback(ctx, ev.CollectionID, queryVec, chunkVec); err != nil {
			w.log.Warn("feedback: adapter training failed", "collection", ev.CollectionID, "error", err)
		}
	}
	return nil
}
