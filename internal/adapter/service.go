package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ragforge/ragcore/internal/domain"
)

// RecordStore persists one AdapterRecord per collection. The two
// interchangeable backends (file, document store) both implement this.
type RecordStore interface {
	Load(ctx context.Context, collectionID string) (domain.AdapterRecord, error)
	Save(ctx context.Context, rec domain.AdapterRecord) error
}

var ErrNoRecord = errors.New("no adapter record stored for collection")

// Service caches one Adapter instance per collection; eviction is manual via
// ClearCache. Train and Transform are not safe to call concurrently for the
// same collection — callers (the feedback consumer) must serialize training
// per collection themselves.
type Service struct {
	store RecordStore
	log   *slog.Logger

	mu    sync.Mutex
	cache map[string]*Adapter
}

func NewService(store RecordStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, cache: make(map[string]*Adapter)}
}

// get returns the cached adapter for collectionID, loading it from the
// record store on first use. If no record exists yet, no adapter is cached
// and (nil, false) is returned: the collection has never been trained.
func (s *Service) get(ctx context.Context, collectionID string) (*Adapter, bool) {
	s.mu.Lock()
	if a, ok := s.cache[collectionID]; ok {
		s.mu.Unlock()
		return a, true
	}
	s.mu.Unlock()

	rec, err := s.store.Load(ctx, collectionID)
	if err != nil {
		return nil, false
	}
	a, err := FromRecord(rec)
	if err != nil {
		s.log.Warn("adapter record corrupt", "collection", collectionID, "error", err)
		return nil, false
	}
	s.mu.Lock()
	s.cache[collectionID] = a
	s.mu.Unlock()
	return a, true
}

// ClearCache evicts a collection's cached adapter, forcing the next access
// to reload from the record store.
func (s *Service) ClearCache(collectionID string) {
	s.mu.Lock()
	delete(s.cache, collectionID)
	s.mu.Unlock()
}

// Transform applies the collection's trained adapter to q if one exists
// (trainingCount > 0); on any error it returns q unchanged so the query
// engine can silently fall back to the untransformed vector.
func (s *Service) Transform(ctx context.Context, collectionID string, q []float32) []float32 {
	a, ok := s.get(ctx, collectionID)
	if !ok || a.TrainingCount() == 0 {
		return q
	}
	out, err := a.Transform(q)
	if err != nil {
		s.log.Warn("adapter transform failed, falling back to identity", "collection", collectionID, "error", err)
		return q
	}
	return out
}

// TrainWithFeedback trains (or initializes then trains) the collection's
// adapter from one upvoted (query, chunk) vector pair and persists it.
func (s *Service) TrainWithFeedback(ctx context.Context, collectionID string, queryVec, chunkVec []float32) error {
	s.mu.Lock()
	a, ok := s.cache[collectionID]
	s.mu.Unlock()
	if !ok {
		rec, err := s.store.Load(ctx, collectionID)
		if errors.Is(err, ErrNoRecord) {
			a = New(len(queryVec))
		} else if err != nil {
			return fmt.Errorf("load adapter record: %w", err)
		} else {
			a, err = FromRecord(rec)
			if err != nil {
				return err
			}
		}
		s.mu.Lock()
		s.cache[collectionID] = a
		s.mu.Unlock()
	}

	if err := a.Train([][]float32{queryVec}, [][]float32{chunkVec}, defaultEpochs); err != nil {
		return fmt.Errorf("train adapter: %w", err)
	}
	return s.store.Save(ctx, a.ToRecord(collectionID))
}
