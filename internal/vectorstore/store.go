// Package vectorstore is the capability contract of the spec: named-vector
// upsert, dense/hybrid/multi-vector query, filter-delete, payload index. The
// vector index engine itself is an external collaborator (Qdrant); this
// package hides its wire format behind Store so the query engine never sees
// a proto type.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
	rerankVectorName = "rerank"

	hnswEF       = 128
	hybridPrefetchLimit = 2000
)

// Point is one unit to upsert: id plus whichever named vectors the
// collection's settings configure.
type Point struct {
	ID           string
	Dense        []float32
	Sparse       *domain.SparseVector
	Rerank       [][]float32
	ResourceID   string
	CollectionID string
	OwnerID      string
	Content      string
	Metadata     map[string]any
}

// ScoredPoint is a ranked retrieval result.
type ScoredPoint struct {
	ID       string
	Score    float64
	Payload  map[string]any
}

// Filter narrows a query or delete to a subset of points. OwnerIDs, when it
// has more than one entry, matches any of them (e.g. a requesting owner plus
// the public pseudo-owner) instead of requiring an exact single match.
type Filter struct {
	OwnerID    string
	OwnerIDs   []string
	ResourceID string
}

// Store wraps a Qdrant gRPC connection with the capability surface the
// query engine, ingestion worker, and feedback worker need.
type Store struct {
	conn    *grpc.ClientConn
	points  pb.PointsClient
	coll    pb.CollectionsClient
	log     *slog.Logger
	breaker *resilience.Breaker

	mu       sync.Mutex
	ensured  map[string]bool
}

// New dials addr (the Qdrant gRPC endpoint).
func New(addr string, log *slog.Logger) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		conn:    conn,
		points:  pb.NewPointsClient(conn),
		coll:    pb.NewCollectionsClient(conn),
		log:     log,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		ensured: make(map[string]bool),
	}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// guarded runs f through the store's circuit breaker, wrapping any failure
// (including an open circuit) in ErrBackendUnavailable so callers classify a
// tripped breaker the same way they classify a raw Qdrant failure.
func (s *Store) guarded(ctx context.Context, msg string, f func(context.Context) error) error {
	if err := s.breaker.Call(ctx, f); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, msg, err)
	}
	return nil
}

// EnsureCollection creates collectionName if absent, deriving its named
// vectors config from the shape of the point that triggered creation, and
// attaching a keyword payload index on ownerId for multi-tenant filtering.
func (s *Store) EnsureCollection(ctx context.Context, collectionName string, hasSparse, hasRerank bool, dims uint64) error {
	s.mu.Lock()
	if s.ensured[collectionName] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var existing *pb.ListCollectionsResponse
	err := s.guarded(ctx, "list collections", func(ctx context.Context) error {
		var listErr error
		existing, listErr = s.coll.List(ctx, &pb.ListCollectionsRequest{})
		return listErr
	})
	if err != nil {
		return err
	}
	for _, c := range existing.Collections {
		if c.Name == collectionName {
			s.mu.Lock()
			s.ensured[collectionName] = true
			s.mu.Unlock()
			return nil
		}
	}

	vecParams := map[string]*pb.VectorParams{
		denseVectorName: {Size: dims, Distance: pb.Distance_Cosine},
	}
	if hasRerank {
		vecParams[rerankVectorName] = &pb.VectorParams{
			Size:     dims,
			Distance: pb.Distance_Cosine,
			MultivectorConfig: &pb.MultiVectorConfig{
				Comparator: pb.MultiVectorComparator_MaxSim,
			},
		}
	}

	req := &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{Map: vecParams},
			},
		},
	}
	if hasSparse {
		req.SparseVectorsConfig = &pb.SparseVectorConfig{
			Map: map[string]*pb.SparseVectorParams{
				sparseVectorName: {},
			},
		}
	}

	if err := s.guarded(ctx, "create collection "+collectionName, func(ctx context.Context) error {
		_, err := s.coll.Create(ctx, req)
		return err
	}); err != nil {
		return err
	}

	if _, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: collectionName,
		FieldName:      "ownerId",
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		s.log.Warn("create ownerId payload index failed", "collection", collectionName, "error", err)
	}

	s.mu.Lock()
	s.ensured[collectionName] = true
	s.mu.Unlock()
	return nil
}
